package crypto

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"golang.org/x/crypto/ed25519"
)

var (
	// ED25519PubKeyIdentifier is the PEM public key identifier
	ED25519PubKeyIdentifier = "ED25519 PUBLIC KEY"
	// ED25519PrivKeyIdentifier is the PEM private key identifier
	ED25519PrivKeyIdentifier = "ED25519 PRIVATE KEY"
)

// LoadED25519PublicKeyFromFile loads a PEM formatted ed25519 public key.
func LoadED25519PublicKeyFromFile(publicKeyPath string) (ed25519.PublicKey, error) {
	keyPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != ED25519PubKeyIdentifier {
		return nil, errors.New("can't decode public key PEM file")
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, errors.New("wrong ed25519 public key size")
	}
	return ed25519.PublicKey(block.Bytes), nil
}

// LoadED25519PrivateKeyFromFile loads a PEM formatted ed25519 private key,
// decrypting it with password if the PEM block is encrypted.
func LoadED25519PrivateKeyFromFile(privateKeyPath string, password []byte) (ed25519.PrivateKey, error) {
	keyPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != ED25519PrivKeyIdentifier {
		return nil, errors.New("can't decode private key PEM file")
	}

	keyBytes := block.Bytes
	if x509.IsEncryptedPEMBlock(block) {
		keyBytes, err = x509.DecryptPEMBlock(block, password)
		if err != nil {
			return nil, err
		}
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, errors.New("wrong ed25519 private key size")
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// VerifyED25519Signature verifies an ed25519 signature over data.
func VerifyED25519Signature(publicKey ed25519.PublicKey, data []byte, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return errors.New("no public key given")
	}
	if !ed25519.Verify(publicKey, data, signature) {
		return errors.New("ed25519 signature verification failed")
	}
	return nil
}

// SignED25519Signature signs data with an ed25519 private key.
func SignED25519Signature(privateKey ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("no private key given")
	}
	return ed25519.Sign(privateKey, data), nil
}

// GenerateED25519Keys generates an ed25519 keypair and writes both halves to
// disk, encrypting the private key when a password is given.
func GenerateED25519Keys(password []byte, privateKeyFilePath string, publicKeyFilePath string) error {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	privBlock := &pem.Block{
		Type:  ED25519PrivKeyIdentifier,
		Bytes: private,
	}
	pubBlock := &pem.Block{
		Type:  ED25519PubKeyIdentifier,
		Bytes: public,
	}

	privateKey, err := encodePrivatePEM(privBlock, password)
	if err != nil {
		return err
	}

	if err := os.WriteFile(privateKeyFilePath, privateKey, PrivKeyFilePermissions); err != nil {
		return err
	}
	return os.WriteFile(publicKeyFilePath, pem.EncodeToMemory(pubBlock), PubKeyFilePermissions)
}
