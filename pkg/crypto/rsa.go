package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

var (
	// RSAKeyLength is the default RSA key length
	RSAKeyLength = 4096
	// PubKeyIdentifier is the PEM public key identifier
	PubKeyIdentifier = "PUBLIC KEY"
	// PrivKeyIdentifier is the PEM private key identifier
	PrivKeyIdentifier = "PRIVATE KEY"
	// PEMCipher is the PEM encryption algorithm
	PEMCipher = x509.PEMCipherAES256
	// PubKeyFilePermissions are the public key file perms
	PubKeyFilePermissions os.FileMode = 0644
	// PrivKeyFilePermissions are the private key file perms
	PrivKeyFilePermissions os.FileMode = 0600
)

// LoadRSAPublicKeyFromFile loads a PKCS1 PEM formatted RSA public key.
func LoadRSAPublicKeyFromFile(publicKeyPath string) (*rsa.PublicKey, error) {
	x509PEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(x509PEM)
	if block == nil || block.Type != PubKeyIdentifier {
		return nil, errors.New("can't decode public key PEM file")
	}

	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// LoadRSAPrivateKeyFromFile loads a PKCS1 PEM formatted RSA private key,
// decrypting it with password if the PEM block is encrypted.
func LoadRSAPrivateKeyFromFile(privateKeyPath string, password []byte) (*rsa.PrivateKey, error) {
	x509PEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(x509PEM)
	if block == nil || block.Type != PrivKeyIdentifier {
		return nil, errors.New("can't decode private key PEM file")
	}

	if x509.IsEncryptedPEMBlock(block) {
		decrypted, err := x509.DecryptPEMBlock(block, password)
		if err != nil {
			return nil, err
		}
		return x509.ParsePKCS1PrivateKey(decrypted)
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// VerifyRsaSha256Pkcs1v15Signature verifies a PKCSv1.5 signature made by
// a SHA-256 checksum.
func VerifyRsaSha256Pkcs1v15Signature(publicKey *rsa.PublicKey, data []byte, signature []byte) error {
	if publicKey == nil {
		return errors.New("no public key given")
	}

	hash := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hash[:], signature)
}

// SignRsaSha256Pkcs1v15Signature signs data with a RSA private key, SHA-256
// for verification and a PKCSv1.5 padding.
func SignRsaSha256Pkcs1v15Signature(privateKey *rsa.PrivateKey, data []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, errors.New("no private key given")
	}

	hash := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, hash[:])
}

// GenerateRSAKeys generates a PKCS1 RSA keypair and writes both halves to
// disk, encrypting the private key when a password is given.
func GenerateRSAKeys(password []byte, privateKeyFilePath string, publicKeyFilePath string) error {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyLength)
	if err != nil {
		return err
	}

	privBlock := &pem.Block{
		Type:  PrivKeyIdentifier,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	pubBlock := &pem.Block{
		Type:  PubKeyIdentifier,
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
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

func encodePrivatePEM(block *pem.Block, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return pem.EncodeToMemory(block), nil
	}
	encrypted, err := x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, password, PEMCipher)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(encrypted), nil
}
