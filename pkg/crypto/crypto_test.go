package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestED25519SignAndVerify(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	pubPath := filepath.Join(dir, "key.pub.pem")
	require.NoError(t, GenerateED25519Keys(nil, privPath, pubPath))

	private, err := LoadED25519PrivateKeyFromFile(privPath, nil)
	require.NoError(t, err)
	public, err := LoadED25519PublicKeyFromFile(pubPath)
	require.NoError(t, err)

	data := []byte("kernel+initrd+cmdline")
	signature, err := SignED25519Signature(private, data)
	require.NoError(t, err)
	require.NoError(t, VerifyED25519Signature(public, data, signature))

	data[0] ^= 0xff
	require.Error(t, VerifyED25519Signature(public, data, signature))
}

func TestED25519EncryptedPrivateKey(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	pubPath := filepath.Join(dir, "key.pub.pem")
	password := []byte("hunter2")
	require.NoError(t, GenerateED25519Keys(password, privPath, pubPath))

	_, err := LoadED25519PrivateKeyFromFile(privPath, []byte("wrong"))
	require.Error(t, err)

	private, err := LoadED25519PrivateKeyFromFile(privPath, password)
	require.NoError(t, err)

	public, err := LoadED25519PublicKeyFromFile(pubPath)
	require.NoError(t, err)
	signature, err := SignED25519Signature(private, []byte("data"))
	require.NoError(t, err)
	require.NoError(t, VerifyED25519Signature(public, []byte("data"), signature))
}

func TestRSASignAndVerify(t *testing.T) {
	old := RSAKeyLength
	RSAKeyLength = 2048 // keep the test fast
	defer func() { RSAKeyLength = old }()

	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	pubPath := filepath.Join(dir, "key.pub.pem")
	require.NoError(t, GenerateRSAKeys(nil, privPath, pubPath))

	private, err := LoadRSAPrivateKeyFromFile(privPath, nil)
	require.NoError(t, err)
	public, err := LoadRSAPublicKeyFromFile(pubPath)
	require.NoError(t, err)

	data := []byte("kernel+initrd+cmdline")
	signature, err := SignRsaSha256Pkcs1v15Signature(private, data)
	require.NoError(t, err)
	require.NoError(t, VerifyRsaSha256Pkcs1v15Signature(public, data, signature))

	require.Error(t, VerifyRsaSha256Pkcs1v15Signature(public, []byte("tampered"), signature))
}

func TestLoadKeyFromGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	_, err := LoadED25519PublicKeyFromFile(path)
	require.Error(t, err)
	_, err = LoadRSAPublicKeyFromFile(path)
	require.Error(t, err)
}
