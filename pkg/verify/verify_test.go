package verify

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/crypto"
)

type fakeMeasurer struct {
	extends []uint32
	fail    bool
}

func (f *fakeMeasurer) Measure(pcr uint32, data []byte) error {
	f.extends = append(f.extends, pcr)
	if f.fail {
		return errFake
	}
	return nil
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "fake measurement failure" }

func signedEntry(t *testing.T, kernel, initrd []byte, cmdline string) *catalog.Entry {
	t.Helper()
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	pubPath := filepath.Join(dir, "key.pub.pem")
	require.NoError(t, crypto.GenerateED25519Keys(nil, privPath, pubPath))

	private, err := crypto.LoadED25519PrivateKeyFromFile(privPath, nil)
	require.NoError(t, err)
	signature, err := crypto.SignED25519Signature(private, Digest(kernel, initrd, cmdline))
	require.NoError(t, err)

	return &catalog.Entry{
		ID:        "signed",
		Kernel:    "/boot/vmlinuz",
		Cmdline:   cmdline,
		PublicKey: pubPath,
		KeyType:   catalog.KeyTypeED25519,
		Signature: base64.StdEncoding.EncodeToString(signature),
	}
}

func TestVerifySignedEntry(t *testing.T) {
	kernel := []byte("kernel image")
	initrd := []byte("initrd image")
	e := signedEntry(t, kernel, initrd, "console=ttyS0")

	v := &Verifier{}
	result, err := v.Verify(e, kernel, initrd)
	require.NoError(t, err)
	require.Equal(t, Verified, result)
}

func TestVerifyRejectsTamperedKernel(t *testing.T) {
	kernel := []byte("kernel image")
	initrd := []byte("initrd image")
	e := signedEntry(t, kernel, initrd, "console=ttyS0")

	v := &Verifier{}
	result, err := v.Verify(e, []byte("evil kernel image"), initrd)
	require.NoError(t, err)
	require.Equal(t, Rejected, result)
}

func TestVerifyRejectsTamperedCmdline(t *testing.T) {
	kernel := []byte("kernel image")
	e := signedEntry(t, kernel, nil, "console=ttyS0")
	e.Cmdline = "console=ttyS0 init=/bin/sh"

	v := &Verifier{}
	result, err := v.Verify(e, kernel, nil)
	require.NoError(t, err)
	require.Equal(t, Rejected, result)
}

func TestVerifyRejectsMangledSignature(t *testing.T) {
	kernel := []byte("kernel image")
	e := signedEntry(t, kernel, nil, "")
	e.Signature = "%%% not base64 %%%"

	v := &Verifier{}
	result, err := v.Verify(e, kernel, nil)
	require.NoError(t, err)
	require.Equal(t, Rejected, result)
}

func TestVerifyPermissiveEntry(t *testing.T) {
	e := &catalog.Entry{ID: "permissive", Kernel: "/boot/vmlinuz"}

	v := &Verifier{}
	result, err := v.Verify(e, []byte("anything"), nil)
	require.NoError(t, err)
	require.Equal(t, Verified, result)
}

func TestVerifyUnreadableKeyIsOperationalFailure(t *testing.T) {
	kernel := []byte("kernel image")
	e := signedEntry(t, kernel, nil, "")
	e.PublicKey = filepath.Join(t.TempDir(), "absent.pem")

	v := &Verifier{}
	_, err := v.Verify(e, kernel, nil)
	require.Error(t, err)
}

func TestMeasurementHappensBeforeRejection(t *testing.T) {
	pcr := uint32(8)
	kernel := []byte("kernel image")
	e := signedEntry(t, kernel, nil, "")
	e.MeasurePCR = &pcr

	// measurement records what was attempted regardless of the verdict
	m := &fakeMeasurer{}
	v := &Verifier{Measurer: m}
	result, err := v.Verify(e, []byte("tampered"), nil)
	require.NoError(t, err)
	require.Equal(t, Rejected, result)
	require.NotEmpty(t, m.extends)
	for _, got := range m.extends {
		require.Equal(t, pcr, got)
	}
}

func TestMeasurementFailureDoesNotGate(t *testing.T) {
	pcr := uint32(8)
	kernel := []byte("kernel image")
	e := signedEntry(t, kernel, nil, "")
	e.MeasurePCR = &pcr

	v := &Verifier{Measurer: &fakeMeasurer{fail: true}}
	result, err := v.Verify(e, kernel, nil)
	require.NoError(t, err)
	require.Equal(t, Verified, result)
}
