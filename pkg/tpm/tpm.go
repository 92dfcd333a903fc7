// Package tpm wraps the TPM 1.2 measurement primitives used for measured
// boot: extending a PCR with the hash of data that is about to run.
package tpm

import (
	"crypto/sha1"
	"io"

	tspi "github.com/google/go-tpm/tpm"
)

const (
	// DefaultDevice is the TPM character device path.
	DefaultDevice = "/dev/tpm0"
)

// TPM is an open handle to a TPM 1.2 device.
type TPM struct {
	device io.ReadWriteCloser
}

// Open opens the TPM device at the given path, or DefaultDevice if empty.
func Open(device string) (*TPM, error) {
	if device == "" {
		device = DefaultDevice
	}
	rwc, err := tspi.OpenTPM(device)
	if err != nil {
		return nil, err
	}
	return &TPM{device: rwc}, nil
}

// Close releases the TPM device.
func (t *TPM) Close() error {
	return t.device.Close()
}

// Measure hashes data and extends the hash into the given PCR.
func (t *TPM) Measure(pcr uint32, data []byte) error {
	hash := sha1.Sum(data)
	_, err := tspi.PcrExtend(t.device, pcr, hash)
	return err
}

// ReadPCR returns the current value of a PCR.
func (t *TPM) ReadPCR(pcr uint32) ([]byte, error) {
	return tspi.ReadPCR(t.device, pcr)
}
