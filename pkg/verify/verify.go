// Package verify authorizes a candidate boot entry before launch: it
// extends the measurement register with what is about to be attempted and
// checks the entry's signature against its installed public key.
package verify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/crypto"
)

// Result of verifying a candidate entry.
type Result int

const (
	// Rejected means the entry failed signature verification. Terminal: the
	// caller must mark the entry bad, never retry it.
	Rejected Result = iota
	// Verified means the entry is permitted to launch.
	Verified
)

// ErrSignatureMismatch reports a signature that does not match the image.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Measurer extends a measurement register with a blob. *tpm.TPM implements
// it.
type Measurer interface {
	Measure(pcr uint32, data []byte) error
}

// Verifier validates boot entries. A nil Measurer skips measurement with a
// log line, mirroring a platform without a TPM.
type Verifier struct {
	Measurer Measurer
}

// Digest is the byte string covered by an entry signature:
// kernel image, initrd image, then the command line.
func Digest(kernel, initrd []byte, cmdline string) []byte {
	data := make([]byte, 0, len(kernel)+len(initrd)+len(cmdline))
	data = append(data, kernel...)
	data = append(data, initrd...)
	data = append(data, []byte(cmdline)...)
	return data
}

// Verify authorizes or rejects the entry given the raw kernel and initrd
// bytes. Measurement, when configured, happens unconditionally before the
// signature is evaluated: it records what was attempted, it is not a gate.
//
// A (Rejected, nil) return is a clean trust violation; the caller marks the
// entry bad. A non-nil error is an operational failure (unreadable key,
// unknown key type) that aborts the selection without consuming a retry.
func (v *Verifier) Verify(e *catalog.Entry, kernel, initrd []byte) (Result, error) {
	if e.MeasurePCR != nil {
		v.measure(*e.MeasurePCR, e, kernel, initrd)
	}

	if e.PublicKey == "" {
		// permissive-mode entry, installed before verified boot was enabled
		log.Printf("Entry %s has no trust configuration, skipping verification", e.ID)
		return Verified, nil
	}

	signature, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		// a mangled signature field is a trust violation, not a setup failure
		log.Printf("Entry %s: cannot decode signature: %v", e.ID, err)
		return Rejected, nil
	}
	data := Digest(kernel, initrd, e.Cmdline)

	switch e.KeyType {
	case catalog.KeyTypeRSA:
		publicKey, err := crypto.LoadRSAPublicKeyFromFile(e.PublicKey)
		if err != nil {
			return Rejected, fmt.Errorf("entry %s: cannot load public key: %v", e.ID, err)
		}
		if err := crypto.VerifyRsaSha256Pkcs1v15Signature(publicKey, data, signature); err != nil {
			log.Printf("Entry %s: %v", e.ID, ErrSignatureMismatch)
			return Rejected, nil
		}
	case catalog.KeyTypeED25519:
		publicKey, err := crypto.LoadED25519PublicKeyFromFile(e.PublicKey)
		if err != nil {
			return Rejected, fmt.Errorf("entry %s: cannot load public key: %v", e.ID, err)
		}
		if err := crypto.VerifyED25519Signature(publicKey, data, signature); err != nil {
			log.Printf("Entry %s: %v", e.ID, ErrSignatureMismatch)
			return Rejected, nil
		}
	default:
		return Rejected, fmt.Errorf("entry %s: unknown key type %q", e.ID, e.KeyType)
	}

	return Verified, nil
}

func (v *Verifier) measure(pcr uint32, e *catalog.Entry, kernel, initrd []byte) {
	if v.Measurer == nil {
		log.Printf("No TPM, not measuring entry %s", e.ID)
		return
	}
	for _, blob := range [][]byte{kernel, initrd, []byte(e.Cmdline)} {
		if len(blob) == 0 {
			continue
		}
		if err := v.Measurer.Measure(pcr, blob); err != nil {
			log.Printf("Cannot measure entry %s into PCR %d: %v", e.ID, pcr, err)
		}
	}
}
