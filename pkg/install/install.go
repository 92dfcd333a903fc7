// Package install implements the deployment-time hook that registers a new
// boot entry: it copies the images into the store, signs them, writes the
// entry record, and resets the entry's attempt history.
package install

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/crypto"
	"github.com/johnrichardrinehart/tinyboot/pkg/fileutil"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
	"github.com/johnrichardrinehart/tinyboot/pkg/verify"
)

// Options for installing one boot entry.
type Options struct {
	ID         string
	Kernel     string // source path, copied into the store
	Initrd     string // optional source path
	DeviceTree string // optional source path
	Cmdline    string

	// Signing. PrivateKey signs the installed images; PublicKey is copied
	// into the store and referenced by the entry for verification at boot.
	// Both empty installs a permissive-mode entry.
	PrivateKey string
	PublicKey  string
	KeyType    catalog.KeyType
	Password   []byte

	// MeasurePCR, when non-nil, enables measured boot for this entry.
	MeasurePCR *uint32

	Priority int
	MaxTries uint32
	// TimeoutSeconds updates the loader's pre-launch timeout. Negative
	// leaves the stored value untouched.
	TimeoutSeconds int
}

// DefaultMaxTries bounds retries for entries installed without an explicit
// budget.
const DefaultMaxTries uint32 = 3

// Install registers the entry described by opts into the store and resets
// its attempt record to zero attempts, Unverified. An existing entry with
// the same id is replaced wholesale.
func Install(s catalog.Store, l *ledger.Ledger, opts Options) (*catalog.Entry, error) {
	if opts.ID == "" {
		return nil, errors.New("entry id is required")
	}
	if opts.Kernel == "" {
		return nil, errors.New("kernel image is required")
	}
	if (opts.PrivateKey == "") != (opts.PublicKey == "") {
		return nil, errors.New("signing requires both a private and a public key")
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultMaxTries
	}

	if err := s.EnsureLayout(); err != nil {
		return nil, err
	}
	imageDir := filepath.Join(s.ImagesDir(), opts.ID)
	if err := os.RemoveAll(imageDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return nil, err
	}

	entry := &catalog.Entry{
		ID:          opts.ID,
		Cmdline:     opts.Cmdline,
		MeasurePCR:  opts.MeasurePCR,
		Priority:    opts.Priority,
		MaxTries:    opts.MaxTries,
		InstalledAt: time.Now().UTC(),
	}

	var err error
	if entry.Kernel, err = installImage(opts.Kernel, imageDir); err != nil {
		return nil, err
	}
	if opts.Initrd != "" {
		if entry.Initrd, err = installImage(opts.Initrd, imageDir); err != nil {
			return nil, err
		}
	}
	if opts.DeviceTree != "" {
		if entry.DeviceTree, err = installImage(opts.DeviceTree, imageDir); err != nil {
			return nil, err
		}
	}

	if opts.PrivateKey != "" {
		if err := signEntry(s, entry, opts); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fileutil.WriteAtomic(s.EntryPath(opts.ID), data, 0644); err != nil {
		return nil, err
	}

	// fresh attempt record: Unverified, zero attempts, new retry budget
	if err := l.Reset(opts.ID, opts.MaxTries); err != nil {
		return nil, err
	}

	if opts.TimeoutSeconds >= 0 {
		if err := s.SaveConfig(catalog.Config{TimeoutSeconds: uint32(opts.TimeoutSeconds)}); err != nil {
			return nil, err
		}
	}

	log.Printf("Installed entry %s (priority %d, max tries %d)", entry.ID, entry.Priority, entry.MaxTries)
	return entry, nil
}

// Remove deletes an entry, its images, its key, and its attempt record.
func Remove(s catalog.Store, l *ledger.Ledger, id string) error {
	if err := os.Remove(s.EntryPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.ImagesDir(), id)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.KeysDir(), id+".pem")); err != nil && !os.IsNotExist(err) {
		return err
	}
	return l.Forget(id)
}

func installImage(src, imageDir string) (string, error) {
	dst := filepath.Join(imageDir, filepath.Base(src))
	if err := fileutil.CopyFile(src, dst, 0644); err != nil {
		return "", fmt.Errorf("cannot install %s: %w", src, err)
	}
	return dst, nil
}

func signEntry(s catalog.Store, entry *catalog.Entry, opts Options) error {
	kernel, err := os.ReadFile(entry.Kernel)
	if err != nil {
		return err
	}
	var initrd []byte
	if entry.Initrd != "" {
		if initrd, err = os.ReadFile(entry.Initrd); err != nil {
			return err
		}
	}
	data := verify.Digest(kernel, initrd, entry.Cmdline)

	var signature []byte
	switch opts.KeyType {
	case catalog.KeyTypeRSA:
		privateKey, err := crypto.LoadRSAPrivateKeyFromFile(opts.PrivateKey, opts.Password)
		if err != nil {
			return err
		}
		if signature, err = crypto.SignRsaSha256Pkcs1v15Signature(privateKey, data); err != nil {
			return err
		}
	case catalog.KeyTypeED25519:
		privateKey, err := crypto.LoadED25519PrivateKeyFromFile(opts.PrivateKey, opts.Password)
		if err != nil {
			return err
		}
		if signature, err = crypto.SignED25519Signature(privateKey, data); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown key type %q", opts.KeyType)
	}

	installedKey := filepath.Join(s.KeysDir(), entry.ID+".pem")
	if err := fileutil.CopyFile(opts.PublicKey, installedKey, 0644); err != nil {
		return err
	}
	entry.PublicKey = installedKey
	entry.KeyType = opts.KeyType
	entry.Signature = base64.StdEncoding.EncodeToString(signature)
	return nil
}
