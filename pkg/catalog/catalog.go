// Package catalog enumerates installed boot entries and selects the one to
// try this boot, consulting the attempt ledger.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
)

// KeyType selects the signature scheme of an entry's trust configuration.
type KeyType string

const (
	// KeyTypeRSA is RSA PKCS#1 v1.5 over SHA-256.
	KeyTypeRSA KeyType = "rsa"
	// KeyTypeED25519 is an ed25519 signature.
	KeyTypeED25519 KeyType = "ed25519"
)

// ErrNoBootableEntry is returned by SelectCandidate when every installed
// entry is Bad or no entry is installed at all. The caller enters recovery.
var ErrNoBootableEntry = errors.New("no bootable entry")

// Entry is one selectable (kernel, initrd, cmdline, trust config) unit.
// Entries are immutable once installed: the install hook replaces them
// wholesale, it never mutates them in place.
type Entry struct {
	ID         string `json:"id"`
	Kernel     string `json:"kernel"`
	Initrd     string `json:"initrd,omitempty"`
	Cmdline    string `json:"cmdline,omitempty"`
	DeviceTree string `json:"devicetree,omitempty"`

	// Trust configuration. An entry with no public key and no measurement
	// policy is a permissive-mode entry and passes verification trivially.
	PublicKey  string  `json:"public_key,omitempty"`
	KeyType    KeyType `json:"key_type,omitempty"`
	Signature  string  `json:"signature,omitempty"` // base64, over kernel+initrd+cmdline
	MeasurePCR *uint32 `json:"measure_pcr,omitempty"`

	Priority    int       `json:"priority"`
	MaxTries    uint32    `json:"max_tries"`
	InstalledAt time.Time `json:"installed_at"`
}

// IsValid returns true if the entry names a kernel and an id.
func (e *Entry) IsValid() bool {
	return e.ID != "" && e.Kernel != ""
}

// ParseEntry parses an entry record in JSON format.
func ParseEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.IsValid() {
		return nil, fmt.Errorf("invalid boot entry: missing id or kernel")
	}
	return &e, nil
}

// LoadEntries reads every *.json entry record in dir, ordered for selection:
// priority descending, ties broken by most recent install.
func LoadEntries(dir string) ([]*Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []*Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, err
		}
		e, err := ParseEntry(data)
		if err != nil {
			log.Printf("Skipping unparseable entry %s: %v", f.Name(), err)
			continue
		}
		entries = append(entries, e)
	}
	SortEntries(entries)
	return entries, nil
}

// SortEntries orders entries by priority (highest first), then by install
// time (most recent first), then by id for a stable order.
func SortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if !entries[i].InstalledAt.Equal(entries[j].InstalledAt) {
			return entries[i].InstalledAt.After(entries[j].InstalledAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

// SelectCandidate returns the first entry in selection order whose ledger
// record is not Bad, or ErrNoBootableEntry. Selection is purely a read: it
// never touches the attempt counter, so an aborted selection does not
// consume a retry.
func SelectCandidate(entries []*Entry, l *ledger.Ledger) (*Entry, error) {
	for _, e := range entries {
		if r, ok := l.Record(e.ID); ok && r.Status == ledger.StatusBad {
			log.Printf("Skipping entry %s: marked bad after %d attempts", e.ID, r.Attempts)
			continue
		}
		return e, nil
	}
	return nil, ErrNoBootableEntry
}
