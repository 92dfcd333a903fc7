// Package handoff carries the identity of the launched entry across the
// kexec boundary. The pre-kexec phase and the bless daemon share no memory;
// the marker file is the only channel between them.
package handoff

import (
	"encoding/json"
	"os"
	"time"

	"github.com/johnrichardrinehart/tinyboot/pkg/fileutil"
)

// Marker names the entry launched this boot. Written atomically before the
// kexec handoff, read by the bless daemon in the booted system, removed
// after a bless verdict has been durably committed.
type Marker struct {
	EntryID   string    `json:"entry_id"`
	Attempt   uint32    `json:"attempt"`
	WrittenAt time.Time `json:"written_at"`
}

// Write atomically replaces the marker at path.
func Write(path string, m *Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0644)
}

// Read loads the marker at path. A missing marker returns (nil, nil): there
// is nothing to bless this boot.
func Read(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Remove deletes the marker. Removing an already-absent marker is not an
// error.
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
