package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/johnrichardrinehart/tinyboot/pkg/fileutil"
)

// DefaultStoreDir is where entries, images, the ledger, and the launch
// marker live unless overridden.
const DefaultStoreDir = "/var/lib/tinyboot"

// Store describes the on-disk layout of the boot entry store. All state the
// bootloader owns lives under one directory so it can be mounted read-write
// by both the pre-kexec phase and the booted system.
type Store struct {
	Dir string
}

// EntriesDir holds one JSON record per installed entry.
func (s Store) EntriesDir() string { return filepath.Join(s.Dir, "entries") }

// ImagesDir holds the installed kernel/initrd/device-tree payloads, one
// subdirectory per entry id.
func (s Store) ImagesDir() string { return filepath.Join(s.Dir, "images") }

// KeysDir holds installed verification public keys.
func (s Store) KeysDir() string { return filepath.Join(s.Dir, "keys") }

// LedgerPath is the attempt ledger file.
func (s Store) LedgerPath() string { return filepath.Join(s.Dir, "ledger.json") }

// MarkerPath is the durable handoff record naming the entry launched this
// boot.
func (s Store) MarkerPath() string { return filepath.Join(s.Dir, "last-launch.json") }

// ConfigPath is the loader configuration file.
func (s Store) ConfigPath() string { return filepath.Join(s.Dir, "config.json") }

// EntryPath is the record file for one entry id.
func (s Store) EntryPath(id string) string {
	return filepath.Join(s.EntriesDir(), id+".json")
}

// EnsureLayout creates the store directories.
func (s Store) EnsureLayout() error {
	for _, dir := range []string{s.Dir, s.EntriesDir(), s.ImagesDir(), s.KeysDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Config is the loader configuration written by the install hook: plain
// data, resolved by explicit override (the last install wins), never merged.
type Config struct {
	// TimeoutSeconds is how long the pre-kexec phase waits before launching
	// the selected entry, giving an operator the chance to interrupt into
	// recovery. Zero launches immediately.
	TimeoutSeconds uint32 `json:"timeout_seconds"`
}

// LoadConfig reads the loader configuration; a missing file yields defaults.
func (s Store) LoadConfig() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(s.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	err = json.Unmarshal(data, &cfg)
	return cfg, err
}

// SaveConfig atomically replaces the loader configuration.
func (s Store) SaveConfig(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.ConfigPath(), data, 0644)
}
