// Package ledger persists per-entry boot attempt counters and status. Every
// mutation is committed to disk before the call returns, using whole-file
// atomic replacement, so the ledger read back after a crash is always the
// last fully-committed state.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/johnrichardrinehart/tinyboot/pkg/fileutil"
)

// Status of a boot entry as recorded in the ledger.
type Status string

const (
	// StatusUnverified means the entry has been attempted but no boot of it
	// has been blessed yet, or it has never been attempted at all.
	StatusUnverified Status = "unverified"
	// StatusGood means a boot of this entry reached a healthy state and was
	// blessed.
	StatusGood Status = "good"
	// StatusBad means the entry exhausted its tries or failed integrity
	// verification. Terminal until the entry is reinstalled.
	StatusBad Status = "bad"
)

// ErrPersistence wraps failures to durably commit a ledger mutation. Callers
// must not proceed with a boot attempt when they see it: an unrecorded
// attempt would never be bounded by the retry counter.
var ErrPersistence = errors.New("ledger persistence failure")

// Record tracks the attempt counter for one boot entry.
type Record struct {
	Attempts uint32 `json:"attempts"`
	MaxTries uint32 `json:"max_tries"`
	Status   Status `json:"status"`
}

type ledgerFile struct {
	Version int                `json:"version"`
	Records map[string]*Record `json:"records"`
}

// Ledger is the durable attempt store. It is not safe for concurrent use;
// at most one boot phase writes to it at any instant.
type Ledger struct {
	path    string
	records map[string]*Record
}

// Open reads the ledger file at path. A missing file yields an empty ledger;
// a corrupt file is an error, never silently reinterpreted.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, records: make(map[string]*Record)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("cannot parse ledger %s: %w", path, err)
	}
	if lf.Records != nil {
		l.records = lf.Records
	}
	return l, nil
}

// Record returns a copy of the attempt record for the given entry id.
func (l *Ledger) Record(entryID string) (Record, bool) {
	r, ok := l.records[entryID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// RecordAttempt durably accounts for one boot attempt of the given entry.
// The record is created at zero attempts if absent. It returns whether the
// attempt is permitted and the attempt count after the increment.
//
// When the counter reaches the entry's max tries the record flips to Bad
// while the final try is still permitted to launch: unless that boot gets
// blessed, the next boot's selection skips the entry. A counter beyond max
// tries denies the attempt outright.
func (l *Ledger) RecordAttempt(entryID string, maxTries uint32) (bool, uint32, error) {
	r, ok := l.records[entryID]
	if !ok {
		r = &Record{Status: StatusUnverified}
		l.records[entryID] = r
	}
	if r.Status == StatusBad {
		return false, r.Attempts, nil
	}
	// the entry record owns the budget; records created by a manual bless
	// would otherwise sit at zero tries
	r.MaxTries = maxTries
	r.Attempts++
	permitted := r.Attempts <= r.MaxTries
	if r.Attempts >= r.MaxTries {
		r.Status = StatusBad
	}
	if err := l.save(); err != nil {
		return false, r.Attempts, err
	}
	return permitted, r.Attempts, nil
}

// BlessGood marks the entry's most recent boot as successful and resets its
// retry budget. Idempotent: repeated calls change nothing after the first.
func (l *Ledger) BlessGood(entryID string) error {
	r, ok := l.records[entryID]
	if !ok {
		r = &Record{Status: StatusUnverified}
		l.records[entryID] = r
	}
	if r.Status == StatusGood && r.Attempts == 0 {
		return nil
	}
	r.Status = StatusGood
	r.Attempts = 0
	return l.save()
}

// MarkBad makes the entry terminal immediately, bypassing the attempt
// counter. Used on integrity failures, which must never be retried.
func (l *Ledger) MarkBad(entryID string) error {
	r, ok := l.records[entryID]
	if !ok {
		r = &Record{}
		l.records[entryID] = r
	}
	if r.Status == StatusBad {
		return nil
	}
	r.Status = StatusBad
	return l.save()
}

// Reset installs a fresh Unverified record with zero attempts, replacing any
// prior history. Called by the install hook so a reinstalled entry regains a
// full retry budget.
func (l *Ledger) Reset(entryID string, maxTries uint32) error {
	l.records[entryID] = &Record{MaxTries: maxTries, Status: StatusUnverified}
	return l.save()
}

// Forget drops the record for an entry that has been removed.
func (l *Ledger) Forget(entryID string) error {
	if _, ok := l.records[entryID]; !ok {
		return nil
	}
	delete(l.records, entryID)
	return l.save()
}

func (l *Ledger) save() error {
	data, err := json.MarshalIndent(ledgerFile{Version: 1, Records: l.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := fileutil.WriteAtomic(l.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
