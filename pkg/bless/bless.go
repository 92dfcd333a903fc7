// Package bless implements the post-kexec daemon that waits for the "boot
// reached a good state" signal and commits the verdict into the attempt
// ledger. It fails closed: if shutdown begins before the signal arrives, no
// commit happens and the next boot sees the attempt as unblessed.
package bless

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rjeczalik/notify"

	"github.com/johnrichardrinehart/tinyboot/pkg/handoff"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
)

// Verdict is the outcome reported for the launched entry.
type Verdict string

const (
	// VerdictGood blesses the entry and resets its retry budget.
	VerdictGood Verdict = "good"
	// VerdictBad marks the entry bad immediately, bypassing the counter.
	VerdictBad Verdict = "bad"
)

// ErrShutdown means shutdown was initiated before the health signal
// arrived. The attempt stays unblessed.
var ErrShutdown = errors.New("shutdown before health signal, not blessing")

// DefaultSignalPath is where the system raises the boot-good signal. The
// policy that decides when the system is healthy lives elsewhere; tinyboot
// only reacts to the file appearing.
const DefaultSignalPath = "/run/tinyboot/boot-good"

// Daemon waits for the health signal and finalizes the launched entry.
type Daemon struct {
	Ledger     *ledger.Ledger
	MarkerPath string
	SignalPath string
}

// Run blocks until the health signal arrives, then commits a Good verdict
// for the entry named by the handoff marker and removes the marker. If ctx
// is cancelled first (shutdown), it returns ErrShutdown without touching
// the ledger. Run commits at most once per boot.
func (d *Daemon) Run(ctx context.Context) error {
	marker, err := handoff.Read(d.MarkerPath)
	if err != nil {
		return fmt.Errorf("cannot read launch marker: %w", err)
	}
	if marker == nil {
		log.Printf("No launch marker at %s, nothing to bless", d.MarkerPath)
		return nil
	}
	log.Printf("This boot launched entry %s (attempt %d), waiting for health signal at %s",
		marker.EntryID, marker.Attempt, d.SignalPath)

	if err := d.waitForSignal(ctx); err != nil {
		return err
	}

	return Commit(d.Ledger, d.MarkerPath, marker, VerdictGood)
}

func (d *Daemon) waitForSignal(ctx context.Context) error {
	dir := filepath.Dir(d.SignalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(dir, events, notify.Create, notify.InMovedTo); err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	defer notify.Stop(events)

	// the signal may have been raised before the watch was set up
	if _, err := os.Stat(d.SignalPath); err == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ErrShutdown
		case ev := <-events:
			if ev.Path() == d.SignalPath {
				return nil
			}
			// the signal may be raised via temp+rename, which reports a
			// different path
			if _, err := os.Stat(d.SignalPath); err == nil {
				return nil
			}
		}
	}
}

// Commit durably records the verdict for the launched entry and, on
// success, removes the handoff marker so the verdict cannot be committed
// twice. Also used by tbootctl for manual diagnostics.
func Commit(l *ledger.Ledger, markerPath string, marker *handoff.Marker, verdict Verdict) error {
	switch verdict {
	case VerdictGood:
		if err := l.BlessGood(marker.EntryID); err != nil {
			return err
		}
		log.Printf("Blessed entry %s as good", marker.EntryID)
	case VerdictBad:
		if err := l.MarkBad(marker.EntryID); err != nil {
			return err
		}
		log.Printf("Marked entry %s as bad", marker.EntryID)
	default:
		return fmt.Errorf("unknown verdict %q", verdict)
	}
	return handoff.Remove(markerPath)
}
