// Command tbootd is the pre-kexec bootloader: it selects an installed boot
// entry, verifies it, durably records the attempt, and kexecs into it. It
// runs strictly sequentially; a successful launch terminates this process.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/johnrichardrinehart/tinyboot/pkg/bless"
	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/handoff"
	"github.com/johnrichardrinehart/tinyboot/pkg/launcher"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
	"github.com/johnrichardrinehart/tinyboot/pkg/recovery"
	"github.com/johnrichardrinehart/tinyboot/pkg/rng"
	"github.com/johnrichardrinehart/tinyboot/pkg/tpm"
	"github.com/johnrichardrinehart/tinyboot/pkg/verify"
)

// Version of the boot daemon
const Version = `0.2`

var (
	doDebug       = flag.Bool("D", false, "Print debug output and pause before recovery actions")
	storeDir      = flag.String("store", catalog.DefaultStoreDir, "Boot entry store directory")
	tpmDevice     = flag.String("tpm", tpm.DefaultDevice, "TPM device path for measured boot")
	dryRun        = flag.Bool("dry-run", false, "Stop right before the kexec handoff")
	recoveryShell = flag.String("recovery-shell", "", "Drop into this shell on fatal errors instead of rebooting")
)

func main() {
	flag.Parse()
	log.Printf("tinyboot boot daemon v%s", Version)

	go func() {
		if err := rng.Feed(); err != nil {
			log.Printf("Entropy feeder stopped: %v", err)
		}
	}()

	recoverer := newRecoverer()
	if err := run(); err != nil {
		if err := recoverer.Recover(err.Error()); err != nil {
			log.Fatalf("Recovery failed: %v", err)
		}
	}
}

// newRecoverer picks the fatal-error fallback: reboot by default, an
// interactive shell when one was requested on the command line.
func newRecoverer() recovery.Recoverer {
	if *recoveryShell != "" {
		return recovery.PermissiveRecoverer{Shell: *recoveryShell}
	}
	return recovery.SecureRecoverer{
		Reboot: true,
		Sync:   true,
		Debug:  *doDebug,
	}
}

func run() error {
	store := catalog.Store{Dir: *storeDir}

	l, err := ledger.Open(store.LedgerPath())
	if err != nil {
		return fmt.Errorf("cannot open attempt ledger: %v", err)
	}
	entries, err := catalog.LoadEntries(store.EntriesDir())
	if err != nil {
		return fmt.Errorf("cannot load boot entries: %v", err)
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		return fmt.Errorf("cannot load loader config: %v", err)
	}

	verifier := &verify.Verifier{}
	if t, err := tpm.Open(*tpmDevice); err != nil {
		log.Printf("Cannot open TPM: %v", err)
	} else {
		defer t.Close()
		verifier.Measurer = t
	}

	if cfg.TimeoutSeconds > 0 {
		log.Printf("Waiting %d seconds before boot", cfg.TimeoutSeconds)
		time.Sleep(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	// Each iteration either launches (and never returns), consumes a retry,
	// or marks an entry bad, so the loop terminates.
	for {
		entry, err := catalog.SelectCandidate(entries, l)
		if err != nil {
			// NoBootableEntry: fatal for this core, surface to recovery
			return err
		}

		if err := attempt(entry, l, verifier, store); err != nil {
			var le *launcher.LaunchError
			switch {
			case errors.Is(err, ledger.ErrPersistence):
				// an unrecorded attempt must never proceed
				return err
			case errors.Is(err, errTryNext):
				continue
			case errors.As(err, &le):
				r, _ := l.Record(entry.ID)
				log.Printf("Transient launch failure for entry %s (attempt %d/%d): %v",
					entry.ID, r.Attempts, r.MaxTries, le.Err)
				continue
			default:
				return err
			}
		}
		// dry-run attempt completed without a handoff
		return nil
	}
}

// errTryNext moves selection on to the next candidate after an entry has
// been excluded (rejected by the verifier or out of retries).
var errTryNext = errors.New("try next candidate")

// failedLaunch accounts for a boot attempt that never got off the ground
// because an image was unreadable. The retry budget drains like any other
// transient launch failure, so a broken entry eventually goes bad instead
// of being selected forever.
func failedLaunch(entry *catalog.Entry, l *ledger.Ledger, cause error) error {
	permitted, attempts, err := l.RecordAttempt(entry.ID, entry.MaxTries)
	if err != nil {
		return err
	}
	if !permitted {
		log.Printf("Entry %s exhausted its %d tries after attempt %d, now bad", entry.ID, entry.MaxTries, attempts)
		return errTryNext
	}
	return &launcher.LaunchError{EntryID: entry.ID, Err: cause}
}

// attempt verifies, accounts, and launches one candidate. On success it
// does not return.
func attempt(entry *catalog.Entry, l *ledger.Ledger, verifier *verify.Verifier, store catalog.Store) error {
	kernel, err := os.ReadFile(entry.Kernel)
	if err != nil {
		return failedLaunch(entry, l, err)
	}
	var initrd []byte
	if entry.Initrd != "" {
		if initrd, err = os.ReadFile(entry.Initrd); err != nil {
			return failedLaunch(entry, l, err)
		}
	}

	result, err := verifier.Verify(entry, kernel, initrd)
	if err != nil {
		// verifier setup failure: abort without consuming a retry
		return fmt.Errorf("cannot verify entry %s: %v", entry.ID, err)
	}
	if result != verify.Verified {
		r, _ := l.Record(entry.ID)
		log.Printf("Integrity failure for entry %s (attempts %d): signature rejected, marking bad",
			entry.ID, r.Attempts)
		if err := l.MarkBad(entry.ID); err != nil {
			return err
		}
		// tampering is never retried; move on to the next candidate
		return errTryNext
	}

	permitted, attempts, err := l.RecordAttempt(entry.ID, entry.MaxTries)
	if err != nil {
		return err
	}
	if !permitted {
		log.Printf("Entry %s exhausted its %d tries after attempt %d, now bad", entry.ID, entry.MaxTries, attempts)
		return errTryNext
	}

	// The attempt and the launched identity are durable before the point of
	// no return; the bless daemon in the next kernel reads the marker.
	m := &handoff.Marker{EntryID: entry.ID, Attempt: attempts, WrittenAt: time.Now().UTC()}
	if err := handoff.Write(store.MarkerPath(), m); err != nil {
		return fmt.Errorf("%w: cannot write launch marker: %v", ledger.ErrPersistence, err)
	}

	log.Printf("Booting entry %s, attempt %d/%d", entry.ID, attempts, entry.MaxTries)
	if *dryRun {
		log.Printf("Dry run, skipping kexec handoff (a manual bless is now possible: tbootctl bless %s)",
			bless.VerdictGood)
		return nil
	}
	return launcher.Launch(entry)
}
