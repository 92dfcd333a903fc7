// Package launcher loads a verified kernel, initrd, and command line into
// memory and transfers execution via kexec. A successful launch never
// returns: all ledger bookkeeping must be durably committed before calling
// into this package.
package launcher

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/u-root/u-root/pkg/boot/kexec"
	"github.com/u-root/u-root/pkg/kexecbin"

	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
)

// LaunchError is a failure to even begin the kexec handoff. It is a
// transient boot failure: the attempt's retry was already consumed, the
// entry is not marked bad.
type LaunchError struct {
	EntryID string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch entry %s: %v", e.EntryID, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Launch kexecs into the entry's kernel. It returns only on failure.
func Launch(e *catalog.Entry) error {
	log.Printf("Launching entry %s: kernel=%s initrd=%s cmdline=%q", e.ID, e.Kernel, e.Initrd, e.Cmdline)

	// The in-kernel kexec_file_load path has no device-tree parameter, so
	// entries with a device tree go through the kexec binary instead.
	if e.DeviceTree != "" {
		if err := kexecbin.KexecBin(e.Kernel, e.Cmdline, e.Initrd, e.DeviceTree); err != nil {
			return &LaunchError{EntryID: e.ID, Err: err}
		}
		return &LaunchError{EntryID: e.ID, Err: errors.New("kexec returned without error, the system did not reboot")}
	}

	kernel, err := os.Open(e.Kernel)
	if err != nil {
		return &LaunchError{EntryID: e.ID, Err: err}
	}
	defer kernel.Close()

	var initrd *os.File
	if e.Initrd != "" {
		initrd, err = os.Open(e.Initrd)
		if err != nil {
			return &LaunchError{EntryID: e.ID, Err: err}
		}
		defer initrd.Close()
	}

	if err := kexec.FileLoad(kernel, initrd, e.Cmdline); err != nil {
		return &LaunchError{EntryID: e.ID, Err: err}
	}
	if err := kexec.Reboot(); err != nil {
		return &LaunchError{EntryID: e.ID, Err: err}
	}
	// point of no return not reached
	return &LaunchError{EntryID: e.ID, Err: errors.New("kexec returned without error, the system did not reboot")}
}
