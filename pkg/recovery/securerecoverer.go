package recovery

import (
	"log"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const debugTimeout = 10 * time.Second

// SecureRecoverer reboots or powers off the machine.
// Reboot: reboot instead of powering off
// Sync: flush file descriptors and block devices first
// Debug: log the message and pause before acting
type SecureRecoverer struct {
	Reboot bool
	Sync   bool
	Debug  bool
}

// Recover by reboot or poweroff, optionally syncing first.
func (sr SecureRecoverer) Recover(message string) error {
	if message != "" {
		log.Printf("Recovery: %s", message)
	}

	if sr.Sync {
		for _, f := range []*os.File{os.Stdout, os.Stderr} {
			if err := f.Sync(); err != nil {
				return err
			}
		}
		unix.Sync()
	}

	if sr.Debug {
		time.Sleep(debugTimeout)
	}

	if sr.Reboot {
		return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
	}
	return unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
}
