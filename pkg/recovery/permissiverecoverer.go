package recovery

import (
	"log"
	"os"
	"os/exec"
)

// PermissiveRecoverer drops to an interactive shell instead of power
// cycling. Only for debug builds: it leaves the machine in the failed
// state.
type PermissiveRecoverer struct {
	Shell string
}

// Recover logs the failure and execs the configured shell.
func (pr PermissiveRecoverer) Recover(message string) error {
	if message != "" {
		log.Printf("Recovery: %s", message)
	}

	path, err := exec.LookPath(pr.Shell)
	if err != nil {
		return err
	}
	cmd := exec.Command(path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}
