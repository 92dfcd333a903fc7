// Package recovery implements the fallback behavior entered when no entry
// can be booted or a fatal bootloader error occurs.
package recovery

// Recoverer offers the ability to recover from a security violation or
// boot failure. Implementations log the message before acting; no fallback
// proceeds without a corresponding log record.
type Recoverer interface {
	Recover(message string) error
}
