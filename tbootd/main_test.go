package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/launcher"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
	"github.com/johnrichardrinehart/tinyboot/pkg/recovery"
	"github.com/johnrichardrinehart/tinyboot/pkg/verify"
)

func TestUnreadableKernelDrainsRetryBudget(t *testing.T) {
	dir := t.TempDir()
	store := catalog.Store{Dir: dir}
	l, err := ledger.Open(store.LedgerPath())
	require.NoError(t, err)

	entries := []*catalog.Entry{{
		ID:       "broken",
		Kernel:   filepath.Join(dir, "no-such-kernel"),
		MaxTries: 3,
	}}
	verifier := &verify.Verifier{}

	// every failed image read consumes a retry
	for i := uint32(1); i <= 3; i++ {
		entry, err := catalog.SelectCandidate(entries, l)
		require.NoError(t, err)
		err = attempt(entry, l, verifier, store)
		var le *launcher.LaunchError
		require.True(t, errors.As(err, &le))
		r, ok := l.Record("broken")
		require.True(t, ok)
		require.Equal(t, i, r.Attempts)
	}

	// the budget is gone and selection moves past the entry
	r, _ := l.Record("broken")
	require.Equal(t, ledger.StatusBad, r.Status)
	_, err = catalog.SelectCandidate(entries, l)
	require.ErrorIs(t, err, catalog.ErrNoBootableEntry)
}

func TestRecovererSelection(t *testing.T) {
	*recoveryShell = ""
	require.IsType(t, recovery.SecureRecoverer{}, newRecoverer())

	*recoveryShell = "/bin/sh"
	defer func() { *recoveryShell = "" }()
	require.IsType(t, recovery.PermissiveRecoverer{}, newRecoverer())
}
