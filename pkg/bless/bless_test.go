package bless

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnrichardrinehart/tinyboot/pkg/handoff"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
)

func testDaemon(t *testing.T) (*Daemon, *ledger.Ledger) {
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)
	return &Daemon{
		Ledger:     l,
		MarkerPath: filepath.Join(dir, "last-launch.json"),
		SignalPath: filepath.Join(dir, "run", "boot-good"),
	}, l
}

func launched(t *testing.T, d *Daemon, l *ledger.Ledger, entryID string) {
	t.Helper()
	// what the pre-kexec phase does before the handoff
	_, attempts, err := l.RecordAttempt(entryID, 3)
	require.NoError(t, err)
	require.NoError(t, handoff.Write(d.MarkerPath, &handoff.Marker{
		EntryID: entryID, Attempt: attempts, WrittenAt: time.Now().UTC(),
	}))
}

func raiseSignal(t *testing.T, d *Daemon) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(d.SignalPath), 0755))
	require.NoError(t, os.WriteFile(d.SignalPath, nil, 0644))
}

func TestBlessAfterSignalAlreadyRaised(t *testing.T) {
	d, l := testDaemon(t)
	launched(t, d, l, "entry-a")
	raiseSignal(t, d)

	require.NoError(t, d.Run(context.Background()))

	r, ok := l.Record("entry-a")
	require.True(t, ok)
	require.Equal(t, ledger.StatusGood, r.Status)
	require.Equal(t, uint32(0), r.Attempts)

	// the marker is consumed, a second run has nothing to bless
	m, err := handoff.Read(d.MarkerPath)
	require.NoError(t, err)
	require.Nil(t, m)
	require.NoError(t, d.Run(context.Background()))
}

func TestBlessWaitsForSignal(t *testing.T) {
	d, l := testDaemon(t)
	launched(t, d, l, "entry-a")

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	// give the watch time to be established, then raise the signal
	time.Sleep(200 * time.Millisecond)
	raiseSignal(t, d)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bless daemon did not react to the health signal")
	}

	r, _ := l.Record("entry-a")
	require.Equal(t, ledger.StatusGood, r.Status)
}

func TestShutdownBeforeSignalDoesNotBless(t *testing.T) {
	d, l := testDaemon(t)
	launched(t, d, l, "entry-a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("bless daemon did not observe shutdown")
	}

	// the attempt stays recorded and unblessed
	r, ok := l.Record("entry-a")
	require.True(t, ok)
	require.Equal(t, ledger.StatusUnverified, r.Status)
	require.Equal(t, uint32(1), r.Attempts)

	// and the marker survives for diagnostics
	m, err := handoff.Read(d.MarkerPath)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNoMarkerMeansNothingToBless(t *testing.T) {
	d, l := testDaemon(t)
	require.NoError(t, d.Run(context.Background()))
	_, ok := l.Record("entry-a")
	require.False(t, ok)
}

func TestCommitBadVerdict(t *testing.T) {
	d, l := testDaemon(t)
	launched(t, d, l, "entry-a")

	m, err := handoff.Read(d.MarkerPath)
	require.NoError(t, err)
	require.NoError(t, Commit(l, d.MarkerPath, m, VerdictBad))

	r, _ := l.Record("entry-a")
	require.Equal(t, ledger.StatusBad, r.Status)
}

func TestCommitGoodIsIdempotentAcrossRetries(t *testing.T) {
	d, l := testDaemon(t)
	launched(t, d, l, "entry-a")

	m, err := handoff.Read(d.MarkerPath)
	require.NoError(t, err)
	require.NoError(t, Commit(l, d.MarkerPath, m, VerdictGood))
	// a retried commit against the same marker contents changes nothing
	require.NoError(t, Commit(l, d.MarkerPath, m, VerdictGood))

	r, _ := l.Record("entry-a")
	require.Equal(t, ledger.StatusGood, r.Status)
	require.Equal(t, uint32(0), r.Attempts)
}
