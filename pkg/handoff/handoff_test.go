package handoff

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-launch.json")

	m := &Marker{EntryID: "nixos-42", Attempt: 2, WrittenAt: time.Now().UTC()}
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "nixos-42", got.EntryID)
	require.Equal(t, uint32(2), got.Attempt)

	require.NoError(t, Remove(path))
	got, err = Read(path)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRemoveMissingMarker(t *testing.T) {
	require.NoError(t, Remove(filepath.Join(t.TempDir(), "absent.json")))
}

func TestStaleMarkerIsOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-launch.json")

	// an unblessed boot leaves its marker behind
	require.NoError(t, Write(path, &Marker{EntryID: "old", Attempt: 3}))
	// the next pre-kexec phase replaces it before launch
	require.NoError(t, Write(path, &Marker{EntryID: "new", Attempt: 1}))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "new", got.EntryID)
	require.Equal(t, uint32(1), got.Attempt)
}
