package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, WriteAtomic(path, []byte("one"), 0644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)

	require.NoError(t, WriteAtomic(path, []byte("two"), 0644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, WriteAtomic(path, []byte("data"), 0644))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "state.json", files[0].Name())
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	require.NoError(t, CopyFile(src, dst, 0644))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}
