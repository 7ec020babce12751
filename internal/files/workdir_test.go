package files

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkdirLayout(t *testing.T) {
	w := NewWorkdir("/srv/fx")

	assert.Equal(t, "/srv/fx", w.Root())
	assert.Equal(t, filepath.Join("/srv/fx", "zips"), w.ArchiveDir())
	assert.Equal(t, filepath.Join("/srv/fx", "csv"), w.CSVDir())
	assert.Equal(t, filepath.Join("/srv/fx", "clean"), w.CleanDir())

	zip := "HISTDATA_COM_ASCII_EURUSD_M1_202101.zip"
	assert.Equal(t, filepath.Join("/srv/fx", "zips", zip), w.ArchivePath(zip))
	assert.Equal(t,
		filepath.Join("/srv/fx", "csv", "HISTDATA_COM_ASCII_EURUSD_M1_202101.csv"),
		w.CSVPath(zip))
	assert.Equal(t,
		filepath.Join("/srv/fx", "clean", "HISTDATA_COM_ASCII_EURUSD_M1_202101.csv"),
		w.CleanPath(zip))
}

func TestWorkdirEnsure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deep", "fx")
	w := NewWorkdir(root)

	require.NoError(t, w.Ensure())
	for _, dir := range []string{w.Root(), w.ArchiveDir(), w.CSVDir(), w.CleanDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Idempotent on an existing tree.
	assert.NoError(t, w.Ensure())
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, Exists(path))
}

func TestWriteAtomicLeavesNoFileOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	err := WriteAtomic(path, func(w io.Writer) error {
		return errors.New("source truncated")
	})
	require.Error(t, err)
	assert.False(t, Exists(path))

	// No temp debris either.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
