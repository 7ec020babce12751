// Package files manages the on-disk layout of a working directory:
// downloaded archives, extracted CSVs and cleaned CSVs each live in their
// own subdirectory, with deterministic names derived from record identity
// so a resumed run finds earlier artifacts without any extra bookkeeping.
package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	archiveDirName = "zips"
	csvDirName     = "csv"
	cleanDirName   = "clean"
)

// Workdir is the root directory a run operates under.
type Workdir struct {
	root string
}

// NewWorkdir wraps the given root path.
func NewWorkdir(root string) Workdir {
	return Workdir{root: root}
}

// Root returns the working directory root.
func (w Workdir) Root() string { return w.root }

// ArchiveDir returns the directory downloaded archives land in.
func (w Workdir) ArchiveDir() string { return filepath.Join(w.root, archiveDirName) }

// CSVDir returns the directory extracted CSVs land in.
func (w Workdir) CSVDir() string { return filepath.Join(w.root, csvDirName) }

// CleanDir returns the directory cleaned CSVs land in.
func (w Workdir) CleanDir() string { return filepath.Join(w.root, cleanDirName) }

// ArchivePath returns where the named archive is stored.
func (w Workdir) ArchivePath(zipName string) string {
	return filepath.Join(w.ArchiveDir(), zipName)
}

// CSVPath returns where the extracted CSV for the named archive lives.
func (w Workdir) CSVPath(zipName string) string {
	return filepath.Join(w.CSVDir(), stripExt(zipName)+".csv")
}

// CleanPath returns where the cleaned CSV for the named archive lives.
func (w Workdir) CleanPath(zipName string) string {
	return filepath.Join(w.CleanDir(), stripExt(zipName)+".csv")
}

// Ensure creates the working directory tree.
func (w Workdir) Ensure() error {
	for _, dir := range []string{w.root, w.ArchiveDir(), w.CSVDir(), w.CleanDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether a file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic writes data to path through a temp file and rename, so a
// crash mid-write never leaves a truncated artifact behind.
func WriteAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func stripExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
