package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointFileName is the well-known checkpoint file under the working
// directory. JSON lines, one entry per commit, append-only.
const CheckpointFileName = "checkpoint.jsonl"

// CheckpointEntry is one durable per-record progress note. The file holds
// the full history; replaying last-wins per identity reconstructs state.
type CheckpointEntry struct {
	Identity  Identity  `json:"identity"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

// CheckpointStore persists per-record progress so an interrupted run can
// resume. Load is called once at startup; Commit is called by the manager
// only, keeping a single-writer discipline over the file.
type CheckpointStore interface {
	Load() (map[string]CheckpointEntry, error)
	Commit(rec Record) error
	Close() error
}

// FileCheckpointStore is the append-only JSON-lines implementation. Every
// Commit is flushed and fsynced before returning, so a crash loses at most
// the record currently in flight.
type FileCheckpointStore struct {
	path string
	file *os.File
}

// OpenCheckpointStore opens (or creates) the checkpoint file under dir.
func OpenCheckpointStore(dir string) (*FileCheckpointStore, error) {
	path := filepath.Join(dir, CheckpointFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, NewFatalError("cannot open checkpoint file", err)
	}
	return &FileCheckpointStore{path: path, file: file}, nil
}

// Load replays the checkpoint file, last entry per identity winning. A
// corrupted or truncated trailing region is discarded rather than failing
// the load; everything before it is kept.
func (s *FileCheckpointStore) Load() (map[string]CheckpointEntry, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]CheckpointEntry{}, nil
		}
		return nil, NewFatalError("cannot read checkpoint file", err)
	}
	defer file.Close()

	entries := make(map[string]CheckpointEntry)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry CheckpointEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Unreadable tail, typically a write cut short by a crash.
			// Everything parsed so far is valid committed state.
			break
		}
		entries[entry.Identity.Key()] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, NewFatalError("cannot read checkpoint file", err)
	}
	return entries, nil
}

// Commit appends one entry and syncs it to stable storage before returning.
func (s *FileCheckpointStore) Commit(rec Record) error {
	entry := CheckpointEntry{
		Identity:  rec.Identity,
		Status:    rec.Status,
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		At:        time.Now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return NewFatalError("cannot encode checkpoint entry", err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return NewFatalError(fmt.Sprintf("cannot write checkpoint for %s", rec.Key()), err)
	}
	if err := s.file.Sync(); err != nil {
		return NewFatalError(fmt.Sprintf("cannot sync checkpoint for %s", rec.Key()), err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *FileCheckpointStore) Close() error {
	return s.file.Close()
}
