package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriter stages writes in a temp file next to the target and swaps it
// in with a rename on Commit. Readers of the ledger, credential, and config
// files never observe a partial write: either the old content or the new
// content is on disk, even across a crash mid-Commit.
type AtomicWriter struct {
	target string
	tmp    *os.File
	done   bool
}

// NewAtomicWriter opens a staging file for an atomic update of path,
// creating the parent directory as needed. The staging file lives in the
// same directory so the final rename stays within one filesystem.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".clipsync-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &AtomicWriter{target: path, tmp: tmp}, nil
}

// Write appends to the staging file.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

// Commit flushes the staging file to disk and renames it over the target.
// After Commit the writer is spent.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return fmt.Errorf("atomic write to %s: already finished", w.target)
	}
	w.done = true

	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.target); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort drops the staging file, leaving the target untouched.
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.discard()
	return nil
}

func (w *AtomicWriter) discard() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
