package storage

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"
)

const (
	// MaxLedgerEntries caps the ledger at the most recent entries to bound
	// storage; oldest entries are dropped first.
	MaxLedgerEntries = 1000
	// DefaultRetention is how long uploaded records are kept before pruning.
	DefaultRetention = 30 * 24 * time.Hour

	lockTimeout = 5 * time.Second
)

// UploadedRecord is one entry of the dedup ledger: a file that has already
// been uploaded. JSON keys match the uploaded.json layout of the original
// desktop app so existing ledgers keep working.
type UploadedRecord struct {
	// FileHash is the SHA-1 content digest of the uploaded file.
	FileHash string `json:"fileHash"`
	// FilePath is the absolute local path at upload time.
	FilePath string `json:"filePath"`
	// VideoID is the remote video ID assigned by YouTube.
	VideoID string `json:"youtubeId"`
	// Title is the title the video was uploaded with.
	Title string `json:"title"`
	// UploadedAt is when the upload completed.
	UploadedAt time.Time `json:"uploadedAt"`
}

// Ledger is the persisted record of previously uploaded files, used to
// answer "already uploaded?". It is a JSON array on disk, rewritten
// wholesale (atomically) on each mutation. A match on either content hash
// or file path counts as already uploaded, so a moved-but-identical file
// and a rewritten-same-path file are both deduplicated.
//
// All methods are safe for concurrent use; reads and the read-modify-write
// of Record are serialized by a single mutex, and the backing file is
// guarded by an advisory file lock against other processes.
type Ledger struct {
	path string
	lock *FileLock

	mu      sync.Mutex
	records []UploadedRecord
}

// OpenLedger opens (or creates) the ledger at path. Entries older than
// DefaultRetention are pruned opportunistically at open rather than on
// every write.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		lock: NewFileLock(path),
	}

	if err := l.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := l.load(); err != nil {
		l.lock.Unlock()
		return nil, err
	}

	if n, err := l.Prune(DefaultRetention); err != nil {
		log.Printf("storage: ledger prune failed: %v", err)
	} else if n > 0 {
		log.Printf("storage: pruned %d ledger entries older than %v", n, DefaultRetention)
	}

	return l, nil
}

// load reads the JSON file into memory. A missing file yields an empty ledger.
func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.records = nil
			return nil
		}
		return &StorageError{Op: "read", Entity: "ledger", ID: l.path, Err: err}
	}

	if err := json.Unmarshal(data, &l.records); err != nil {
		return &StorageError{Op: "read", Entity: "ledger", ID: l.path, Err: ErrStorageCorrupt}
	}
	return nil
}

// save persists the records to disk atomically. Caller must hold l.mu.
func (l *Ledger) save() error {
	writer, err := NewAtomicWriter(l.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "ledger", ID: l.path, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	records := l.records
	if records == nil {
		records = []UploadedRecord{}
	}
	if err := encoder.Encode(records); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "ledger", ID: l.path, Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "ledger", ID: l.path, Err: err}
	}
	return nil
}

// IsUploaded reports whether any stored record matches the content hash OR
// the file path.
func (l *Ledger) IsUploaded(hash, path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if (hash != "" && rec.FileHash == hash) || (path != "" && rec.FilePath == path) {
			return true
		}
	}
	return false
}

// Record appends an uploaded record and rewrites the ledger file. The
// ledger is capped at MaxLedgerEntries; the oldest entries are dropped
// first. Append and persist happen under one critical section so
// concurrent upload workers cannot lose updates.
func (l *Ledger) Record(rec UploadedRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}

	l.records = append(l.records, rec)
	if len(l.records) > MaxLedgerEntries {
		l.records = l.records[len(l.records)-MaxLedgerEntries:]
	}

	return l.save()
}

// Prune removes entries older than maxAge and reports how many were
// dropped. The file is only rewritten when something was removed.
func (l *Ledger) Prune(maxAge time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	kept := l.records[:0]
	for _, rec := range l.records {
		if rec.UploadedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}

	dropped := len(l.records) - len(kept)
	if dropped == 0 {
		return 0, nil
	}

	l.records = kept
	if err := l.save(); err != nil {
		return dropped, err
	}
	return dropped, nil
}

// Len returns the number of records currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close releases the file lock held by the ledger.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lock.Unlock()
}
