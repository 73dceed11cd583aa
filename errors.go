package clipsync

import (
	"clipsync/auth"
	"clipsync/internal/retry"
	"clipsync/scanner"
	"clipsync/storage"
	"clipsync/youtube"
)

// Type aliases for convenient error handling.
type (
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// StorageError wraps errors during ledger and credential persistence.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrScanInProgress indicates a scan was requested while one is running.
	ErrScanInProgress = scanner.ErrScanInProgress

	// ErrNotReady indicates a file is still being written.
	ErrNotReady = youtube.ErrNotReady
	// ErrQuotaExceeded indicates the daily API quota is exhausted.
	ErrQuotaExceeded = youtube.ErrQuotaExceeded

	// ErrAuthDenied indicates the user rejected the consent prompt.
	ErrAuthDenied = auth.ErrAuthDenied
	// ErrAuthExpired indicates the stored credential can no longer be refreshed.
	ErrAuthExpired = auth.ErrAuthExpired
	// ErrNotAuthenticated indicates no credential is available.
	ErrNotAuthenticated = auth.ErrNotAuthenticated

	// ErrStorageCorrupt indicates a persisted file failed to parse.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring the ledger lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable reports whether an error is worth retrying.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
