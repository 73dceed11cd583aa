// Package fileutil provides file inspection helpers shared by the scanner
// and the upload client.
package fileutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// DefaultStabilityWindow is the interval between the two size samples used
// to decide that a file is no longer being written.
const DefaultStabilityWindow = 10 * time.Second

// IsComplete reports whether the file at path has finished being written.
// It samples the file size twice, window apart, and returns true iff both
// samples match and the size is greater than zero. Any stat error resolves
// to false so the file is simply retried on the next scan pass.
func IsComplete(path string, window time.Duration) bool {
	if window <= 0 {
		window = DefaultStabilityWindow
	}

	first, err := os.Stat(path)
	if err != nil {
		return false
	}

	time.Sleep(window)

	second, err := os.Stat(path)
	if err != nil {
		return false
	}

	return first.Size() == second.Size() && first.Size() > 0
}

// HashFile computes the streaming SHA-1 digest of the file contents,
// returned as a lowercase hex string. It is the dedup key for the ledger;
// collision avoidance is all that is required of it.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FormatSize renders a byte count in human-readable form.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
