package scanner

import (
	"context"
	"errors"
	"log"
	"time"

	"clipsync/config"
)

// Watcher runs periodic scans while auto-upload is enabled. A tick that
// lands while the previous scan is still running is skipped rather than
// queued.
type Watcher struct {
	scanner  *Scanner
	interval time.Duration
}

// NewWatcher builds a Watcher that scans every interval.
func NewWatcher(s *Scanner, interval time.Duration) *Watcher {
	return &Watcher{scanner: s, interval: interval}
}

// Run scans immediately, then on every tick until the context is done. It
// returns the context error on shutdown.
func (w *Watcher) Run(ctx context.Context, cfg *config.Config, progress ProgressSink) error {
	w.scanOnce(ctx, cfg, progress)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.scanner.Stop()
			return ctx.Err()
		case <-ticker.C:
			w.scanOnce(ctx, cfg, progress)
		}
	}
}

func (w *Watcher) scanOnce(ctx context.Context, cfg *config.Config, progress ProgressSink) {
	res, err := w.scanner.Scan(ctx, cfg, progress)
	switch {
	case errors.Is(err, ErrScanInProgress):
		log.Printf("scanner: previous scan still running, skipping tick")
	case err != nil:
		log.Printf("scanner: scan failed: %v", err)
	default:
		log.Printf("scanner: scan complete: %d folders, %d found, %d uploaded, %d skipped, %d errors",
			res.Scanned, res.Found, res.Uploaded, res.Skipped, res.Errors)
	}
}
