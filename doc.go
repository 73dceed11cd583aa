// Package clipsync uploads finished game clips to YouTube.
//
// It watches configured folders for completed video files and uploads each
// file exactly once, sorting uploads into per-game playlists.
//
// Overview
//
// The sub-packages compose into a scan-and-upload pipeline:
//
//   - scanner: Walks the configured folders and drives uploads through a
//     bounded worker pool
//   - youtube: Uploads files and resolves playlists via the YouTube Data API
//   - auth: OAuth authorization with persisted, auto-refreshing credentials
//   - storage: The dedup ledger and atomic file persistence
//   - config: Configuration loading, validation, and saving
//   - http: Rate-limited, circuit-broken HTTP transport
//
// Quick Start
//
// Scan every configured folder once:
//
//	cfg, err := config.Load(configPath)
//	if err != nil {
//		log.Fatal(err)
//	}
//	uploader := youtube.NewUploader(service, ledger)
//	resolver := youtube.NewPlaylistResolver(service)
//	s := scanner.New(uploader, resolver)
//	result, err := s.Scan(ctx, cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("uploaded %d, skipped %d\n", result.Uploaded, result.Skipped)
//
// Scan continuously:
//
//	w := scanner.NewWatcher(s, cfg.ScanInterval())
//	err = w.Run(ctx, cfg, nil)
//
// Upload Guarantees
//
// A file is transmitted at most once. Before any network traffic the
// uploader checks that the file has stopped growing (two size samples,
// ten seconds apart) and that neither its content hash nor its path is
// already recorded in the ledger. The ledger is written atomically after
// every successful upload, so a crash between scans never causes a
// duplicate.
//
// Configuration
//
// Settings load from three sources, highest priority first:
//
//   1. Environment variables (CLIPSYNC_PRIVACY, CLIPSYNC_AUTO_UPLOAD, ...)
//   2. The JSON config file
//   3. Default values
//
// Error Handling
//
// Operations return errors supporting the standard patterns:
//
//	if errors.Is(err, clipsync.ErrScanInProgress) {
//		// a scan is already running
//	}
//
//	var retryErr *clipsync.RetryableError
//	if errors.As(err, &retryErr) {
//		fmt.Printf("gave up after %d attempts: %v\n", retryErr.Attempts, retryErr.Err)
//	}
package clipsync
