// Package scanner walks the configured folders and drives uploads through a
// bounded worker pool. One scan runs at a time; folders are visited in
// configuration order and per-file failures never abort the pass.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clipsync/config"
	"clipsync/youtube"
)

// ErrScanInProgress is returned by Scan when a scan is already running.
var ErrScanInProgress = errors.New("scan already in progress")

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// Status labels a progress event or result detail.
type Status string

const (
	StatusScanning  Status = "scanning"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Event is a progress notification. The sink is called synchronously from
// scan goroutines and must not block.
type Event struct {
	File     string
	Folder   string
	Status   Status
	Progress int
	Err      error
}

// ProgressSink receives scan progress. A nil sink is legal.
type ProgressSink func(Event)

// Detail describes the terminal state of one file or folder.
type Detail struct {
	File    string
	Folder  string
	Status  Status
	Message string
}

// Result aggregates the outcome of one scan pass.
type Result struct {
	// Scanned is the number of folders visited.
	Scanned int
	// Found is the number of candidate video files discovered.
	Found int
	// Uploaded counts files transmitted by this pass.
	Uploaded int
	// Skipped counts files left alone: already uploaded or not yet complete.
	Skipped int
	// Errors counts per-file and per-folder failures.
	Errors int
	// Details holds one entry per terminal state.
	Details []Detail
}

// Uploader transmits a single file. *youtube.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, req youtube.UploadRequest) (*youtube.UploadResult, error)
}

// Resolver maps a playlist name to an ID. *youtube.PlaylistResolver
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Saver persists a config mutated during the scan, such as a backfilled
// playlist ID.
type Saver func(*config.Config) error

// Scanner orchestrates scan passes over the configured folders.
type Scanner struct {
	uploader Uploader
	resolver Resolver

	// SaveConfig, when non-nil, is called after a playlist ID is backfilled
	// into the config. Save failures are logged, never fatal.
	SaveConfig Saver

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
}

// New builds a Scanner over an uploader and a playlist resolver.
func New(uploader Uploader, resolver Resolver) *Scanner {
	return &Scanner{
		uploader: uploader,
		resolver: resolver,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop asks the running scan to stop submitting new uploads. Uploads already
// in flight run to completion. Stop is a no-op when no scan is running.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateScanning && s.stopCh != nil {
		select {
		case <-s.stopCh:
			// already stopped
		default:
			close(s.stopCh)
		}
	}
}

// Scan walks every configured folder once, uploading each candidate file
// through a worker pool of cfg.MaxConcurrentUploads. A second Scan while one
// is running returns ErrScanInProgress. Per-file failures are aggregated in
// the result; only a refused start returns an error.
func (s *Scanner) Scan(ctx context.Context, cfg *config.Config, progress ProgressSink) (*Result, error) {
	s.mu.Lock()
	if s.state == StateScanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.state = StateScanning
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	result := &Result{}
	var resMu sync.Mutex
	sem := make(chan struct{}, cfg.MaxConcurrentUploads)
	var wg sync.WaitGroup

	addDetail := func(d Detail) {
		resMu.Lock()
		result.Details = append(result.Details, d)
		resMu.Unlock()
	}

folders:
	for i := range cfg.Folders {
		folder := cfg.Folders[i]

		select {
		case <-stopCh:
			break folders
		default:
		}

		result.Scanned++
		emit(progress, Event{Folder: folder.Path, Status: StatusScanning})

		// The folder must exist and hold candidate files before anything
		// remote happens; resolving a playlist for a missing or empty
		// folder could create one nothing will ever use.
		files, err := findVideoFiles(cfg, folder.Path)
		if err != nil {
			log.Printf("scanner: folder %s: %v", folder.Path, err)
			resMu.Lock()
			result.Errors++
			resMu.Unlock()
			addDetail(Detail{Folder: folder.Path, Status: StatusError, Message: err.Error()})
			continue
		}
		result.Found += len(files)
		if len(files) == 0 {
			continue
		}

		playlistID, err := s.playlistFor(ctx, cfg, folder)
		if err != nil {
			log.Printf("scanner: folder %s: %v", folder.Path, err)
			resMu.Lock()
			result.Errors++
			resMu.Unlock()
			addDetail(Detail{Folder: folder.Path, Status: StatusError, Message: err.Error()})
			continue
		}

		for _, file := range files {
			// Acquire a worker slot unless the scan has been stopped.
			select {
			case sem <- struct{}{}:
			case <-stopCh:
				break folders
			}

			wg.Add(1)
			go func(folder config.Folder, path, playlistID string) {
				defer wg.Done()
				defer func() { <-sem }()
				s.uploadOne(ctx, cfg, folder, path, playlistID, result, &resMu, addDetail, progress)
			}(folder, file, playlistID)
		}
	}

	wg.Wait()
	return result, nil
}

// playlistFor returns the playlist ID for a folder, resolving and
// backfilling it on first use.
func (s *Scanner) playlistFor(ctx context.Context, cfg *config.Config, folder config.Folder) (string, error) {
	if folder.PlaylistID != "" {
		return folder.PlaylistID, nil
	}
	if folder.GameName == "" {
		return "", nil
	}
	if s.resolver == nil {
		return "", nil
	}

	id, err := s.resolver.Resolve(ctx, folder.GameName)
	if err != nil {
		return "", fmt.Errorf("resolve playlist: %w", err)
	}

	if cfg.SetPlaylistID(folder.Path, id) && s.SaveConfig != nil {
		if err := s.SaveConfig(cfg); err != nil {
			log.Printf("scanner: persisting playlist id for %s: %v", folder.Path, err)
		}
	}
	return id, nil
}

// uploadOne runs inside a worker goroutine and handles a single file.
func (s *Scanner) uploadOne(ctx context.Context, cfg *config.Config, folder config.Folder, path, playlistID string, result *Result, resMu *sync.Mutex, addDetail func(Detail), progress ProgressSink) {
	emit(progress, Event{File: path, Folder: folder.Path, Status: StatusUploading})

	req := youtube.UploadRequest{
		Path:              path,
		Title:             videoTitle(cfg.PlayerName, folder.GameName, path),
		Description:       folder.Description,
		PlaylistID:        playlistID,
		Privacy:           cfg.Privacy,
		DeleteAfterUpload: cfg.DeleteAfterUpload,
		Progress: func(pct int) {
			emit(progress, Event{File: path, Folder: folder.Path, Status: StatusUploading, Progress: pct})
		},
	}

	res, err := s.uploader.Upload(ctx, req)
	if err != nil {
		log.Printf("scanner: upload %s: %v", path, err)
		resMu.Lock()
		result.Errors++
		resMu.Unlock()
		addDetail(Detail{File: path, Folder: folder.Path, Status: StatusError, Message: err.Error()})
		emit(progress, Event{File: path, Folder: folder.Path, Status: StatusError, Err: err})
		return
	}

	switch {
	case res.Skipped:
		resMu.Lock()
		result.Skipped++
		resMu.Unlock()
		addDetail(Detail{File: path, Folder: folder.Path, Status: StatusSkipped, Message: res.Message})
		emit(progress, Event{File: path, Folder: folder.Path, Status: StatusSkipped})
	default:
		resMu.Lock()
		result.Uploaded++
		resMu.Unlock()
		msg := res.Message
		if res.Warning != "" {
			msg = msg + " (" + res.Warning + ")"
		}
		addDetail(Detail{File: path, Folder: folder.Path, Status: StatusUploaded, Message: msg})
		emit(progress, Event{File: path, Folder: folder.Path, Status: StatusUploaded, Progress: 100})
	}
}

// findVideoFiles lists the regular files in dir with an accepted extension,
// in directory order.
func findVideoFiles(cfg *config.Config, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !cfg.AcceptsFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// videoTitle builds "player - game - clip" from the non-empty segments.
func videoTitle(player, game, path string) string {
	clip := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	segments := make([]string, 0, 3)
	for _, s := range []string{player, game, clip} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, " - ")
}

func emit(sink ProgressSink, e Event) {
	if sink != nil {
		sink(e)
	}
}
