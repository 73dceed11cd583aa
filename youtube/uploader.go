// Package youtube uploads video files to YouTube and associates them with
// playlists. Every upload is gated on file completion and the dedup ledger
// before any network traffic is generated, so a file is transmitted at most
// once even across restarts and concurrent scans.
package youtube

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"google.golang.org/api/googleapi"
	ytapi "google.golang.org/api/youtube/v3"

	"clipsync/internal/fileutil"
	"clipsync/internal/retry"
	"clipsync/storage"
)

// DefaultCategoryID is the YouTube video category for uploads. Category 20
// is "Gaming".
const DefaultCategoryID = "20"

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(pct int)

// UploadRequest describes a single file to upload.
type UploadRequest struct {
	// Path is the absolute path of the video file.
	Path string

	// Title is the video title. Required.
	Title string

	// Description is the video description. Optional.
	Description string

	// PlaylistID, when non-empty, is the playlist the uploaded video is
	// added to. Playlist failures are reported as warnings, not errors.
	PlaylistID string

	// Privacy is the video privacy status: "private", "unlisted" or
	// "public". Defaults to "private".
	Privacy string

	// Tags are attached to the video snippet. Optional.
	Tags []string

	// CategoryID overrides DefaultCategoryID when non-empty.
	CategoryID string

	// DeleteAfterUpload removes the local file after a successful upload.
	// Deletion failures are logged, never returned.
	DeleteAfterUpload bool

	// StabilityWindow overrides the completion-detection window. Zero means
	// fileutil.DefaultStabilityWindow.
	StabilityWindow time.Duration

	// Progress, when non-nil, receives percentage updates during the
	// transfer. Values are monotone non-decreasing across retry attempts.
	Progress ProgressFunc
}

// UploadResult reports the outcome of an Upload call.
type UploadResult struct {
	// Success is true when the file is known to be on YouTube, whether it
	// was transmitted by this call or found in the ledger.
	Success bool

	// Skipped is true when no bytes were transmitted: either the file was
	// already uploaded (Success true) or it is not yet complete on disk
	// (Success false).
	Skipped bool

	// VideoID is the YouTube video ID for successful uploads.
	VideoID string

	// Title echoes the request title.
	Title string

	// Warning holds a non-fatal problem, such as a failed playlist
	// association for an otherwise successful upload.
	Warning string

	// Message is a human-readable outcome summary.
	Message string
}

// Uploader transmits video files to YouTube with retry, ledger-backed
// deduplication and completion gating.
type Uploader struct {
	service   *ytapi.Service
	ledger    *storage.Ledger
	retry     retry.Config
	stability time.Duration
}

// NewUploader builds an Uploader over an authenticated YouTube service and
// an open dedup ledger.
func NewUploader(service *ytapi.Service, ledger *storage.Ledger) *Uploader {
	return &Uploader{
		service:   service,
		ledger:    ledger,
		retry:     retry.DefaultConfig(),
		stability: fileutil.DefaultStabilityWindow,
	}
}

// SetRetryConfig overrides the retry policy for transient upload failures.
func (u *Uploader) SetRetryConfig(cfg retry.Config) {
	u.retry = cfg
}

// Upload transmits one file. Files that are still growing are skipped with
// Success false and a nil error; files already present in the ledger are
// skipped with Success true and no network traffic. Transient API failures
// are retried per the configured policy before the error is returned.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("upload %s: title is required", req.Path)
	}

	if _, err := os.Stat(req.Path); err != nil {
		return nil, fmt.Errorf("upload %s: %w", req.Path, err)
	}

	window := req.StabilityWindow
	if window == 0 {
		window = u.stability
	}
	if !fileutil.IsComplete(req.Path, window) {
		log.Printf("youtube: %s still changing, deferring to next scan", req.Path)
		return &UploadResult{
			Skipped: true,
			Title:   req.Title,
			Message: ErrNotReady.Error(),
		}, nil
	}

	hash, err := fileutil.HashFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: hash: %w", req.Path, err)
	}
	if u.ledger.IsUploaded(hash, req.Path) {
		return &UploadResult{
			Success: true,
			Skipped: true,
			Title:   req.Title,
			Message: "already uploaded",
		}, nil
	}

	videoID, err := u.transmit(ctx, req)
	if err != nil {
		if isQuotaExceeded(err) {
			return nil, fmt.Errorf("upload %s: %w: %v", req.Path, ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("upload %s: %w", req.Path, err)
	}

	result := &UploadResult{
		Success: true,
		VideoID: videoID,
		Title:   req.Title,
		Message: "uploaded",
	}

	if req.PlaylistID != "" {
		if err := u.addToPlaylist(ctx, videoID, req.PlaylistID); err != nil {
			log.Printf("youtube: video %s uploaded but playlist %s association failed: %v", videoID, req.PlaylistID, err)
			result.Warning = fmt.Sprintf("playlist association failed: %v", err)
		}
	}

	rec := storage.UploadedRecord{
		FileHash:   hash,
		FilePath:   req.Path,
		VideoID:    videoID,
		Title:      req.Title,
		UploadedAt: time.Now().UTC(),
	}
	if err := u.ledger.Record(rec); err != nil {
		// The video is live; losing the ledger write risks a duplicate on a
		// future scan, so surface it loudly but keep the success result.
		log.Printf("youtube: recording upload of %s failed: %v", req.Path, err)
		if result.Warning == "" {
			result.Warning = fmt.Sprintf("ledger write failed: %v", err)
		}
	}

	if req.DeleteAfterUpload {
		if err := os.Remove(req.Path); err != nil {
			log.Printf("youtube: delete after upload failed for %s: %v", req.Path, err)
		}
	}

	return result, nil
}

// transmit performs the actual videos.insert call with retry. Each attempt
// rewinds the file; progress never regresses across attempts.
func (u *Uploader) transmit(ctx context.Context, req UploadRequest) (string, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	log.Printf("youtube: uploading %s (%s)", req.Path, fileutil.FormatSize(info.Size()))

	privacy := req.Privacy
	if privacy == "" {
		privacy = "private"
	}
	categoryID := req.CategoryID
	if categoryID == "" {
		categoryID = DefaultCategoryID
	}

	video := &ytapi.Video{
		Snippet: &ytapi.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  categoryID,
		},
		Status: &ytapi.VideoStatus{
			PrivacyStatus: privacy,
		},
	}

	reporter := &progressReader{
		r:     f,
		total: info.Size(),
		fn:    req.Progress,
	}

	var videoID string
	err = retry.Do(ctx, u.retry, isTransientAPIError, func(ctx context.Context) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		reporter.reset()

		call := u.service.Videos.Insert([]string{"snippet", "status"}, video)
		call.Media(reporter, googleapi.ChunkSize(0))
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		videoID = resp.Id
		return nil
	})
	if err != nil {
		return "", err
	}
	reporter.finish()
	return videoID, nil
}

// addToPlaylist inserts the uploaded video into a playlist. Failures here
// never fail the upload.
func (u *Uploader) addToPlaylist(ctx context.Context, videoID, playlistID string) error {
	item := &ytapi.PlaylistItem{
		Snippet: &ytapi.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &ytapi.ResourceId{
				Kind:    "youtube#video",
				VideoId: videoID,
			},
		},
	}
	_, err := u.service.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do()
	return err
}

// progressReader counts bytes as the media body is consumed and reports a
// percentage. lastPct survives reset so a retried attempt never reports a
// lower value than the attempt before it.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	fn      ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.lastPct {
			p.lastPct = pct
			p.fn(pct)
		}
	}
	return n, err
}

// reset rewinds the byte counter for a fresh attempt while keeping lastPct.
func (p *progressReader) reset() {
	p.read = 0
}

// finish reports 100 once the upload call has completed.
func (p *progressReader) finish() {
	if p.fn != nil && p.lastPct < 100 {
		p.lastPct = 100
		p.fn(100)
	}
}
