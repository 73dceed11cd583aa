// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipsync/storage"
)

// Folder is a watched directory whose videos upload into one playlist.
type Folder struct {
	// Path is the directory to scan.
	Path string `json:"path"`

	// GameName labels the folder and names its playlist. It is also the
	// middle segment of generated video titles.
	GameName string `json:"gameName"`

	// PlaylistID is the resolved playlist. Empty until the first scan
	// resolves (or creates) the playlist named GameName.
	PlaylistID string `json:"playlistId,omitempty"`

	// Description is attached to every video uploaded from this folder.
	Description string `json:"description,omitempty"`
}

// Config holds all application configuration. The JSON keys match the
// control-panel settings file, so an existing settings file loads as-is.
type Config struct {
	// PlayerName is the leading segment of generated video titles.
	PlayerName string `json:"playerName"`

	// Folders are the watched directories.
	Folders []Folder `json:"folders"`

	// AutoUpload enables the periodic watcher.
	AutoUpload bool `json:"autoUpload"`

	// ScanIntervalMinutes is the watcher period.
	ScanIntervalMinutes int `json:"scanIntervalMinutes"`

	// DeleteAfterUpload removes local files once their upload succeeds.
	DeleteAfterUpload bool `json:"deleteAfterUpload"`

	// Privacy is the privacy status applied to uploaded videos.
	Privacy string `json:"privacy"`

	// MaxConcurrentUploads bounds the upload worker pool.
	MaxConcurrentUploads int `json:"maxConcurrentUploads"`

	// VideoFormats are the accepted file extensions, with leading dot.
	VideoFormats []string `json:"videoFormats"`
}

// Default returns configuration with safe defaults.
func Default() *Config {
	return &Config{
		Privacy:              "unlisted",
		ScanIntervalMinutes:  5,
		MaxConcurrentUploads: 2,
		VideoFormats:         []string{".mp4", ".mov", ".mkv", ".avi", ".wmv", ".flv", ".webm"},
	}
}

// Load reads configuration from path, then applies environment overrides.
// Priority: env vars > config file > defaults. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Config file is optional.
	default:
		return nil, fmt.Errorf("load config file: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the conventional config location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "clipsync", "config.json")
	}
	return "clipsync.json"
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("CLIPSYNC_PLAYER_NAME"); v != "" {
		c.PlayerName = v
	}
	if v := os.Getenv("CLIPSYNC_AUTO_UPLOAD"); v != "" {
		c.AutoUpload = v == "true" || v == "1"
	}
	if v := os.Getenv("CLIPSYNC_SCAN_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ScanIntervalMinutes = n
		}
	}
	if v := os.Getenv("CLIPSYNC_DELETE_AFTER_UPLOAD"); v != "" {
		c.DeleteAfterUpload = v == "true" || v == "1"
	}
	if v := os.Getenv("CLIPSYNC_PRIVACY"); v != "" {
		c.Privacy = v
	}
	if v := os.Getenv("CLIPSYNC_MAX_CONCURRENT_UPLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentUploads = n
		}
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("scanIntervalMinutes must be positive")
	}
	if c.MaxConcurrentUploads <= 0 {
		return fmt.Errorf("maxConcurrentUploads must be positive")
	}
	switch c.Privacy {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("privacy must be private, unlisted or public, got %q", c.Privacy)
	}
	if len(c.VideoFormats) == 0 {
		return fmt.Errorf("videoFormats must not be empty")
	}
	for _, f := range c.Folders {
		if f.Path == "" {
			return fmt.Errorf("folder path must not be empty")
		}
		if f.GameName == "" && f.PlaylistID == "" {
			return fmt.Errorf("folder %s needs a gameName or a playlistId", f.Path)
		}
	}
	return nil
}

// Save writes the configuration atomically.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	w, err := storage.NewAtomicWriter(path)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return fmt.Errorf("save config: %w", err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// AcceptsFile reports whether name has one of the configured video
// extensions, matched case-insensitively.
func (c *Config) AcceptsFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, f := range c.VideoFormats {
		if ext == strings.ToLower(f) {
			return true
		}
	}
	return false
}

// ScanInterval returns the watcher period as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

// SetPlaylistID records the playlist resolved for a folder path. It returns
// false when no folder matches.
func (c *Config) SetPlaylistID(path, id string) bool {
	for i := range c.Folders {
		if c.Folders[i].Path == path {
			c.Folders[i].PlaylistID = id
			return true
		}
	}
	return false
}
