package fileutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsComplete_StableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("stable contents"), 0644); err != nil {
		t.Fatal(err)
	}

	if !IsComplete(path, 10*time.Millisecond) {
		t.Error("IsComplete() = false for a stable non-empty file, want true")
	}
}

func TestIsComplete_GrowingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		f.Write([]byte(" more bytes"))
		f.Sync()
	}()

	if IsComplete(path, 50*time.Millisecond) {
		t.Error("IsComplete() = true while the file is still growing, want false")
	}
	<-done
}

func TestIsComplete_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if IsComplete(path, 5*time.Millisecond) {
		t.Error("IsComplete() = true for an empty file, want false")
	}
}

func TestIsComplete_MissingFile(t *testing.T) {
	if IsComplete(filepath.Join(t.TempDir(), "nope.mp4"), 5*time.Millisecond) {
		t.Error("IsComplete() = true for a missing file, want false")
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	// sha1("hello world")
	want := "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
	if got != want {
		t.Errorf("HashFile() = %s, want %s", got, want)
	}
}

func TestHashFile_Missing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("HashFile() error = nil for missing file, want error")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{50 * 1024 * 1024, "50.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %s, want %s", tt.bytes, got, tt.want)
		}
	}
}
