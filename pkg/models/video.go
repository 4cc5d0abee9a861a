package models

import (
	"fmt"
	"io"
	"time"
)

// FileStatus is the lifecycle status of a VideoFile
type FileStatus string

// FileStatus constants
const (
	FileStatusUploading  FileStatus = "uploading"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// Valid reports whether s is a known file status
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploading, FileStatusProcessing, FileStatusCompleted, FileStatusError:
		return true
	}
	return false
}

// Supported upload MIME types
const (
	MimeTypeMP4       = "video/mp4"
	MimeTypeQuickTime = "video/quicktime"
	MimeTypeWebM      = "video/webm"
)

// MaxVideoFileSize is the largest accepted upload (2 GiB)
const MaxVideoFileSize int64 = 2 * 1024 * 1024 * 1024

// VideoFile references one binary video asset. URL is empty when absent.
type VideoFile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Size      int64      `json:"size"`
	Type      string     `json:"type"`
	URL       string     `json:"url,omitempty"`
	Status    FileStatus `json:"status"`
	Progress  int        `json:"progress"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks the status/progress invariants of a video record
func (v VideoFile) Validate() error {
	if !v.Status.Valid() {
		return fmt.Errorf("unknown video status %q", v.Status)
	}
	if v.Progress < 0 || v.Progress > 100 {
		return fmt.Errorf("video progress %d out of range", v.Progress)
	}
	if v.Status == FileStatusCompleted && v.Progress != 100 {
		return fmt.Errorf("completed video must have progress 100, got %d", v.Progress)
	}
	if v.Size < 0 {
		return fmt.Errorf("video size %d is negative", v.Size)
	}
	return nil
}

// RawFile is a file input handed to the system by a client: its metadata and
// a way to read its bytes.
type RawFile struct {
	Name string
	Size int64
	Type string

	open func() (io.ReadCloser, error)
}

// NewRawFile creates a RawFile whose bytes are produced by open
func NewRawFile(name, mimeType string, size int64, open func() (io.ReadCloser, error)) *RawFile {
	return &RawFile{Name: name, Size: size, Type: mimeType, open: open}
}

// Open returns a reader over the file bytes
func (f *RawFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %q has no content", f.Name)
	}
	return f.open()
}

// Info returns the serialisable metadata of the file
func (f *RawFile) Info() FileInfo {
	return FileInfo{Name: f.Name, Size: f.Size, Type: f.Type}
}

// FileInfo is the metadata view of a RawFile
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}
