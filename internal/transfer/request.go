// Package transfer moves one file at a time between a local directory and a
// remote store in fixed-size chunks. A Session runs a single upload or
// download synchronously on the caller's goroutine, reports progress after
// every chunk, and removes the partial copy when the transfer is cancelled
// or fails. A Queue runs several requests one after another.
package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/validation"
)

// Direction says which way the bytes move.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "upload" or "download".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload", "up":
		return Upload, nil
	case "download", "down":
		return Download, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Request describes one transfer. It is not modified while the transfer runs.
type Request struct {
	FileName   string
	FileSize   int64 // bytes to upload; for downloads 0 means ask the store
	LocalDir   string
	Connection remote.Store
	Collection string
	Direction  Direction

	// ChunkSize overrides the session's chunk size when positive.
	ChunkSize int
	// Resource is the storage resource passed to Create on upload.
	Resource string
	// FileType is recorded on the remote object on upload.
	FileType string
}

// LocalPath joins LocalDir and FileName, appending a path separator to
// LocalDir when it lacks one.
func (r *Request) LocalPath() string {
	dir := r.LocalDir
	if dir == "" {
		return r.FileName
	}
	if !strings.HasSuffix(dir, "/") && !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return dir + r.FileName
}

func (r *Request) validate() error {
	if err := validation.ValidateFilename(r.FileName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if r.Connection == nil {
		return fmt.Errorf("%w: no remote connection", ErrInvalidRequest)
	}
	if r.FileSize < 0 {
		return fmt.Errorf("%w: negative file size %d", ErrInvalidRequest, r.FileSize)
	}
	if r.Direction != Upload && r.Direction != Download {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, r.Direction)
	}
	return nil
}

// Result is what a finished transfer reports.
type Result struct {
	BytesTransferred int64
	Chunks           int
	Duration         time.Duration
	Cancelled        bool
}

// Successful reports whether the transfer ran to completion.
func (r *Result) Successful() bool {
	return r != nil && !r.Cancelled
}
