// Package journal keeps a CSV history of finished transfers: one row per
// completed, failed or cancelled task.
package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/transfer"
)

// Status values written to the status column.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var header = []string{
	"id", "time", "direction", "file", "collection", "local_path", "store",
	"bytes", "chunks", "duration_ms", "status", "code", "error",
}

// Entry is one row of the journal.
type Entry struct {
	ID         string
	Time       time.Time
	Direction  string
	File       string
	Collection string
	LocalPath  string
	Store      string
	Bytes      int64
	Chunks     int
	Duration   time.Duration
	Status     string
	Code       int // remote status code for failures, 0 otherwise
	Error      string
}

// FromTask builds an entry for a finished queue task.
func FromTask(task transfer.TaskSnapshot) Entry {
	req := task.Request
	e := Entry{
		ID:         uuid.NewString(),
		Time:       task.CompletedAt,
		Direction:  req.Direction.String(),
		File:       req.FileName,
		Collection: req.Collection,
		LocalPath:  req.LocalPath(),
		Status:     StatusCompleted,
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if req.Connection != nil {
		e.Store = remote.StoreName(req.Connection)
	}
	if res := task.Result; res != nil {
		e.Bytes = res.BytesTransferred
		e.Chunks = res.Chunks
		e.Duration = res.Duration
		if res.Cancelled {
			e.Status = StatusCancelled
		}
	}
	if task.Error != nil {
		e.Status = StatusFailed
		e.Error = task.Error.Error()
		e.Code = transfer.CodeOf(task.Error)
	} else if task.State == transfer.TaskCancelled {
		e.Status = StatusCancelled
	}
	return e
}

func (e Entry) record() []string {
	return []string{
		e.ID,
		e.Time.UTC().Format(time.RFC3339),
		e.Direction,
		e.File,
		e.Collection,
		e.LocalPath,
		e.Store,
		strconv.FormatInt(e.Bytes, 10),
		strconv.Itoa(e.Chunks),
		strconv.FormatInt(e.Duration.Milliseconds(), 10),
		e.Status,
		strconv.Itoa(e.Code),
		e.Error,
	}
}

func parseRecord(rec []string) (Entry, error) {
	if len(rec) != len(header) {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", len(header), len(rec))
	}
	t, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid time %q: %w", rec[1], err)
	}
	bytes, err := strconv.ParseInt(rec[7], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid bytes %q: %w", rec[7], err)
	}
	chunks, err := strconv.Atoi(rec[8])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid chunks %q: %w", rec[8], err)
	}
	ms, err := strconv.ParseInt(rec[9], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid duration %q: %w", rec[9], err)
	}
	code, err := strconv.Atoi(rec[11])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid code %q: %w", rec[11], err)
	}
	return Entry{
		ID:         rec[0],
		Time:       t,
		Direction:  rec[2],
		File:       rec[3],
		Collection: rec[4],
		LocalPath:  rec[5],
		Store:      rec[6],
		Bytes:      bytes,
		Chunks:     chunks,
		Duration:   time.Duration(ms) * time.Millisecond,
		Status:     rec[10],
		Code:       code,
		Error:      rec[12],
	}, nil
}

// Journal appends entries to a CSV file. Safe for concurrent use within
// one process.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New returns a journal writing to path. The file is created on the first
// Append.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes entries, adding the header when the file is new.
func (j *Journal) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write journal header: %w", err)
		}
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := w.Write(e.record()); err != nil {
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Read returns every entry in the journal, oldest first. A missing file
// is an empty journal.
func (j *Journal) Read() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []Entry
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
		line++
		if line == 1 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		e, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Tail returns the last n entries.
func (j *Journal) Tail(n int) ([]Entry, error) {
	entries, err := j.Read()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
