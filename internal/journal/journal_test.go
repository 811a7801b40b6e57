package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/remote/providers/memory"
	"github.com/transana/srbxfer/internal/transfer"
)

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.csv")
	j := New(path)

	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, j.Append(Entry{
		Time: when, Direction: "upload", File: "interview.mpg", Collection: "project",
		LocalPath: "/media/interview.mpg", Store: "memory",
		Bytes: 1000000, Chunks: 3, Duration: 1500 * time.Millisecond, Status: StatusCompleted,
	}))
	require.NoError(t, j.Append(Entry{
		Time: when.Add(time.Minute), Direction: "download", File: "clip, take 2.wav",
		Status: StatusFailed, Code: remote.StatusIO, Error: "remote read failed",
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "id,time,direction"), "header written once")

	entries, err := j.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.NotEmpty(t, first.ID)
	assert.True(t, when.Equal(first.Time))
	assert.Equal(t, "interview.mpg", first.File)
	assert.Equal(t, int64(1000000), first.Bytes)
	assert.Equal(t, 3, first.Chunks)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)

	second := entries[1]
	assert.Equal(t, "clip, take 2.wav", second.File)
	assert.Equal(t, StatusFailed, second.Status)
	assert.Equal(t, remote.StatusIO, second.Code)
}

func TestReadMissingFile(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "none.csv"))
	entries, err := j.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("only,three,fields\n"), 0o600))

	_, err := New(path).Read()
	assert.Error(t, err)
}

func TestTail(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "h.csv"))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, j.Append(Entry{Time: time.Now(), File: name, Status: StatusCompleted}))
	}

	last, err := j.Tail(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].File)
	assert.Equal(t, "c", last[1].File)
}

func TestFromTask(t *testing.T) {
	store := memory.New()
	req := transfer.Request{
		FileName: "a.wav", FileSize: 10, LocalDir: "/media/",
		Connection: store, Collection: "c", Direction: transfer.Upload,
	}

	done := transfer.TaskSnapshot{Request: req, State: transfer.TaskCompleted,
		Result: &transfer.Result{BytesTransferred: 10, Chunks: 1}}
	e := FromTask(done)
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "upload", e.Direction)
	assert.Equal(t, "/media/a.wav", e.LocalPath)
	assert.Equal(t, "memory", e.Store)
	assert.Equal(t, int64(10), e.Bytes)

	cancelled := transfer.TaskSnapshot{Request: req, State: transfer.TaskCancelled,
		Result: &transfer.Result{BytesTransferred: 4, Cancelled: true}}
	assert.Equal(t, StatusCancelled, FromTask(cancelled).Status)

	skipped := transfer.TaskSnapshot{Request: req, State: transfer.TaskCancelled}
	assert.Equal(t, StatusCancelled, FromTask(skipped).Status)

	failErr := &transfer.RemoteError{Op: "write", Code: remote.StatusAccessDenied, Err: errors.New("denied")}
	failed := transfer.TaskSnapshot{Request: req, State: transfer.TaskFailed, Error: failErr}
	fe := FromTask(failed)
	assert.Equal(t, StatusFailed, fe.Status)
	assert.Equal(t, remote.StatusAccessDenied, fe.Code)
	assert.Contains(t, fe.Error, "denied")
}
