package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/remote"
)

func TestStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := New()

	h, err := s.Create(ctx, "/home/dw/interviews", "clip.wav", 11, remote.CreateOptions{FileType: "unknown", Resource: "unix-sdsc"})
	require.NoError(t, err)
	n, err := s.Write(ctx, h, []byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = s.Write(ctx, h, []byte("world"))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx, h))

	obj, ok := s.Get("/home/dw/interviews", "clip.wav")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(obj.Data))
	assert.Equal(t, "unix-sdsc", obj.Resource)

	size, err := s.Size(ctx, "/home/dw/interviews", "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	h, err = s.Open(ctx, "/home/dw/interviews", "clip.wav")
	require.NoError(t, err)
	buf := make([]byte, 4)
	var got []byte
	for {
		n, err := s.Read(ctx, h, buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	require.NoError(t, s.Close(ctx, h))
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, []int{4, 4, 3}, s.ReadSizes())
	assert.Equal(t, 0, s.OpenHandles())
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Open(ctx, "c", "missing")
	assert.True(t, errors.Is(err, remote.ErrNotFound))

	assert.True(t, errors.Is(s.Remove(ctx, "c", "missing"), remote.ErrNotFound))

	_, err = s.Read(ctx, 99, make([]byte, 1))
	assert.True(t, errors.Is(err, remote.ErrBadHandle))

	assert.True(t, errors.Is(s.Close(ctx, 99), remote.ErrBadHandle))

	h, err := s.Create(ctx, "c", "w", 0, remote.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Read(ctx, h, make([]byte, 1))
	assert.True(t, errors.Is(err, remote.ErrBadHandle), "read on a write handle")
}

func TestStore_FailAfter(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("c", "n", make([]byte, 100))
	s.FailAfter("read", 2, remote.StatusIO)

	h, err := s.Open(ctx, "c", "n")
	require.NoError(t, err)
	buf := make([]byte, 10)

	for i := 0; i < 2; i++ {
		_, err := s.Read(ctx, h, buf)
		require.NoError(t, err)
	}
	_, err = s.Read(ctx, h, buf)
	require.Error(t, err)
	assert.Equal(t, remote.StatusIO, remote.CodeOf(err))
	assert.Equal(t, 3, s.Calls("read"))
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	s.Put("c", "n", []byte("x"))

	_, err := s.Open(ctx, "c", "n")
	assert.True(t, errors.Is(err, remote.ErrCancelled))
}
