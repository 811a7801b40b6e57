package localdir

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/remote"
)

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "home/dw/clip.mpg", objectPath("/home/dw", "clip.mpg"))
	assert.Equal(t, "home/dw/clip.mpg", objectPath("home\\dw", "clip.mpg"))
	assert.Equal(t, "clip.mpg", objectPath("/../..", "clip.mpg"))
}

func TestStore_CreateWriteReadRemove(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := New(fs)

	h, err := s.Create(ctx, "/home/dw/interviews", "clip.mpg", 10, remote.CreateOptions{})
	require.NoError(t, err)
	for _, part := range []string{"0123", "4567", "89"} {
		n, err := s.Write(ctx, h, []byte(part))
		require.NoError(t, err)
		assert.Equal(t, len(part), n)
	}
	require.NoError(t, s.Close(ctx, h))

	data, err := util.ReadFile(fs, "home/dw/interviews/clip.mpg")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	size, err := s.Size(ctx, "/home/dw/interviews", "clip.mpg")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	h, err = s.Open(ctx, "/home/dw/interviews", "clip.mpg")
	require.NoError(t, err)
	buf := make([]byte, 4)
	var sizes []int
	for {
		n, err := s.Read(ctx, h, buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		sizes = append(sizes, n)
	}
	require.NoError(t, s.Close(ctx, h))
	assert.Equal(t, []int{4, 4, 2}, sizes)

	require.NoError(t, s.Remove(ctx, "/home/dw/interviews", "clip.mpg"))
	_, err = fs.Stat("home/dw/interviews/clip.mpg")
	assert.Error(t, err)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New(memfs.New())

	_, err := s.Open(ctx, "c", "missing")
	assert.True(t, errors.Is(err, remote.ErrNotFound), "got %v", err)

	err = s.Remove(ctx, "c", "missing")
	assert.True(t, errors.Is(err, remote.ErrNotFound), "got %v", err)
}

func TestStore_BadHandle(t *testing.T) {
	s := New(memfs.New())
	_, err := s.Write(context.Background(), 7, []byte("x"))
	assert.True(t, errors.Is(err, remote.ErrBadHandle))
}
