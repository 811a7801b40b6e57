package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/remote"
)

type fakeBlobs struct {
	mu        sync.Mutex
	committed map[string][]byte
	staged    map[string]map[string][]byte
	metadata  map[string]map[string]*string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		committed: make(map[string][]byte),
		staged:    make(map[string]map[string][]byte),
		metadata:  make(map[string]map[string]*string),
	}
}

func notFound() error {
	return &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: http.StatusNotFound}
}

func (f *fakeBlobs) Download(ctx context.Context, blobName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.committed[blobName]
	if !ok {
		return nil, notFound()
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) Properties(ctx context.Context, blobName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.committed[blobName]
	if !ok {
		return 0, notFound()
	}
	return int64(len(data)), nil
}

func (f *fakeBlobs) StageBlock(ctx context.Context, blobName, blockID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staged[blobName] == nil {
		f.staged[blobName] = make(map[string][]byte)
	}
	f.staged[blobName][blockID] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) CommitBlockList(ctx context.Context, blobName string, blockIDs []string, metadata map[string]*string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, id := range blockIDs {
		block, ok := f.staged[blobName][id]
		if !ok {
			return &azcore.ResponseError{ErrorCode: string(bloberror.InvalidBlockList), StatusCode: http.StatusBadRequest}
		}
		buf.Write(block)
	}
	f.committed[blobName] = buf.Bytes()
	f.metadata[blobName] = metadata
	delete(f.staged, blobName)
	return nil
}

func (f *fakeBlobs) Delete(ctx context.Context, blobName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.committed[blobName]; !ok {
		return notFound()
	}
	delete(f.committed, blobName)
	return nil
}

func TestBlockID_FixedLength(t *testing.T) {
	a, b := blockID(0), blockID(49999)
	assert.Equal(t, len(a), len(b))
	raw, err := base64.StdEncoding.DecodeString(b)
	require.NoError(t, err)
	assert.Equal(t, "0000049999", string(raw))
}

func TestStore_UploadDownload(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	s := NewWithBlobs(fake, "media", "transana", nil)

	data := bytes.Repeat([]byte("abcdefghij"), 100000) // 1,000,000 bytes
	h, err := s.Create(ctx, "/home/dw/interviews", "clip.mpg", int64(len(data)), remote.CreateOptions{Resource: "unix-sdsc"})
	require.NoError(t, err)
	for off := 0; off < len(data); off += 400000 {
		end := min(off+400000, len(data))
		_, err := s.Write(ctx, h, data[off:end])
		require.NoError(t, err)
	}
	require.NoError(t, s.Close(ctx, h))

	blob := "transana/home/dw/interviews/clip.mpg"
	assert.Equal(t, data, fake.committed[blob])
	require.NotNil(t, fake.metadata[blob]["resource"])
	assert.Equal(t, "unix-sdsc", *fake.metadata[blob]["resource"])

	size, err := s.Size(ctx, "/home/dw/interviews", "clip.mpg")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	h, err = s.Open(ctx, "/home/dw/interviews", "clip.mpg")
	require.NoError(t, err)
	buf := make([]byte, 400000)
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
	assert.Equal(t, []int{400000, 400000, 200000}, sizes)

	require.NoError(t, s.Remove(ctx, "/home/dw/interviews", "clip.mpg"))
	assert.Empty(t, fake.committed)
}

func TestStore_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	s := NewWithBlobs(newFakeBlobs(), "media", "", nil)

	_, err := s.Open(ctx, "c", "missing")
	assert.True(t, errors.Is(err, remote.ErrNotFound), "got %v", err)

	err = s.Remove(ctx, "c", "missing")
	assert.True(t, errors.Is(err, remote.ErrNotFound), "got %v", err)

	err = mapError("write", "c", "n", &azcore.ResponseError{StatusCode: http.StatusForbidden})
	assert.True(t, errors.Is(err, remote.ErrAccessDenied), "got %v", err)

	assert.True(t, errors.Is(s.Close(ctx, 5), remote.ErrBadHandle))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Account: "acct"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Container: "media"}, nil, nil)
	assert.Error(t, err)

	s, err := New(Config{Account: "acct", Container: "media", SASToken: "?sv=2022&sig=x"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "azure:media", s.Name())
}

func TestStore_ReaderAndWriterOpenTogether(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	fake.committed["coll/src.wav"] = []byte("source bytes")
	s := NewWithBlobs(fake, "media", "", nil)

	rh, err := s.Open(ctx, "coll", "src.wav")
	require.NoError(t, err)
	wh, err := s.Create(ctx, "coll", "dst.wav", 4, remote.CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, rh, wh)

	_, err = s.Write(ctx, wh, []byte("copy"))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx, wh))
	assert.Equal(t, []byte("copy"), fake.committed["coll/dst.wav"])

	buf := make([]byte, 64)
	n, err := s.Read(ctx, rh, buf)
	require.NoError(t, err)
	assert.Equal(t, "source bytes", string(buf[:n]))
	require.NoError(t, s.Close(ctx, rh))
}

func TestStore_AbortAndRemoveNeverCommit(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	s := NewWithBlobs(fake, "media", "", nil)

	h, err := s.Create(ctx, "coll", "a.wav", 8, remote.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Write(ctx, h, []byte("partial"))
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, h))
	assert.True(t, errors.Is(s.Close(ctx, h), remote.ErrBadHandle))

	h, err = s.Create(ctx, "coll", "b.wav", 8, remote.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Write(ctx, h, []byte("partial"))
	require.NoError(t, err)
	err = s.Remove(ctx, "coll", "b.wav")
	assert.True(t, errors.Is(err, remote.ErrNotFound))
	assert.True(t, errors.Is(s.Close(ctx, h), remote.ErrBadHandle))

	assert.Empty(t, fake.committed)
}
