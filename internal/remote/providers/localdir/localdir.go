// Package localdir stands a directory tree in for the remote store. Each
// collection is a subdirectory of the root; objects are plain files.
package localdir

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/transana/srbxfer/internal/remote"
)

type openFile struct {
	f    billy.File
	coll string
	name string
	eof  bool
}

// Store is a remote.Store over a billy filesystem.
type Store struct {
	fs      billy.Filesystem
	handles remote.HandleTable[*openFile]
}

var _ remote.Store = (*Store)(nil)
var _ remote.Sizer = (*Store)(nil)

// New returns a Store rooted at fs.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewOS returns a Store rooted at dir on the host filesystem.
func NewOS(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return New(osfs.New(dir)), nil
}

// Name implements remote.Namer.
func (s *Store) Name() string { return "localdir:" + s.fs.Root() }

// objectPath maps collection/name into the root. Collections are absolute
// paths in the store's namespace; leading slashes and ".." are dropped.
func objectPath(collection, name string) string {
	p := path.Clean("/" + strings.ReplaceAll(collection, "\\", "/") + "/" + name)
	return strings.TrimPrefix(p, "/")
}

func (s *Store) Open(ctx context.Context, collection, name string) (remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("open", collection, name, 0, err)
	}
	f, err := s.fs.Open(objectPath(collection, name))
	if err != nil {
		return remote.InvalidHandle, remote.NewError("open", collection, name, 0, err)
	}
	return s.handles.Put(&openFile{f: f, coll: collection, name: name}), nil
}

func (s *Store) Create(ctx context.Context, collection, name string, size int64, opts remote.CreateOptions) (remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
	}
	p := objectPath(collection, name)
	if dir := path.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
		}
	}
	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
	}
	return s.handles.Put(&openFile{f: f, coll: collection, name: name}), nil
}

// Read fills buf as far as the file allows, so every call but the last
// returns a full chunk.
func (s *Store) Read(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	of, ok := s.handles.Get(h)
	if !ok {
		return 0, remote.HandleError("read", h)
	}
	if of.eof {
		return 0, nil
	}
	n, err := io.ReadFull(of.f, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		of.eof = true
		return n, nil
	case err != nil:
		return n, remote.NewError("read", of.coll, of.name, remote.StatusIO, err)
	}
	return n, nil
}

func (s *Store) Write(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	of, ok := s.handles.Get(h)
	if !ok {
		return 0, remote.HandleError("write", h)
	}
	n, err := of.f.Write(buf)
	if err != nil {
		return n, remote.NewError("write", of.coll, of.name, remote.StatusIO, err)
	}
	return n, nil
}

func (s *Store) Close(ctx context.Context, h remote.Handle) error {
	of, ok := s.handles.Take(h)
	if !ok {
		return remote.HandleError("close", h)
	}
	if err := of.f.Close(); err != nil {
		return remote.NewError("close", of.coll, of.name, remote.StatusIO, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, collection, name string) error {
	if err := s.fs.Remove(objectPath(collection, name)); err != nil {
		return remote.NewError("remove", collection, name, 0, err)
	}
	return nil
}

// Size implements remote.Sizer.
func (s *Store) Size(ctx context.Context, collection, name string) (int64, error) {
	fi, err := s.fs.Stat(objectPath(collection, name))
	if err != nil {
		return 0, remote.NewError("size", collection, name, 0, err)
	}
	return fi.Size(), nil
}
