// Package memory is an in-process remote store. Tests use its fault
// injection and call recording; the CLI's "memory" backend uses it for dry runs.
package memory

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/transana/srbxfer/internal/remote"
)

// Object is a stored object and the attributes it was created with.
type Object struct {
	Data     []byte
	FileType string
	Resource string
}

type openObject struct {
	key    string
	coll   string
	name   string
	offset int
	write  bool
}

// Store is a remote.Store backed by a map.
type Store struct {
	mu      sync.Mutex
	objects map[string]*Object
	handles remote.HandleTable[*openObject]

	faults map[string]*fault
	calls  map[string]int
	reads  []int
	writes []int
}

type fault struct {
	after int // calls that succeed before the fault fires
	code  int
	seen  int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]*Object),
		faults:  make(map[string]*fault),
		calls:   make(map[string]int),
	}
}

var _ remote.Store = (*Store)(nil)
var _ remote.Sizer = (*Store)(nil)

func key(collection, name string) string {
	return path.Join("/", collection, name)
}

// Name implements remote.Namer.
func (s *Store) Name() string { return "memory" }

// Put stores data directly, bypassing the handle calls.
func (s *Store) Put(collection, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key(collection, name)] = &Object{Data: append([]byte(nil), data...)}
}

// Get returns a copy of a stored object.
func (s *Store) Get(collection, name string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key(collection, name)]
	if !ok {
		return Object{}, false
	}
	cp := *o
	cp.Data = append([]byte(nil), o.Data...)
	return cp, true
}

// Keys lists stored object keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FailAfter makes the call named op ("open", "create", "read", "write",
// "close", "remove", "size") fail with code after n successful calls.
func (s *Store) FailAfter(op string, n int, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{after: n, code: code}
}

// Calls reports how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ReadSizes returns the byte count of every successful Read, in order.
func (s *Store) ReadSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

// WriteSizes returns the byte count of every successful Write, in order.
func (s *Store) WriteSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writes...)
}

// OpenHandles reports handles not yet closed.
func (s *Store) OpenHandles() int {
	return s.handles.Len()
}

// enter records a call and returns the injected fault code, if any.
// Caller holds s.mu.
func (s *Store) enter(op string) int {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok {
		return 0
	}
	f.seen++
	if f.seen > f.after {
		return f.code
	}
	return 0
}

func (s *Store) Open(ctx context.Context, collection, name string) (remote.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("open"); code != 0 {
		return remote.InvalidHandle, remote.NewError("open", collection, name, code, nil)
	}
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("open", collection, name, 0, err)
	}
	k := key(collection, name)
	if _, ok := s.objects[k]; !ok {
		return remote.InvalidHandle, remote.NewError("open", collection, name, remote.StatusNotFound, nil)
	}
	return s.handles.Put(&openObject{key: k, coll: collection, name: name}), nil
}

func (s *Store) Create(ctx context.Context, collection, name string, size int64, opts remote.CreateOptions) (remote.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("create"); code != 0 {
		return remote.InvalidHandle, remote.NewError("create", collection, name, code, nil)
	}
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
	}
	k := key(collection, name)
	capacity := 0
	if size > 0 && size < 1<<30 {
		capacity = int(size)
	}
	s.objects[k] = &Object{
		Data:     make([]byte, 0, capacity),
		FileType: opts.FileType,
		Resource: opts.Resource,
	}
	return s.handles.Put(&openObject{key: k, coll: collection, name: name, write: true}), nil
}

func (s *Store) Read(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("read"); code != 0 {
		return 0, remote.NewError("read", "", "", code, nil)
	}
	oo, ok := s.handles.Get(h)
	if !ok || oo.write {
		return 0, remote.HandleError("read", h)
	}
	obj, ok := s.objects[oo.key]
	if !ok {
		return 0, remote.NewError("read", oo.coll, oo.name, remote.StatusNotFound, nil)
	}
	n := copy(buf, obj.Data[min(oo.offset, len(obj.Data)):])
	oo.offset += n
	if n > 0 {
		s.reads = append(s.reads, n)
	}
	return n, nil
}

func (s *Store) Write(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("write"); code != 0 {
		return 0, remote.NewError("write", "", "", code, nil)
	}
	oo, ok := s.handles.Get(h)
	if !ok || !oo.write {
		return 0, remote.HandleError("write", h)
	}
	obj, ok := s.objects[oo.key]
	if !ok {
		return 0, remote.NewError("write", oo.coll, oo.name, remote.StatusNotFound, nil)
	}
	obj.Data = append(obj.Data, buf...)
	oo.offset += len(buf)
	s.writes = append(s.writes, len(buf))
	return len(buf), nil
}

func (s *Store) Close(ctx context.Context, h remote.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oo, ok := s.handles.Take(h)
	if !ok {
		return remote.HandleError("close", h)
	}
	if code := s.enter("close"); code != 0 {
		return remote.NewError("close", oo.coll, oo.name, code, nil)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, collection, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("remove"); code != 0 {
		return remote.NewError("remove", collection, name, code, nil)
	}
	k := key(collection, name)
	if _, ok := s.objects[k]; !ok {
		return remote.NewError("remove", collection, name, remote.StatusNotFound, nil)
	}
	delete(s.objects, k)
	return nil
}

// Size implements remote.Sizer.
func (s *Store) Size(ctx context.Context, collection, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.enter("size"); code != 0 {
		return 0, remote.NewError("size", collection, name, code, nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, remote.NewError("size", collection, name, 0, err)
	}
	obj, ok := s.objects[key(collection, name)]
	if !ok {
		return 0, remote.NewError("size", collection, name, remote.StatusNotFound, nil)
	}
	return int64(len(obj.Data)), nil
}
