package remote

import "sync"

// HandleTable hands out Handles for backend-specific open-object state.
// Backends embed one to keep the Store contract's integer handles.
type HandleTable[T any] struct {
	mu   sync.Mutex
	next Handle
	open map[Handle]T
}

// Put registers v and returns its new handle.
func (t *HandleTable[T]) Put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == nil {
		t.open = make(map[Handle]T)
	}
	t.next++
	t.open[t.next] = v
	return t.next
}

// Get returns the value behind h.
func (t *HandleTable[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.open[h]
	return v, ok
}

// Take removes h from the table and returns its value.
func (t *HandleTable[T]) Take(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.open[h]
	if ok {
		delete(t.open, h)
	}
	return v, ok
}

// Len reports the number of open handles.
func (t *HandleTable[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Each calls fn for every open handle. fn must not call back into the table.
func (t *HandleTable[T]) Each(fn func(Handle, T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.open {
		fn(h, v)
	}
}

// Lookup returns the value behind h when it has type V. Backends keeping
// readers and writers in one table use it so every handle is unique to the
// store and a reader handle is never taken for a writer.
func Lookup[V any](t *HandleTable[any], h Handle) (V, bool) {
	v, ok := t.Get(h)
	out, isV := v.(V)
	return out, ok && isV
}
