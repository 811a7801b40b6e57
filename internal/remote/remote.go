// Package remote defines the narrow call surface the transfer engine uses to
// reach a remote object store. The store is opaque: objects are addressed by
// collection and name, opened or created to obtain a Handle, and moved with
// chunked Read and Write calls.
//
// Every backend in providers/ implements Store. Failures are reported as
// *StatusError values carrying a negative status code.
package remote

import (
	"context"
)

// Handle identifies an open remote object. Handles are only meaningful to
// the Store that issued them.
type Handle int64

// InvalidHandle is never issued by a Store.
const InvalidHandle Handle = -1

// CreateOptions carries the attributes a remote object is created with.
type CreateOptions struct {
	// FileType is the object type recorded by the store ("unknown" when not classified).
	FileType string
	// Resource names the physical storage resource that receives the object.
	Resource string
}

// Store is the remote object store call surface.
//
// Read returns the number of bytes placed in buf; zero means the end of the
// object. Write returns the number of bytes accepted. A Handle must be
// closed exactly once, after which it is invalid.
type Store interface {
	// Open opens an existing object for reading.
	Open(ctx context.Context, collection, name string) (Handle, error)

	// Create creates (or truncates) an object for writing. size is the
	// expected total length; backends may use it to choose an upload strategy.
	Create(ctx context.Context, collection, name string, size int64, opts CreateOptions) (Handle, error)

	// Read fills buf from the object behind h.
	Read(ctx context.Context, h Handle, buf []byte) (int, error)

	// Write appends buf to the object behind h.
	Write(ctx context.Context, h Handle, buf []byte) (int, error)

	// Close releases h. For objects opened with Create this commits the data.
	Close(ctx context.Context, h Handle) error

	// Remove deletes an object.
	Remove(ctx context.Context, collection, name string) error
}

// Sizer is implemented by stores that can report an object's length without
// opening it. Downloads use it when the caller does not know the size.
type Sizer interface {
	Size(ctx context.Context, collection, name string) (int64, error)
}

// Aborter is implemented by stores that can discard an object opened with
// Create without committing the data written so far. Abort releases h the
// way Close does.
type Aborter interface {
	Abort(ctx context.Context, h Handle) error
}

// Namer is implemented by stores that describe themselves for logs.
type Namer interface {
	Name() string
}

// StoreName returns a short description of s for log fields.
func StoreName(s Store) string {
	if n, ok := s.(Namer); ok {
		return n.Name()
	}
	return "remote"
}
