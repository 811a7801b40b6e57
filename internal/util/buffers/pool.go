// Package buffers provides reusable chunk buffers, pooled per chunk size,
// so back-to-back transfers do not reallocate their copy buffer.
package buffers

import (
	"sync"
	"sync/atomic"
)

// Pool monitoring counters
var (
	allocations atomic.Int64 // buffers created
	gets        atomic.Int64 // buffers handed out
)

var (
	poolsMu sync.Mutex
	pools   = map[int]*sync.Pool{}
)

func poolFor(size int) *sync.Pool {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	p, ok := pools[size]
	if !ok {
		p = &sync.Pool{
			New: func() interface{} {
				allocations.Add(1)
				buf := make([]byte, size)
				return &buf
			},
		}
		pools[size] = p
	}
	return p
}

// GetChunkBuffer retrieves a buffer of exactly size bytes.
// The buffer must be returned with PutChunkBuffer when done.
//
// Usage:
//
//	buf := buffers.GetChunkBuffer(chunkSize)
//	defer buffers.PutChunkBuffer(buf)
//	n, err := store.Read(ctx, h, *buf)
//	// Use (*buf)[:n] for actual data
func GetChunkBuffer(size int) *[]byte {
	gets.Add(1)
	return poolFor(size).Get().(*[]byte)
}

// PutChunkBuffer returns a buffer to the pool for its size.
// The buffer is cleared so file contents do not outlive the transfer.
func PutChunkBuffer(buf *[]byte) {
	if buf == nil || len(*buf) == 0 {
		return
	}
	clear(*buf)
	poolFor(len(*buf)).Put(buf)
}

// Stats returns current buffer pool statistics
type Stats struct {
	Sizes       int   // distinct chunk sizes pooled
	Allocations int64 // buffers created
	Gets        int64 // buffers handed out
}

// GetStats returns a snapshot of pool usage.
func GetStats() Stats {
	poolsMu.Lock()
	sizes := len(pools)
	poolsMu.Unlock()
	return Stats{
		Sizes:       sizes,
		Allocations: allocations.Load(),
		Gets:        gets.Load(),
	}
}
