package buffers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBufferPool(t *testing.T) {
	buf := GetChunkBuffer(400000)
	require.NotNil(t, buf)
	assert.Len(t, *buf, 400000)

	(*buf)[0] = 0xff
	PutChunkBuffer(buf)

	buf2 := GetChunkBuffer(400000)
	require.NotNil(t, buf2)
	assert.Len(t, *buf2, 400000)
	assert.Equal(t, byte(0), (*buf2)[0], "pooled buffers come back cleared")
	PutChunkBuffer(buf2)
}

func TestPoolsAreKeyedBySize(t *testing.T) {
	a := GetChunkBuffer(4096)
	b := GetChunkBuffer(8192)
	assert.Len(t, *a, 4096)
	assert.Len(t, *b, 8192)
	PutChunkBuffer(a)
	PutChunkBuffer(b)

	stats := GetStats()
	assert.GreaterOrEqual(t, stats.Sizes, 2)
	assert.GreaterOrEqual(t, stats.Gets, int64(2))
	assert.GreaterOrEqual(t, stats.Allocations, int64(1))
}

func TestPutNil(t *testing.T) {
	PutChunkBuffer(nil)
	empty := []byte{}
	PutChunkBuffer(&empty)
}
