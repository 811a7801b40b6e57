// timing.go - phase and per-chunk timing for diagnosing slow transfers.
//
// Enable with SRBXFER_TIMING=1. Output format:
//
//	[TIMING] upload interview.mpg: started
//	[TIMING] upload interview.mpg chunks: 3 chunks, 976.6 KB total, avg=12.1 MB/s slowest=41ms
//	[TIMING] upload interview.mpg: 95ms (total 976.6 KB at 10.0 MB/s)
package transfer

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/transana/srbxfer/internal/constants"
)

// TimingEnabled reports whether SRBXFER_TIMING=1 is set.
func TimingEnabled() bool {
	return os.Getenv(constants.EnvPrefix+"TIMING") == "1"
}

// TimingLog writes a [TIMING] line to w when timing is enabled.
// If w is nil, os.Stderr is used.
func TimingLog(w io.Writer, format string, args ...interface{}) {
	if !TimingEnabled() {
		return
	}
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[TIMING] %s\n", fmt.Sprintf(format, args...))
}

// Timer tracks elapsed time for a named phase. Stop is idempotent.
type Timer struct {
	name    string
	start   time.Time
	w       io.Writer
	stopped int32 // atomic flag
}

// StartTimer creates a timer and logs the start if timing is enabled.
func StartTimer(w io.Writer, name string) *Timer {
	if w == nil {
		w = os.Stderr
	}
	t := &Timer{name: name, start: time.Now(), w: w}
	if TimingEnabled() {
		fmt.Fprintf(w, "[TIMING] %s: started\n", name)
	}
	return t
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) && TimingEnabled() {
		fmt.Fprintf(t.w, "[TIMING] %s: %v\n", t.name, elapsed)
	}
	return elapsed
}

// StopWithThroughput logs elapsed time with throughput for bytes moved.
func (t *Timer) StopWithThroughput(bytes int64) time.Duration {
	elapsed := time.Since(t.start)
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) && TimingEnabled() {
		var bytesPerSec float64
		if elapsed > 0 {
			bytesPerSec = float64(bytes) / elapsed.Seconds()
		}
		fmt.Fprintf(t.w, "[TIMING] %s: %v (total %s at %s)\n",
			t.name, elapsed, FormatBytes(bytes), FormatSpeed(bytesPerSec))
	}
	return elapsed
}

// ChunkTimer aggregates per-chunk durations for one transfer. It is used
// only from the copy loop and is not safe for concurrent use.
type ChunkTimer struct {
	name    string
	w       io.Writer
	chunks  int
	bytes   int64
	busy    time.Duration
	slowest time.Duration
}

// NewChunkTimer creates a chunk timer. If w is nil, os.Stderr is used.
func NewChunkTimer(w io.Writer, name string) *ChunkTimer {
	if w == nil {
		w = os.Stderr
	}
	return &ChunkTimer{name: name, w: w}
}

// Record adds one chunk of n bytes that took d (read plus write).
func (c *ChunkTimer) Record(n int, d time.Duration) {
	c.chunks++
	c.bytes += int64(n)
	c.busy += d
	if d > c.slowest {
		c.slowest = d
	}
}

// Stats returns the chunk count, bytes and average speed in bytes/sec.
func (c *ChunkTimer) Stats() (chunks int, bytes int64, avgSpeed float64) {
	if c.busy > 0 {
		avgSpeed = float64(c.bytes) / c.busy.Seconds()
	}
	return c.chunks, c.bytes, avgSpeed
}

// Summary logs the aggregate when timing is enabled.
func (c *ChunkTimer) Summary() {
	if !TimingEnabled() || c.chunks == 0 {
		return
	}
	_, _, avg := c.Stats()
	fmt.Fprintf(c.w, "[TIMING] %s chunks: %d chunks, %s total, avg=%s slowest=%v\n",
		c.name, c.chunks, FormatBytes(c.bytes), FormatSpeed(avg), c.slowest.Round(time.Millisecond))
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed returns a human-readable speed in bytes/second.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSec)
	}
	if bytesPerSec < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.1f MB/s", bytesPerSec/(1024*1024))
}
