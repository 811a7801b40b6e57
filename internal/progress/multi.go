package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/transana/srbxfer/internal/constants"
)

// MultiUI draws one bar per file for batch transfers. Each transfer's
// Start adds a new bar; bars are removed as they complete and a one-line
// summary is printed above the remaining bars.
type MultiUI struct {
	progress   *mpb.Progress
	out        io.Writer
	totalFiles int
	index      int32
	completed  int32

	mu  sync.Mutex
	cur *fileBar
}

type fileBar struct {
	bar        *mpb.Bar
	index      int
	name       string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewMultiUI creates a multi-bar display on w for totalFiles transfers.
func NewMultiUI(w io.Writer, totalFiles int) *MultiUI {
	return &MultiUI{
		progress: mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		),
		out:        w,
		totalFiles: totalFiles,
	}
}

func (u *MultiUI) Start(name string, total int64) {
	idx := int(atomic.AddInt32(&u.index, 1))
	label := truncatePath(name, 2)
	fb := &fileBar{
		index:      idx,
		name:       name,
		size:       total,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}
	fb.bar = u.progress.New(total,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s", idx, u.totalFiles, label), decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(s decor.Statistics) string {
				if s.Total == 0 {
					return fmt.Sprintf("%5.1f %%", 0.0)
				}
				return fmt.Sprintf("%5.1f %%", float64(s.Current)/float64(s.Total)*100)
			}, decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", constants.EwmaAge, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Name("ETA ", decor.WCSyncWidth),
			decor.EwmaETA(decor.ET_STYLE_GO, constants.EwmaAge),
		),
		mpb.BarRemoveOnComplete(),
	)

	u.mu.Lock()
	u.cur = fb
	u.mu.Unlock()
}

func (u *MultiUI) Update(s Snapshot) {
	u.mu.Lock()
	fb := u.cur
	u.mu.Unlock()
	if fb == nil || fb.bar == nil {
		return
	}
	now := time.Now()
	delta := s.Bytes - fb.lastBytes
	if delta <= 0 {
		return
	}
	// EWMA decorators need the wall time each increment took.
	fb.bar.EwmaIncrInt64(delta, now.Sub(fb.lastUpdate))
	fb.lastBytes = s.Bytes
	fb.lastUpdate = now
}

func (u *MultiUI) Finish(s Snapshot, err error) {
	u.mu.Lock()
	fb := u.cur
	u.cur = nil
	u.mu.Unlock()
	if fb == nil {
		return
	}

	elapsed := time.Since(fb.startTime)
	var msg string
	switch {
	case err != nil:
		fb.bar.Abort(false)
		msg = fmt.Sprintf("✗ %s: %v\n", fb.name, err)
	case s.Cancelled:
		fb.bar.Abort(true)
		msg = fmt.Sprintf("✗ %s: cancelled after %d of %d bytes\n", fb.name, s.Bytes, s.Total)
	default:
		fb.bar.SetCurrent(fb.size)
		fb.bar.SetTotal(fb.size, true)
		msg = fmt.Sprintf("✓ %s (%.1f MiB, %s)\n",
			fb.name, float64(fb.size)/(1024*1024), elapsed.Round(time.Second))
	}
	// Write through mpb so the summary lands above the live bars.
	_, _ = u.progress.Write([]byte(msg))
	atomic.AddInt32(&u.completed, 1)
}

// Completed returns the number of transfers that have finished.
func (u *MultiUI) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// Writer returns an io.Writer that prints above the progress bars.
func (u *MultiUI) Writer() io.Writer {
	return u.progress
}

// Wait blocks until all bars have completed or been aborted.
func (u *MultiUI) Wait() {
	u.progress.Wait()
}

// ForTerminal picks a sink for f: a multi-file display for batches and a
// single bar otherwise when f is a terminal, plain text lines when it is not.
func ForTerminal(f *os.File, totalFiles int) Sink {
	if !term.IsTerminal(int(f.Fd())) {
		return NewTextSink(f, time.Second)
	}
	enableANSI(f)
	if totalFiles > 1 {
		return NewMultiUI(f, totalFiles)
	}
	return NewBarSink(f)
}
