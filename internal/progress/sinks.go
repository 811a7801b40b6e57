package progress

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/events"
)

// NopSink discards all progress (for background/silent operations).
type NopSink struct{}

func (NopSink) Start(string, int64)    {}
func (NopSink) Update(Snapshot)        {}
func (NopSink) Finish(Snapshot, error) {}

// BarSink draws a single terminal progress bar.
type BarSink struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarSink creates a bar sink writing to w.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{w: w}
}

func (b *BarSink) Start(name string, total int64) {
	w := b.w
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(constants.ProgressThrottleMillis*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (b *BarSink) Update(s Snapshot) {
	if b.bar != nil {
		_ = b.bar.Set64(s.Bytes)
	}
}

func (b *BarSink) Finish(s Snapshot, err error) {
	if b.bar == nil {
		return
	}
	switch {
	case err != nil:
		_ = b.bar.Exit()
		fmt.Fprintf(b.w, "\nError: %v\n", err)
	case s.Cancelled:
		_ = b.bar.Exit()
		fmt.Fprintf(b.w, "\nCancelled: %s (%d of %d bytes, partial copy removed)\n", s.Name, s.Bytes, s.Total)
	default:
		_ = b.bar.Finish()
	}
}

// TextSink prints the status labels as plain lines, for output that is not
// a terminal. Updates are throttled; the first and final lines always print.
type TextSink struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewTextSink creates a text sink printing at most once per interval.
func NewTextSink(w io.Writer, interval time.Duration) *TextSink {
	return &TextSink{w: w, interval: interval, now: time.Now}
}

func (t *TextSink) Start(name string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	fmt.Fprintf(t.w, "%s: %d bytes\n", name, total)
}

func (t *TextSink) Update(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	fmt.Fprintf(t.w, "%s: %s\n", s.Name, s.Labels())
}

func (t *TextSink) Finish(s Snapshot, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case err != nil:
		fmt.Fprintf(t.w, "✗ %s: %v\n", s.Name, err)
	case s.Cancelled:
		fmt.Fprintf(t.w, "✗ %s: cancelled after %d of %d bytes\n", s.Name, s.Bytes, s.Total)
	default:
		l := s.Labels()
		fmt.Fprintf(t.w, "✓ %s: %s, %s\n", s.Name, l.Bytes, l.Elapsed)
	}
}

// EventSink publishes every snapshot as an events.ProgressEvent.
type EventSink struct {
	bus    *events.EventBus
	taskID string
}

// NewEventSink creates a sink publishing to bus, tagging events with taskID.
func NewEventSink(bus *events.EventBus, taskID string) *EventSink {
	return &EventSink{bus: bus, taskID: taskID}
}

func (e *EventSink) Start(name string, total int64) {
	e.publish(Snapshot{Name: name, Total: total, PercentKnown: total > 0})
}

func (e *EventSink) Update(s Snapshot) {
	e.publish(s)
}

func (e *EventSink) Finish(s Snapshot, err error) {
	e.publish(s)
}

func (e *EventSink) publish(s Snapshot) {
	if e.bus == nil {
		return
	}
	l := s.Labels()
	e.bus.Publish(&events.ProgressEvent{
		BaseEvent:      events.Stamp(events.EventProgress),
		TaskID:         e.taskID,
		FileName:       s.Name,
		BytesCurrent:   s.Bytes,
		BytesTotal:     s.Total,
		Percent:        s.Percent,
		Rate:           s.Rate,
		ETA:            s.Remaining,
		BytesLabel:     l.Bytes,
		PercentLabel:   l.Percent,
		ElapsedLabel:   l.Elapsed,
		RemainingLabel: l.Remaining,
		SpeedLabel:     l.Speed,
	})
}

// truncatePath keeps the last maxComponents elements of path.
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
