// Package progress turns byte counts from the copy loop into percent, elapsed
// time, rate and time remaining, renders the five status labels, and fans the
// result out to display sinks (terminal bars, plain text, the event bus).
package progress

import (
	"fmt"
	"time"

	"github.com/transana/srbxfer/internal/constants"
)

// Snapshot is one observation of a transfer's progress.
type Snapshot struct {
	Name  string
	Bytes int64 // clamped to Total for display
	Total int64

	// Percent is 0 to 100. PercentKnown is false when Total is zero.
	Percent      float64
	PercentKnown bool

	Elapsed time.Duration

	// Rate is bytes per second, zero until some time has passed.
	Rate float64

	// Remaining is only meaningful when RemainingKnown is set (Rate > 0).
	Remaining      time.Duration
	RemainingKnown bool

	Cancelled bool
}

// Labels are the human-readable status strings for a snapshot.
type Labels struct {
	Bytes     string
	Percent   string
	Elapsed   string
	Remaining string
	Speed     string
}

// Labels renders the status strings. Values that are not known yet render
// as zero.
func (s Snapshot) Labels() Labels {
	return Labels{
		Bytes:     fmt.Sprintf("%d bytes of %d transferred", s.Bytes, s.Total),
		Percent:   fmt.Sprintf("%5.1f %%", s.Percent),
		Elapsed:   "Elapsed Time: " + HoursMinutesSeconds(s.Elapsed),
		Remaining: "Time Remaining: " + HoursMinutesSeconds(s.Remaining),
		Speed:     fmt.Sprintf("Transfer Speed: %6.1f k/sec", s.Rate/constants.KiloByte),
	}
}

// String joins the labels into a single status line.
func (l Labels) String() string {
	return l.Bytes + "  " + l.Percent + "  " + l.Elapsed + "  " + l.Remaining + "  " + l.Speed
}

// HoursMinutesSeconds formats d as H:MM:SS, truncating fractional seconds.
func HoursMinutesSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// Sink displays progress. Start is called once before the first chunk,
// Update after every chunk, and Finish once when the transfer ends.
// err is nil for both successful and cancelled transfers.
type Sink interface {
	Start(name string, total int64)
	Update(s Snapshot)
	Finish(s Snapshot, err error)
}

// Reporter computes snapshots for a single transfer. It is not safe for
// concurrent use; the copy loop is its only caller.
type Reporter struct {
	name  string
	total int64
	start time.Time
	last  Snapshot
	sinks []Sink
	now   func() time.Time
}

// NewReporter creates a reporter for a transfer of total bytes. The clock
// starts at Begin.
func NewReporter(name string, total int64, sinks ...Sink) *Reporter {
	r := &Reporter{name: name, total: total, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// WithClock replaces the time source. Tests only.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Begin records the start time and notifies the sinks.
func (r *Reporter) Begin() {
	r.start = r.now()
	r.last = Snapshot{Name: r.name, Total: r.total, PercentKnown: r.total > 0}
	for _, s := range r.sinks {
		s.Start(r.name, r.total)
	}
}

// Update derives a snapshot from the cumulative byte count and passes it to
// every sink.
func (r *Reporter) Update(bytes int64) Snapshot {
	snap := r.compute(bytes)
	r.last = snap
	for _, s := range r.sinks {
		s.Update(snap)
	}
	return snap
}

// MarkCancelled flags the next snapshots as cancelled.
func (r *Reporter) MarkCancelled() {
	r.last.Cancelled = true
}

// Finish reports the final snapshot to every sink.
func (r *Reporter) Finish(err error) Snapshot {
	snap := r.last
	snap.Elapsed = r.elapsed()
	for _, s := range r.sinks {
		s.Finish(snap, err)
	}
	return snap
}

// Last returns the most recent snapshot.
func (r *Reporter) Last() Snapshot {
	return r.last
}

func (r *Reporter) elapsed() time.Duration {
	if r.start.IsZero() {
		return 0
	}
	return r.now().Sub(r.start)
}

func (r *Reporter) compute(bytes int64) Snapshot {
	if bytes < 0 {
		bytes = 0
	}
	if r.total > 0 && bytes > r.total {
		bytes = r.total
	}
	// Keep the display monotonic.
	if bytes < r.last.Bytes {
		bytes = r.last.Bytes
	}

	snap := Snapshot{
		Name:      r.name,
		Bytes:     bytes,
		Total:     r.total,
		Elapsed:   r.elapsed(),
		Cancelled: r.last.Cancelled,
	}

	if r.total > 0 {
		snap.PercentKnown = true
		snap.Percent = float64(bytes) * 100 / float64(r.total)
		if snap.Percent > 100 {
			snap.Percent = 100
		}
	}

	if snap.Elapsed > 0 {
		snap.Rate = float64(bytes) / snap.Elapsed.Seconds()
	}

	if snap.Rate > 0 {
		left := r.total - bytes
		if left < 0 {
			left = 0
		}
		snap.Remaining = time.Duration(float64(left) / snap.Rate * float64(time.Second))
		snap.RemainingKnown = true
	}
	return snap
}
