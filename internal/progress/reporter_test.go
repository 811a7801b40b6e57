package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/events"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingSink struct {
	started  bool
	updates  []Snapshot
	finished *Snapshot
	err      error
}

func (r *recordingSink) Start(string, int64) { r.started = true }
func (r *recordingSink) Update(s Snapshot)   { r.updates = append(r.updates, s) }
func (r *recordingSink) Finish(s Snapshot, err error) {
	r.finished = &s
	r.err = err
}

func TestReporter_ThreeChunkExample(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	r := NewReporter("interview.mpg", 1000000, sink).WithClock(clock.now)
	r.Begin()
	require.True(t, sink.started)

	var got []float64
	for _, b := range []int64{400000, 800000, 1000000} {
		clock.advance(time.Second)
		got = append(got, r.Update(b).Percent)
	}

	assert.Equal(t, []float64{40, 80, 100}, got)
	final := r.Last()
	assert.Equal(t, int64(1000000), final.Bytes)
	assert.Equal(t, "100.0 %", final.Labels().Percent)
	assert.Equal(t, "1000000 bytes of 1000000 transferred", final.Labels().Bytes)
	assert.Len(t, sink.updates, 3)
}

func TestReporter_PercentMonotonicAndBounded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReporter("f", 1000).WithClock(clock.now)
	r.Begin()

	prev := 0.0
	// Includes a regression and an overshoot past total.
	for _, b := range []int64{0, 100, 50, 700, 1500, 900} {
		clock.advance(10 * time.Millisecond)
		s := r.Update(b)
		assert.GreaterOrEqual(t, s.Percent, prev)
		assert.GreaterOrEqual(t, s.Percent, 0.0)
		assert.LessOrEqual(t, s.Percent, 100.0)
		assert.LessOrEqual(t, s.Bytes, s.Total)
		prev = s.Percent
	}
}

func TestReporter_ZeroTotal(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReporter("empty", 0).WithClock(clock.now)
	r.Begin()
	clock.advance(time.Second)

	s := r.Update(0)
	assert.False(t, s.PercentKnown)
	assert.Equal(t, 0.0, s.Percent)
	assert.Equal(t, "  0.0 %", s.Labels().Percent)
}

func TestReporter_ZeroElapsedSkipsRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReporter("f", 1000).WithClock(clock.now)
	r.Begin()

	s := r.Update(500)
	assert.Equal(t, 0.0, s.Rate)
	assert.False(t, s.RemainingKnown)
}

func TestReporter_RateAndRemaining(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReporter("f", 4*1024*1024).WithClock(clock.now)
	r.Begin()
	clock.advance(2 * time.Second)

	s := r.Update(1024 * 1024)
	assert.InDelta(t, 512*1024, s.Rate, 0.001)
	require.True(t, s.RemainingKnown)
	assert.Equal(t, 6*time.Second, s.Remaining)

	l := s.Labels()
	assert.Equal(t, "Transfer Speed:  512.0 k/sec", l.Speed)
	assert.Equal(t, "Elapsed Time: 0:00:02", l.Elapsed)
	assert.Equal(t, "Time Remaining: 0:00:06", l.Remaining)
}

func TestReporter_FinishCarriesCancelled(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("f", 10, sink)
	r.Begin()
	r.Update(4)
	r.MarkCancelled()

	final := r.Finish(nil)
	assert.True(t, final.Cancelled)
	require.NotNil(t, sink.finished)
	assert.True(t, sink.finished.Cancelled)
	assert.Equal(t, int64(4), sink.finished.Bytes)
}

func TestHoursMinutesSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{59*time.Second + 900*time.Millisecond, "0:00:59"},
		{61 * time.Second, "0:01:01"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "3:04:05"},
		{-time.Second, "0:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HoursMinutesSeconds(tt.d))
	}
}

func TestTextSink_Throttles(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := NewTextSink(&buf, time.Second)
	s.now = clock.now

	s.Start("a.wav", 30)
	s.Update(Snapshot{Name: "a.wav", Bytes: 10, Total: 30})
	clock.advance(100 * time.Millisecond)
	s.Update(Snapshot{Name: "a.wav", Bytes: 20, Total: 30})
	clock.advance(time.Second)
	s.Update(Snapshot{Name: "a.wav", Bytes: 30, Total: 30})
	s.Finish(Snapshot{Name: "a.wav", Bytes: 30, Total: 30}, nil)

	out := buf.String()
	assert.Contains(t, out, "10 bytes of 30 transferred")
	assert.NotContains(t, out, "20 bytes of 30 transferred")
	assert.Contains(t, out, "✓ a.wav: 30 bytes of 30 transferred")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestTextSink_FinishStates(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, time.Second)
	s.Finish(Snapshot{Name: "a", Bytes: 5, Total: 9, Cancelled: true}, nil)
	s.Finish(Snapshot{Name: "b"}, errors.New("remote write failed"))

	assert.Contains(t, buf.String(), "✗ a: cancelled after 5 of 9 bytes")
	assert.Contains(t, buf.String(), "✗ b: remote write failed")
}

func TestEventSink_PublishesLabels(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventProgress)

	sink := NewEventSink(bus, "task-1")
	sink.Update(Snapshot{Name: "clip.wav", Bytes: 400000, Total: 1000000, Percent: 40, PercentKnown: true})

	select {
	case ev := <-ch:
		pe := ev.(*events.ProgressEvent)
		assert.Equal(t, "task-1", pe.TaskID)
		assert.Equal(t, " 40.0 %", pe.PercentLabel)
		assert.Equal(t, "400000 bytes of 1000000 transferred", pe.BytesLabel)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for progress event")
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "a.wav", truncatePath("a.wav", 2))
	assert.Equal(t, "…/media/a.wav", truncatePath("/home/user/media/a.wav", 2))
}
