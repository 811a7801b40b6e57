package transfer

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

const timingEnv = "SRBXFER_TIMING"

func TestTimingEnabled(t *testing.T) {
	t.Setenv(timingEnv, "")
	if TimingEnabled() {
		t.Error("TimingEnabled() should be false when unset")
	}

	t.Setenv(timingEnv, "true")
	if TimingEnabled() {
		t.Error("TimingEnabled() should only accept exactly '1'")
	}

	t.Setenv(timingEnv, "1")
	if !TimingEnabled() {
		t.Error("TimingEnabled() should be true when set to 1")
	}
}

func TestTimingLog(t *testing.T) {
	var buf bytes.Buffer

	t.Setenv(timingEnv, "")
	TimingLog(&buf, "chunk %d", 3)
	if buf.Len() > 0 {
		t.Error("TimingLog should not write when timing is disabled")
	}

	t.Setenv(timingEnv, "1")
	TimingLog(&buf, "chunk %d", 3)
	if got := buf.String(); got != "[TIMING] chunk 3\n" {
		t.Errorf("Unexpected output %q", got)
	}
}

func TestTimerStopIdempotent(t *testing.T) {
	t.Setenv(timingEnv, "1")
	var buf bytes.Buffer

	timer := StartTimer(&buf, "upload a.wav")
	timer.Stop()
	first := buf.String()
	timer.Stop()

	if buf.String() != first {
		t.Error("Timer.Stop() should only log once")
	}
	if !strings.Contains(first, "[TIMING] upload a.wav: started") {
		t.Errorf("Missing start line in %q", first)
	}
}

func TestTimerStopWithThroughput(t *testing.T) {
	t.Setenv(timingEnv, "1")
	var buf bytes.Buffer

	timer := StartTimer(&buf, "download b.wav")
	time.Sleep(5 * time.Millisecond)
	timer.StopWithThroughput(1024 * 1024)

	if !strings.Contains(buf.String(), "total 1.0 MB at") {
		t.Errorf("Missing throughput in %q", buf.String())
	}
}

func TestChunkTimer(t *testing.T) {
	t.Setenv(timingEnv, "1")
	var buf bytes.Buffer

	ct := NewChunkTimer(&buf, "upload c.wav")
	ct.Record(400000, 100*time.Millisecond)
	ct.Record(400000, 300*time.Millisecond)
	ct.Record(200000, 100*time.Millisecond)

	chunks, total, avg := ct.Stats()
	if chunks != 3 || total != 1000000 {
		t.Errorf("Expected 3 chunks and 1000000 bytes, got %d and %d", chunks, total)
	}
	if avg != 2000000 {
		t.Errorf("Expected 2000000 B/s, got %f", avg)
	}

	ct.Summary()
	out := buf.String()
	if !strings.Contains(out, "3 chunks") || !strings.Contains(out, "slowest=300ms") {
		t.Errorf("Unexpected summary %q", out)
	}
}

func TestChunkTimerSummaryDisabled(t *testing.T) {
	t.Setenv(timingEnv, "")
	var buf bytes.Buffer
	ct := NewChunkTimer(&buf, "quiet")
	ct.Record(10, time.Millisecond)
	ct.Summary()
	if buf.Len() != 0 {
		t.Errorf("Summary should be silent when timing is disabled, got %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{400000, "390.6 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{512, "512.0 B/s"},
		{2048, "2.0 KB/s"},
		{1900 * 1024, "1.9 MB/s"},
	}
	for _, tt := range tests {
		if got := FormatSpeed(tt.in); got != tt.want {
			t.Errorf("FormatSpeed(%f) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
