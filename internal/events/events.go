// Package events carries transfer lifecycle, progress and log notifications
// from the engine to whatever front end is listening.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/transana/srbxfer/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventError    EventType = "error"

	// Transfer lifecycle
	EventTransferQueued    EventType = "transfer_queued"    // Task added to queue
	EventTransferStarted   EventType = "transfer_started"   // First chunk about to move
	EventTransferCompleted EventType = "transfer_completed" // Successfully completed
	EventTransferFailed    EventType = "transfer_failed"    // Failed with error
	EventTransferCancelled EventType = "transfer_cancelled" // Cancelled by user, partial artifact removed
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ProgressEvent is published after every chunk. The label fields are the
// ready-to-display status strings.
type ProgressEvent struct {
	BaseEvent
	TaskID       string
	FileName     string
	BytesCurrent int64
	BytesTotal   int64
	Percent      float64 // 0 to 100, zero when BytesTotal is zero
	Rate         float64 // bytes/sec
	ETA          time.Duration

	BytesLabel     string
	PercentLabel   string
	ElapsedLabel   string
	RemainingLabel string
	SpeedLabel     string
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	TaskID  string
}

// ErrorEvent carries every error handed to a transfer's error sink,
// including best-effort cleanup failures that do not end the transfer.
type ErrorEvent struct {
	BaseEvent
	TaskID string
	Op     string
	Code   int // remote status code, 0 for local errors
	Error  error
}

// TransferEvent represents transfer queue events
type TransferEvent struct {
	BaseEvent
	TaskID    string  // Unique task ID
	Direction string  // "upload" or "download"
	Name      string  // File name
	Size      int64   // File size in bytes
	Bytes     int64   // Bytes moved so far
	Progress  float64 // 0.0 to 1.0
	Error     error   // Error if failed
}

// anyEvent keys the subscribers that receive every event type.
const anyEvent EventType = "*"

// EventBus fans events out to buffered subscriber channels. Publish never
// blocks: a subscriber whose buffer is full misses the event and the drop
// is counted.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[EventType][]chan Event
	bufferSize int
	closed     bool
	dropped    atomic.Int64
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize
// events, clamped to the configured bounds.
func NewEventBus(bufferSize int) *EventBus {
	bufferSize = min(max(bufferSize, 0), constants.EventBusMaxBuffer)
	if bufferSize == 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{
		subs:       make(map[EventType][]chan Event),
		bufferSize: bufferSize,
	}
}

// Stamp returns the BaseEvent for an event of type t created now.
func Stamp(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// Subscribe returns a channel receiving events of one type. On a closed bus
// the channel is already closed.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	return eb.subscribe(eventType)
}

// SubscribeAll returns a channel receiving every event.
func (eb *EventBus) SubscribeAll() <-chan Event {
	return eb.subscribe(anyEvent)
}

func (eb *EventBus) subscribe(key EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, eb.bufferSize)
	eb.subs[key] = append(eb.subs[key], ch)
	return ch
}

// Publish delivers event to its type's subscribers and to SubscribeAll
// subscribers. Safe to call from the copy loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, key := range [2]EventType{event.Type(), anyEvent} {
		for _, ch := range eb.subs[key] {
			select {
			case ch <- event:
			default:
				eb.dropped.Add(1)
			}
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, chans := range eb.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
}

// PublishLog publishes a LogEvent.
func (eb *EventBus) PublishLog(level LogLevel, message, taskID string) {
	eb.Publish(&LogEvent{
		BaseEvent: Stamp(EventLog),
		Level:     level,
		Message:   message,
		TaskID:    taskID,
	})
}

// PublishError publishes an ErrorEvent.
func (eb *EventBus) PublishError(taskID, op string, code int, err error) {
	eb.Publish(&ErrorEvent{
		BaseEvent: Stamp(EventError),
		TaskID:    taskID,
		Op:        op,
		Code:      code,
		Error:     err,
	})
}

// UnsubscribeAll detaches ch from the bus without closing it.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	for key, chans := range eb.subs {
		for i, c := range chans {
			if c == ch {
				eb.subs[key] = append(chans[:i:i], chans[i+1:]...)
				break
			}
		}
	}
}

// GetDroppedEventCount returns how many deliveries were skipped because a
// subscriber's buffer was full.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.dropped.Load()
}
