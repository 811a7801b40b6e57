package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transana/srbxfer/internal/progress"
)

// TaskState represents the current state of a queued transfer.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Waiting for the tasks ahead of it
	TaskActive    TaskState = "active"    // Moving bytes
	TaskCompleted TaskState = "completed" // Finished, source removed for moves
	TaskFailed    TaskState = "failed"    // Stopped on an error
	TaskCancelled TaskState = "cancelled" // Cancelled while active, or skipped
)

// Task is one request in a Queue.
// Thread-safe: use the provided methods to read state while the queue runs.
type Task struct {
	ID      string
	Request Request
	Move    bool // delete the source after a successful transfer

	// State tracking
	State    TaskState
	Bytes    int64   // bytes moved so far
	Progress float64 // 0.0 to 1.0
	Speed    float64 // bytes/sec
	Error    error
	Result   *Result

	// Timestamps
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu    sync.RWMutex
	token *CancelToken
}

// NewTask creates a queued task for req.
func NewTask(req Request, move bool) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Request:   req,
		Move:      move,
		State:     TaskQueued,
		CreatedAt: time.Now(),
		token:     NewCancelToken(),
	}
}

// Name returns the file name being moved.
func (t *Task) Name() string {
	return t.Request.FileName
}

// GetState returns the current state (thread-safe).
func (t *Task) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe).
func (t *Task) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.State = state
	if state == TaskActive && t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if state == TaskCompleted || state == TaskFailed || state == TaskCancelled {
		t.CompletedAt = time.Now()
	}
}

// GetProgress returns current progress (thread-safe).
func (t *Task) GetProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// GetError returns the error if any (thread-safe).
func (t *Task) GetError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Cancel stops the task at its next chunk boundary. A queued task is
// marked cancelled and will be skipped.
func (t *Task) Cancel() {
	t.token.Cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State == TaskQueued {
		t.State = TaskCancelled
		t.CompletedAt = time.Now()
	}
}

// TaskSnapshot is a lock-free copy of a Task's fields, safe to pass by value.
type TaskSnapshot struct {
	ID          string
	Request     Request
	Move        bool
	State       TaskState
	Bytes       int64
	Progress    float64
	Speed       float64
	Error       error
	Result      *Result
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Name returns the file name being moved.
func (s TaskSnapshot) Name() string {
	return s.Request.FileName
}

// IsTerminal returns true if the task had finished when the snapshot was taken.
func (s TaskSnapshot) IsTerminal() bool {
	return s.State == TaskCompleted || s.State == TaskFailed || s.State == TaskCancelled
}

// Snapshot returns a copy of the task for display.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskSnapshot{
		ID:          t.ID,
		Request:     t.Request,
		Move:        t.Move,
		State:       t.State,
		Bytes:       t.Bytes,
		Progress:    t.Progress,
		Speed:       t.Speed,
		Error:       t.Error,
		Result:      t.Result,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// IsTerminal returns true if the task is completed, failed or cancelled.
func (t *Task) IsTerminal() bool {
	state := t.GetState()
	return state == TaskCompleted || state == TaskFailed || state == TaskCancelled
}

// taskSink copies snapshots into the task so GetTasks shows live progress.
type taskSink struct {
	task *Task
}

func (s taskSink) Start(string, int64) {}

func (s taskSink) Update(snap progress.Snapshot) {
	s.task.mu.Lock()
	defer s.task.mu.Unlock()
	s.task.Bytes = snap.Bytes
	s.task.Speed = snap.Rate
	if snap.PercentKnown {
		s.task.Progress = snap.Percent / 100
	}
}

func (s taskSink) Finish(progress.Snapshot, error) {}
