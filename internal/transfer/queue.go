package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/transana/srbxfer/internal/events"
	"github.com/transana/srbxfer/internal/progress"
)

// QueueStats holds statistics about the transfer queue.
type QueueStats struct {
	Queued    int
	Active    int
	Completed int
	Failed    int
	Cancelled int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Active + s.Completed + s.Failed + s.Cancelled
}

// Queue runs transfer requests strictly one after another with a shared set
// of session options, tracking each task's state and publishing a
// TransferEvent on every transition.
//
//   - Add/AddMove register tasks in TaskQueued state
//   - Run executes queued tasks in order on the caller's goroutine
//   - Cancel stops one task; CancelAll stops the active task and skips the rest
//   - a failed task does not stop the queue
type Queue struct {
	opts Options

	tasks     []*Task
	tasksByID map[string]*Task
	mu        sync.RWMutex

	stopped atomic.Bool
}

// NewQueue creates a queue whose tasks run with opts. opts.Token is ignored:
// every task gets its own token.
func NewQueue(opts Options) *Queue {
	opts.Token = nil
	return &Queue{
		opts:      opts,
		tasks:     make([]*Task, 0),
		tasksByID: make(map[string]*Task),
	}
}

// Add queues a transfer.
func (q *Queue) Add(req Request) *Task {
	return q.add(req, false)
}

// AddMove queues a transfer that deletes its source on success.
func (q *Queue) AddMove(req Request) *Task {
	return q.add(req, true)
}

func (q *Queue) add(req Request, move bool) *Task {
	task := NewTask(req, move)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	return task
}

// Run executes every queued task in order. It returns the failed tasks'
// errors joined together, or nil when none failed. Cancelled tasks are not
// errors.
func (q *Queue) Run(ctx context.Context) error {
	var errs []error
	for {
		task := q.nextQueued()
		if task == nil {
			break
		}
		if !q.start(ctx, task) {
			continue
		}
		if err := q.runTask(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (q *Queue) nextQueued() *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, task := range q.tasks {
		if task.GetState() == TaskQueued {
			return task
		}
	}
	return nil
}

// start activates task unless the queue was stopped. The task is marked
// active before stopped is read, so a concurrent CancelAll either sees the
// active task and cancels its token or is seen here.
func (q *Queue) start(ctx context.Context, task *Task) bool {
	task.SetState(TaskActive)
	if q.stopped.Load() || ctx.Err() != nil {
		q.skip(task)
		return false
	}
	q.publishTransferEvent(events.EventTransferStarted, task)
	return true
}

func (q *Queue) runTask(ctx context.Context, task *Task) error {
	opts := q.opts
	opts.TaskID = task.ID
	opts.Token = task.token
	opts.Progress = append(append([]progress.Sink(nil), q.opts.Progress...), taskSink{task: task})
	session := NewSession(opts)

	var (
		res *Result
		err error
	)
	if task.Move {
		res, err = session.Move(ctx, task.Request)
	} else {
		res, err = session.Run(ctx, task.Request)
	}

	task.mu.Lock()
	task.Result = res
	task.Error = err
	task.mu.Unlock()

	switch {
	case err != nil:
		task.SetState(TaskFailed)
		q.publishTransferEvent(events.EventTransferFailed, task)
	case res.Cancelled:
		task.SetState(TaskCancelled)
		q.publishTransferEvent(events.EventTransferCancelled, task)
	default:
		task.mu.Lock()
		task.Progress = 1.0
		task.mu.Unlock()
		task.SetState(TaskCompleted)
		q.publishTransferEvent(events.EventTransferCompleted, task)
	}
	return err
}

func (q *Queue) skip(task *Task) {
	task.token.Cancel()
	task.SetState(TaskCancelled)
	q.publishTransferEvent(events.EventTransferCancelled, task)
}

// Cancel cancels one task. An active task stops at its next chunk boundary
// and removes its partial copy; a queued task is skipped.
func (q *Queue) Cancel(taskID string) error {
	q.mu.RLock()
	task, exists := q.tasksByID[taskID]
	q.mu.RUnlock()

	if !exists || task == nil {
		return errors.New("task not found")
	}

	state := task.GetState()
	if state != TaskActive && state != TaskQueued {
		return errors.New("task is not active or queued")
	}

	task.Cancel()
	if state == TaskQueued {
		q.publishTransferEvent(events.EventTransferCancelled, task)
	}
	return nil
}

// CancelAll stops the active task and skips every task still queued.
// Safe to call from a signal handler goroutine.
func (q *Queue) CancelAll() {
	q.stopped.Store(true)

	q.mu.RLock()
	tasks := append([]*Task(nil), q.tasks...)
	q.mu.RUnlock()

	for _, task := range tasks {
		if task.GetState() == TaskActive {
			task.token.Cancel()
		}
	}
}

// ClearCompleted removes all completed/failed/cancelled tasks from the queue.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.GetState() {
		case TaskQueued:
			stats.Queued++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks for display.
func (q *Queue) GetTasks() []TaskSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]TaskSnapshot, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Snapshot()
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (TaskSnapshot, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		return TaskSnapshot{}, false
	}
	return task.Snapshot(), true
}

// publishTransferEvent publishes a transfer event to the event bus.
func (q *Queue) publishTransferEvent(eventType events.EventType, task *Task) {
	if q.opts.EventBus == nil {
		return
	}

	snap := task.Snapshot()
	q.opts.EventBus.Publish(&events.TransferEvent{
		BaseEvent: events.Stamp(eventType),
		TaskID:    snap.ID,
		Direction: snap.Request.Direction.String(),
		Name:      snap.Request.FileName,
		Size:      snap.Request.FileSize,
		Bytes:     snap.Bytes,
		Progress:  snap.Progress,
		Error:     snap.Error,
	})
}
