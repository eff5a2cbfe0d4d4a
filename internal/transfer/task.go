// Package transfer runs downloads and uploads against the remote share, one
// task per request, with per-(direction, path) deduplication and a bounded
// number of transfers moving bytes at once.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rainforce/smbclient/internal/errkind"
)

// Direction indicates whether a task is an upload or download.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Registered, waiting for a slot
	TaskActive    TaskState = "active"    // Holding a slot, moving bytes
	TaskCompleted TaskState = "completed" // Successfully completed
	TaskFailed    TaskState = "failed"    // Failed with error
)

// Outcome is the terminal result of one transfer request.
type Outcome struct {
	TaskID    string
	Direction Direction
	Path      string // remote path, share-relative
	Name      string
	Source    string
	Dest      string
	Bytes     int64
	Err       *errkind.Error // nil on success
	StartedAt time.Time
	EndedAt   time.Time
}

// Succeeded reports whether the transfer completed.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Kind returns the error kind, errkind.None on success.
func (o Outcome) Kind() errkind.Kind {
	if o.Err == nil {
		return errkind.None
	}
	return o.Err.Kind
}

// Task is one in-flight transfer. It lives from acceptance until its
// outcome is delivered. Thread-safe: use the provided methods.
type Task struct {
	ID        string
	Direction Direction
	Path      string // remote path; the deduplication key together with Direction
	Name      string // display name (base name)
	Source    string // remote URL (download) or local ref (upload)

	mu        sync.RWMutex
	dest      string // local file ref (download) or remote URL (upload)
	size      int64  // -1 when unknown
	state     TaskState
	bytesDone int64
	speed     float64 // bytes/sec, EMA smoothed

	lastBytes      int64
	lastUpdateTime time.Time

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

func newTask(direction Direction, path, name, source, dest string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Direction: direction,
		Path:      path,
		Name:      name,
		Source:    source,
		dest:      dest,
		size:      -1,
		state:     TaskQueued,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Dest returns the destination, which for downloads is only known once the
// local file has been created.
func (t *Task) Dest() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dest
}

func (t *Task) setDest(dest string) {
	t.mu.Lock()
	t.dest = dest
	t.mu.Unlock()
}

// Size returns the total size in bytes, or -1 when the source did not report one.
func (t *Task) Size() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

func (t *Task) setSize(size int64) {
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()
}

// BytesDone returns the bytes copied so far.
func (t *Task) BytesDone() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytesDone
}

// Speed returns current transfer speed in bytes/sec.
func (t *Task) Speed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speed
}

// Done is closed once the outcome is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends. A cancelled wait does
// not cancel the transfer.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome returns the terminal result. It is zero until Done is closed.
func (t *Task) Outcome() Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outcome
}

// Cancel aborts the transfer. The task still finishes through the normal
// failure path, so Done is closed and an outcome is delivered.
func (t *Task) Cancel() {
	t.mu.RLock()
	cancel := t.cancel
	t.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Task) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
}

func (t *Task) markActive() {
	t.mu.Lock()
	t.state = TaskActive
	t.startedAt = time.Now()
	t.mu.Unlock()
}

// addBytes advances the byte count and the EMA speed estimate.
func (t *Task) addBytes(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.bytesDone += n

	if t.lastUpdateTime.IsZero() {
		t.lastUpdateTime = now
		t.lastBytes = t.bytesDone
		return
	}

	// Need at least 100ms between samples for a meaningful rate
	elapsed := now.Sub(t.lastUpdateTime).Seconds()
	if elapsed <= 0.1 {
		return
	}
	instantRate := float64(t.bytesDone-t.lastBytes) / elapsed

	// EMA smoothing (alpha=0.25): 25% weight to new value, 75% to previous
	const speedSmoothingAlpha = 0.25
	if t.speed > 0 {
		t.speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.speed
	} else {
		t.speed = instantRate
	}
	t.lastBytes = t.bytesDone
	t.lastUpdateTime = now
}

// finish records the outcome and closes Done. It must be called once.
func (t *Task) finish(err *errkind.Error) Outcome {
	t.mu.Lock()
	t.completedAt = time.Now()
	if err == nil {
		t.state = TaskCompleted
	} else {
		t.state = TaskFailed
	}
	started := t.startedAt
	if started.IsZero() {
		started = t.createdAt
	}
	t.outcome = Outcome{
		TaskID:    t.ID,
		Direction: t.Direction,
		Path:      t.Path,
		Name:      t.Name,
		Source:    t.Source,
		Dest:      t.dest,
		Bytes:     t.bytesDone,
		Err:       err,
		StartedAt: started,
		EndedAt:   t.completedAt,
	}
	out := t.outcome
	t.mu.Unlock()

	close(t.done)
	return out
}

// IsTerminal returns true once the task has completed or failed.
func (t *Task) IsTerminal() bool {
	state := t.State()
	return state == TaskCompleted || state == TaskFailed
}
