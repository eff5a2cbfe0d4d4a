package transfer

import (
	"sync"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/events"
)

type taskKey struct {
	direction Direction
	path      string
}

// Registry tracks in-flight tasks and enforces at most one per
// (direction, path). It does not execute transfers; the Coordinator
// registers tasks, runs them, and removes them once they finish.
type Registry struct {
	mu        sync.RWMutex
	byKey     map[taskKey]*Task
	tasksByID map[string]*Task
	order     []*Task

	eventBus *events.EventBus
}

// NewRegistry creates an empty registry publishing to eventBus (may be nil).
func NewRegistry(eventBus *events.EventBus) *Registry {
	return &Registry{
		byKey:     make(map[taskKey]*Task),
		tasksByID: make(map[string]*Task),
		eventBus:  eventBus,
	}
}

// Register admits task unless another task with the same direction and path
// is in flight, in which case it returns a TransferAlreadyInProgress error
// and publishes a rejection.
func (r *Registry) Register(task *Task) *errkind.Error {
	key := taskKey{task.Direction, task.Path}

	r.mu.Lock()
	if _, busy := r.byKey[key]; busy {
		r.mu.Unlock()
		err := errkind.New(errkind.TransferAlreadyInProgress, string(task.Direction), task.Path, nil)
		r.publish(events.EventTransferRejected, task, err)
		return err
	}
	r.byKey[key] = task
	r.tasksByID[task.ID] = task
	r.order = append(r.order, task)
	r.mu.Unlock()

	r.publish(events.EventTransferQueued, task, nil)
	return nil
}

// Remove drops task so a new request for the same key is admitted.
func (r *Registry) Remove(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := taskKey{task.Direction, task.Path}
	if r.byKey[key] == task {
		delete(r.byKey, key)
	}
	delete(r.tasksByID, task.ID)
	for i, t := range r.order {
		if t == task {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// InFlight reports whether a task for direction and path is registered.
func (r *Registry) InFlight(direction Direction, path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[taskKey{direction, path}]
	return ok
}

// Get returns a registered task by ID.
func (r *Registry) Get(taskID string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasksByID[taskID]
	return task, ok
}

// Active returns the registered tasks in registration order.
func (r *Registry) Active() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Task, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CancelAll cancels every registered task. Each still finishes through
// its normal failure path.
func (r *Registry) CancelAll() {
	for _, task := range r.Active() {
		task.Cancel()
	}
}

// publishProgress publishes a progress event for task.
func (r *Registry) publishProgress(task *Task) {
	r.publish(events.EventTransferProgress, task, nil)
}

// publish sends a lifecycle event to the event bus.
func (r *Registry) publish(eventType events.EventType, task *Task, err *errkind.Error) {
	if r.eventBus == nil {
		return
	}

	size := task.Size()
	if size < 0 {
		size = 0
	}
	event := &events.TransferEvent{
		BaseEvent: events.NewBase(eventType),
		TaskID:    task.ID,
		Direction: string(task.Direction),
		Path:      task.Path,
		Name:      task.Name,
		BytesDone: task.BytesDone(),
		Size:      size,
	}
	if err != nil {
		event.ErrorKind = err.Kind.String()
		event.Error = err
	}
	r.eventBus.Publish(event)
}
