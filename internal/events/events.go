// Package events provides the publish/subscribe bus that carries observable
// state changes from the session controller and transfer coordinator to any
// presentation layer.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rainforce/smbclient/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Transfer lifecycle events
	EventTransferQueued    EventType = "transfer_queued"    // Registered, waiting for a slot
	EventTransferStarted   EventType = "transfer_started"   // Slot acquired, streams opening
	EventTransferProgress  EventType = "transfer_progress"  // Bytes moved
	EventTransferCompleted EventType = "transfer_completed" // Succeeded
	EventTransferFailed    EventType = "transfer_failed"    // Failed with a categorized error
	EventTransferRejected  EventType = "transfer_rejected"  // Duplicate (direction, path) request
)

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

// NewBase stamps a BaseEvent with the current time.
func NewBase(eventType EventType) BaseEvent {
	return BaseEvent{EventType: eventType, Time: time.Now()}
}

// TransferEvent represents a transfer lifecycle change.
type TransferEvent struct {
	BaseEvent
	TaskID    string
	Direction string // "upload" or "download"
	Path      string // remote path the transfer is keyed on
	Name      string
	BytesDone int64
	Size      int64 // 0 when unknown
	ErrorKind string
	Error     error
}

// Progress returns the completed fraction, or 0 when the size is unknown.
func (e *TransferEvent) Progress() float64 {
	if e.Size <= 0 {
		return 0
	}
	return float64(e.BytesDone) / float64(e.Size)
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. A subscriber
// whose buffer is full misses the event; the drop is counted.
// Events published from a single goroutine arrive in publish order.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes and closes a subscription channel, wherever it was registered.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				close(subCh)
				return
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			close(subCh)
			return
		}
	}
}

// DroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
