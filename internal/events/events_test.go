package events

import (
	"testing"
	"time"
)

func newTransferEvent(eventType EventType, path string) *TransferEvent {
	return &TransferEvent{
		BaseEvent: NewBase(eventType),
		TaskID:    "task-1",
		Direction: "download",
		Path:      path,
		Name:      path,
		BytesDone: 50,
		Size:      100,
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferProgress)

	bus.Publish(newTransferEvent(EventTransferProgress, "a.txt"))

	select {
	case received := <-ch:
		te, ok := received.(*TransferEvent)
		if !ok {
			t.Fatal("Expected TransferEvent")
		}
		if te.Path != "a.txt" {
			t.Errorf("Expected path 'a.txt', got '%s'", te.Path)
		}
		if te.Progress() != 0.5 {
			t.Errorf("Expected progress 0.5, got %f", te.Progress())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_TypeFiltering(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	completed := bus.Subscribe(EventTransferCompleted)
	all := bus.SubscribeAll()

	bus.Publish(newTransferEvent(EventTransferFailed, "b.txt"))

	select {
	case <-completed:
		t.Error("completed subscriber should not receive failed events")
	default:
	}

	select {
	case ev := <-all:
		if ev.Type() != EventTransferFailed {
			t.Errorf("got %s, want %s", ev.Type(), EventTransferFailed)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("all-events subscriber missed the event")
	}
}

func TestEventBus_OrderPreserved(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.SubscribeAll()
	paths := []string{"1", "2", "3", "4"}
	for _, p := range paths {
		bus.Publish(newTransferEvent(EventTransferProgress, p))
	}

	for _, want := range paths {
		ev := (<-ch).(*TransferEvent)
		if ev.Path != want {
			t.Fatalf("got %s, want %s", ev.Path, want)
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventTransferProgress)
	bus.Publish(newTransferEvent(EventTransferProgress, "a"))
	bus.Publish(newTransferEvent(EventTransferProgress, "b"))

	if got := bus.DroppedEventCount(); got != 1 {
		t.Errorf("DroppedEventCount = %d, want 1", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferCompleted)
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(newTransferEvent(EventTransferCompleted, "a"))
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventTransferQueued)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}

	// Subscribing after close yields a closed channel.
	late := bus.SubscribeAll()
	if _, ok := <-late; ok {
		t.Error("late subscription should be closed")
	}

	// Publish after close is a no-op.
	bus.Publish(newTransferEvent(EventTransferQueued, "a"))
	bus.Close()
}

func TestProgressUnknownSize(t *testing.T) {
	ev := &TransferEvent{BytesDone: 10}
	if ev.Progress() != 0 {
		t.Errorf("Progress with unknown size = %f, want 0", ev.Progress())
	}
}
