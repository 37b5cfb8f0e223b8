package events

import (
	"errors"
	"testing"
	"time"

	"poolserve/internal/pool"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	if ch1 == nil || ch2 == nil {
		t.Error("expected non-nil channels")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Publish(NewWorkerExitedEvent(3))

	select {
	case received := <-ch:
		if received.Type != EventWorkerExited {
			t.Errorf("expected type %s, got %s", EventWorkerExited, received.Type)
		}
		if received.WorkerID == nil || *received.WorkerID != 3 {
			t.Errorf("expected worker 3, got %v", received.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewPoolShutdownEvent())

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventPoolShutdown {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventPoolShutdown, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBusWithBuffer(1)

	ch := bus.Subscribe()

	// Fill the buffer
	bus.Publish(NewWorkerExitedEvent(0))
	bus.Publish(NewWorkerExitedEvent(1))
	bus.Publish(NewWorkerExitedEvent(2))

	if bus.Dropped() != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}

	select {
	case ev := <-ch:
		if *ev.WorkerID != 0 {
			t.Errorf("expected first event to be kept, got worker %d", *ev.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	// Channel should be closed
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	// Subscribing after close yields a closed channel
	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected late subscription to be closed")
	}
	// Publishing after close is a no-op
	bus.Publish(NewPoolShutdownEvent())
}

func TestBusPoolHooks(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	p, err := pool.BuildWithConfig(pool.Config{Size: 2, Hooks: bus.PoolHooks()})
	if err != nil {
		t.Fatal(err)
	}

	p.Execute(func() {
		panic("boom")
	})
	_ = p.Shutdown()

	var exited, faulted int
	for range 2 {
		select {
		case ev := <-ch:
			switch ev.Type {
			case EventWorkerExited:
				exited++
			case EventWorkerFault:
				faulted++
				if ev.Data.Error == "" {
					t.Error("expected fault event to carry the error")
				}
			default:
				t.Errorf("unexpected event type %s", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for worker events")
		}
	}

	if exited != 1 || faulted != 1 {
		t.Errorf("expected 1 exit and 1 fault, got %d and %d", exited, faulted)
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("WorkerFaultEvent", func(t *testing.T) {
		event := NewWorkerFaultEvent(1, errors.New("boom"))
		if event.Type != EventWorkerFault {
			t.Errorf("expected %s, got %s", EventWorkerFault, event.Type)
		}
		if event.Data.Error != "boom" {
			t.Errorf("expected boom, got %s", event.Data.Error)
		}

		empty := NewWorkerFaultEvent(1, nil)
		if empty.Data.Error != "" {
			t.Errorf("expected empty error, got %s", empty.Data.Error)
		}
	})

	t.Run("RequestServedEvent", func(t *testing.T) {
		event := NewRequestServedEvent("abc", "/sleep", "200", 100*time.Millisecond)
		if event.Type != EventRequestServed {
			t.Errorf("expected %s, got %s", EventRequestServed, event.Type)
		}
		if event.WorkerID != nil {
			t.Error("expected no worker ID on request events")
		}
		if event.Data.Latency != "100ms" {
			t.Errorf("expected 100ms, got %s", event.Data.Latency)
		}
		if event.Data.Path != "/sleep" || event.Data.ConnID != "abc" {
			t.Errorf("unexpected data: %+v", event.Data)
		}
	})
}
