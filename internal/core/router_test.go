package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRouter() (*Router, *Registry) {
	registry := NewRegistry()
	logger := zerolog.Nop()
	return NewRouter(registry, &logger), registry
}

func TestRouterDeliversInOrder(t *testing.T) {
	router, registry := newTestRouter()
	defer router.Close()

	c := NewClient("c1", 1, "alice")
	registry.Register(c)
	registry.Subscribe("c1", 10)

	const n = 20
	for i := range n {
		router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: fmt.Sprintf("m%d", i)}})
	}

	for i := range n {
		ev := mustEvent(t, c.Events, EventMessageReceived)
		if want := fmt.Sprintf("m%d", i); ev.Message.Text != want {
			t.Fatalf("out of order: expected %q, got %q", want, ev.Message.Text)
		}
	}
}

func TestRouterSkipsSlowConsumer(t *testing.T) {
	router, registry := newTestRouter()
	defer router.Close()

	slow := NewClient("slow", 1, "alice")
	healthy := NewClient("healthy", 2, "bob")
	registry.Register(slow)
	registry.Register(healthy)
	registry.Subscribe("slow", 10)
	registry.Subscribe("healthy", 10)

	// Fill the slow client's event buffer so further sends would block.
	for {
		if ok := slow.send(&Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "filler"}}); !ok {
			break
		}
	}

	router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "through"}})

	ev := mustEvent(t, healthy.Events, EventMessageReceived)
	if ev.Message.Text != "through" {
		t.Fatalf("healthy client got %q", ev.Message.Text)
	}
}

func TestRouterCloseRoomStopsDispatch(t *testing.T) {
	router, registry := newTestRouter()
	defer router.Close()

	c := NewClient("c1", 1, "alice")
	registry.Register(c)
	registry.Subscribe("c1", 10)

	router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "before"}})
	mustEvent(t, c.Events, EventMessageReceived)

	router.CloseRoom(10)

	// A new queue starts lazily on the next delivery; closing again is a no-op.
	router.CloseRoom(10)
	router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "after"}})
	ev := mustEvent(t, c.Events, EventMessageReceived)
	if ev.Message.Text != "after" {
		t.Fatalf("expected delivery on fresh queue, got %q", ev.Message.Text)
	}
}

func TestRouterCloseIsIdempotent(t *testing.T) {
	router, registry := newTestRouter()

	c := NewClient("c1", 1, "alice")
	registry.Register(c)
	registry.Subscribe("c1", 10)
	router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "x"}})
	mustEvent(t, c.Events, EventMessageReceived)

	router.Close()
	router.Close()

	// Deliveries after close are dropped, not panicking.
	router.Deliver(10, &Event{Kind: EventMessageReceived, RoomID: 10, Message: &Message{Text: "late"}})
	mustNoEvent(t, c.Events, EventMessageReceived, 100*time.Millisecond)
}
