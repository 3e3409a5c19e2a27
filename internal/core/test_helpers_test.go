package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/store"
	"github.com/andriik/webchat-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestHub(t *testing.T) (*Hub, store.Store) {
	t.Helper()

	st := newTestStore(t)
	logger := zerolog.Nop()
	return NewHub(st, &logger), st
}

var userSeq int

func seedUser(t *testing.T, st store.Store, name string) *store.User {
	t.Helper()

	userSeq++
	email := fmt.Sprintf("%s%d@example.com", name, userSeq)
	user, err := st.CreateUser(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}

func connect(t *testing.T, ctx context.Context, hub *Hub, connID string, user *store.User) *Client {
	t.Helper()

	c := NewClient(connID, user.ID, user.Username)
	if err := hub.RegisterClient(ctx, c); err != nil {
		t.Fatalf("register client %s: %v", connID, err)
	}
	return c
}

// mustEvent drains the channel until an event of the wanted kind arrives.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

// mustNoEvent drains the channel for the given window and fails if an event
// of the unwanted kind shows up.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, window time.Duration) {
	t.Helper()

	timeout := time.After(window)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-timeout:
			return
		}
	}
}
