package core

import (
	"sync"

	"github.com/rs/zerolog"
)

const roomQueueSize = 256

type roomQueue struct {
	events chan *Event
	stop   chan struct{}
}

// Router fans events out to a room's broadcast group. Each room gets its own
// dispatch queue drained by one goroutine, which gives FIFO delivery within
// a room without any ordering coupling between rooms. Delivery to a single
// connection is fire-and-forget: a slow or just-disconnected client is
// skipped, never a reason to fail the dispatch.
type Router struct {
	registry *Registry
	log      *zerolog.Logger

	mu     sync.Mutex
	queues map[int64]*roomQueue
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewRouter builds a router resolving broadcast groups through the registry.
func NewRouter(registry *Registry, logger *zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		log:      logger,
		queues:   make(map[int64]*roomQueue),
		done:     make(chan struct{}),
	}
}

// Deliver enqueues an event for every connection currently subscribed to the
// room. Events enqueued for the same room are delivered in enqueue order.
func (rt *Router) Deliver(roomID int64, ev *Event) {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	queue, exists := rt.queues[roomID]
	if !exists {
		queue = &roomQueue{
			events: make(chan *Event, roomQueueSize),
			stop:   make(chan struct{}),
		}
		rt.queues[roomID] = queue
		rt.wg.Add(1)
		go rt.drain(roomID, queue)
	}
	rt.mu.Unlock()

	select {
	case queue.events <- ev:
	default:
		// Queue full: shedding is preferable to blocking the sender.
		rt.log.Warn().Int64("room_id", roomID).Msg("room dispatch queue full, event dropped")
	}
}

func (rt *Router) drain(roomID int64, queue *roomQueue) {
	defer rt.wg.Done()
	for {
		select {
		case ev := <-queue.events:
			for _, client := range rt.registry.Group(roomID) {
				if !client.send(ev) {
					rt.log.Debug().
						Str("connection_id", client.ID).
						Int64("room_id", roomID).
						Msg("dropped event for slow connection")
				}
			}
		case <-queue.stop:
			return
		case <-rt.done:
			return
		}
	}
}

// CloseRoom tears down the room's dispatch queue after the room is deleted.
// Events still queued are abandoned; the group is gone.
func (rt *Router) CloseRoom(roomID int64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if queue, exists := rt.queues[roomID]; exists {
		close(queue.stop)
		delete(rt.queues, roomID)
	}
}

// Close stops all dispatch goroutines and waits for them to exit.
func (rt *Router) Close() {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	rt.closed = true
	close(rt.done)
	rt.mu.Unlock()
	rt.wg.Wait()
}
