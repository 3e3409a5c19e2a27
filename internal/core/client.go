package core

// Client is one live authenticated connection as seen by the core layer.
// A user may have several clients at once (tabs, devices); the registry
// tracks which rooms each one is subscribed to.
type Client struct {
	ID       string // connection id, unique per transport session
	UserID   int64
	Name     string // username, stamped onto events this client causes
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, userID int64, name string) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
	}
}

// send pushes an event without blocking. Slow consumers drop events rather
// than stalling a room's dispatch queue.
func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
