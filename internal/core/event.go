package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageReceived notifies subscribers about a chat message in a room.
	EventMessageReceived EventKind = iota
	// EventMemberJoined notifies subscribers that a user joined a room.
	EventMemberJoined
	// EventMemberLeft notifies subscribers that a user left a room.
	EventMemberLeft
	// EventMemberAdded notifies subscribers that the creator added a user to a room.
	EventMemberAdded
	// EventRoomCreated confirms room creation to the issuing connection.
	EventRoomCreated
	// EventRoomDeleted notifies subscribers that a room is gone.
	EventRoomDeleted
	// EventError notifies a single client about a domain error.
	EventError
)

// Message is the core's view of a delivered chat message.
type Message struct {
	ID         int64
	RoomID     int64
	AuthorID   int64
	AuthorName string
	Text       string
	SentAt     time.Time
}

// Event is sent to clients to describe what happened in the system.
// Exactly the fields for its kind are set; payload shapes per kind live in
// the proto package.
type Event struct {
	Kind     EventKind
	RoomID   int64
	RoomName string // for EventRoomCreated and EventRoomDeleted
	UserID   int64  // acting or affected user
	UserName string
	Message  *Message   // for EventMessageReceived
	Error    *CoreError // for EventError
}
