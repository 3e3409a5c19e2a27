package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Callers match them with
// errors.Is and map them to domain error kinds.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrForeignKey is returned when a write references a missing row,
	// typically a membership or message pointing at a deleted room.
	ErrForeignKey = errors.New("missing reference")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsGuest      bool
	SessionID    string // for guest session tracking
	CreatedAt    time.Time
}

// Room represents a chat room.
type Room struct {
	ID        int64
	Name      string
	Private   bool
	CreatorID int64
	CreatedAt time.Time
}

// Membership represents one user belonging to one room.
// The (UserID, RoomID) pair is unique.
type Membership struct {
	ID       int64
	UserID   int64
	RoomID   int64
	IsAdmin  bool
	IsBanned bool
	JoinedAt time.Time
}

// Message represents a persisted chat message. UserID is nil when the author
// account was deleted; the room reference is dropped (never the message) when
// the room is deleted.
type Message struct {
	ID         int64
	RoomID     int64
	UserID     *int64
	AuthorName string // resolved from users on read; empty for deleted authors
	Body       string
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a registered user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches registered users by username prefix or fragment.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room owned by creatorID.
	CreateRoom(ctx context.Context, name string, private bool, creatorID int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRoomsFor lists rooms the user is a member of.
	ListRoomsFor(ctx context.Context, userID int64) ([]*Room, error)

	// RenameRoom updates a room's name.
	RenameRoom(ctx context.Context, roomID int64, name string) error

	// DeleteRoom deletes a room. Memberships cascade; messages keep their
	// rows but lose the room reference.
	DeleteRoom(ctx context.Context, roomID int64) error
}

// MembershipStore handles room membership persistence.
type MembershipStore interface {
	// AddMember inserts a membership row for (userID, roomID).
	// Returns ErrDuplicate if the pair already exists and ErrForeignKey if
	// the room (or user) is gone.
	AddMember(ctx context.Context, userID, roomID int64) (*Membership, error)

	// GetMembership retrieves the membership for (userID, roomID).
	GetMembership(ctx context.Context, userID, roomID int64) (*Membership, error)

	// GetMembershipByID retrieves a membership by its row id.
	GetMembershipByID(ctx context.Context, id int64) (*Membership, error)

	// RemoveMembership deletes a membership by its row id.
	RemoveMembership(ctx context.Context, id int64) error

	// ListRoomIDs lists ids of all rooms the user belongs to.
	ListRoomIDs(ctx context.Context, userID int64) ([]int64, error)

	// ListMembers lists user ids of all members of the room.
	ListMembers(ctx context.Context, roomID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message, filling in ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room, newest first.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MembershipStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
