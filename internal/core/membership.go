package core

import (
	"context"
	"errors"
	"sync"

	"github.com/andriik/webchat-server/internal/store"
)

type memberKey struct {
	userID int64
	roomID int64
}

// MembershipIndex answers membership questions for the hot send path and
// performs membership mutations. Reads go through a small cache that is
// invalidated in the same call as the store write, so a lookup right after a
// join or leave always reflects the committed state. The store's UNIQUE
// (user, room) constraint arbitrates concurrent joins.
type MembershipIndex struct {
	store store.Store

	mu    sync.RWMutex
	cache map[memberKey]bool
}

// NewMembershipIndex builds an index backed by the given store.
func NewMembershipIndex(st store.Store) *MembershipIndex {
	return &MembershipIndex{
		store: st,
		cache: make(map[memberKey]bool),
	}
}

// IsMember reports whether an active membership row exists for the pair.
// The cache is consulted first; misses read through to the store. The lock
// is never held across the store call.
func (m *MembershipIndex) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	key := memberKey{userID: userID, roomID: roomID}

	m.mu.RLock()
	member, cached := m.cache[key]
	m.mu.RUnlock()
	if cached {
		return member, nil
	}

	_, err := m.store.GetMembership(ctx, userID, roomID)
	switch {
	case err == nil:
		member = true
	case errors.Is(err, store.ErrNotFound):
		member = false
	default:
		return false, persistenceError(err)
	}

	// A join or leave may have written through while the store read was in
	// flight; the write-through value wins over this read.
	m.mu.Lock()
	if cur, ok := m.cache[key]; ok {
		member = cur
	} else {
		m.cache[key] = member
	}
	m.mu.Unlock()
	return member, nil
}

// RoomsOf returns ids of all rooms the user currently belongs to.
func (m *MembershipIndex) RoomsOf(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := m.store.ListRoomIDs(ctx, userID)
	if err != nil {
		return nil, persistenceError(err)
	}

	m.mu.Lock()
	for _, roomID := range ids {
		m.cache[memberKey{userID: userID, roomID: roomID}] = true
	}
	m.mu.Unlock()
	return ids, nil
}

// Join creates a membership for (userID, roomID).
// Fails with ErrRoomNotFound if the room is gone and ErrAlreadyMember if the
// pair exists; two concurrent joins resolve to one success and one
// ErrAlreadyMember at the store's uniqueness constraint.
func (m *MembershipIndex) Join(ctx context.Context, userID, roomID int64) (*store.Membership, error) {
	if _, err := m.store.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, persistenceError(err)
	}

	membership, err := m.store.AddMember(ctx, userID, roomID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrAlreadyMember
		case errors.Is(err, store.ErrForeignKey):
			// Room (or user) deleted between the check and the insert.
			return nil, ErrRoomNotFound
		default:
			return nil, persistenceError(err)
		}
	}

	m.setCached(userID, roomID, true)
	return membership, nil
}

// Leave removes the user's membership in the room.
// The room's creator cannot leave; the room must be deleted instead.
func (m *MembershipIndex) Leave(ctx context.Context, userID, roomID int64) error {
	membership, err := m.store.GetMembership(ctx, userID, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		return persistenceError(err)
	}

	return m.remove(ctx, membership)
}

// Remove is the admin-initiated variant of Leave, keyed by membership id.
func (m *MembershipIndex) Remove(ctx context.Context, membershipID int64) error {
	membership, err := m.store.GetMembershipByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return persistenceError(err)
	}

	return m.remove(ctx, membership)
}

func (m *MembershipIndex) remove(ctx context.Context, membership *store.Membership) error {
	room, err := m.store.GetRoomByID(ctx, membership.RoomID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return persistenceError(err)
	}
	if room != nil && room.CreatorID == membership.UserID {
		return ErrCreatorCannotLeave
	}

	if err := m.store.RemoveMembership(ctx, membership.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		return persistenceError(err)
	}

	m.setCached(membership.UserID, membership.RoomID, false)
	return nil
}

// InvalidateRoom flushes cached entries for a room after its deletion.
func (m *MembershipIndex) InvalidateRoom(roomID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.cache {
		if key.roomID == roomID {
			delete(m.cache, key)
		}
	}
}

func (m *MembershipIndex) setCached(userID, roomID int64, member bool) {
	m.mu.Lock()
	m.cache[memberKey{userID: userID, roomID: roomID}] = member
	m.mu.Unlock()
}
