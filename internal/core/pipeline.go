package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/store"
)

// MaxMessageLen is the maximum chat message length in characters.
const MaxMessageLen = 1000

// Sender identifies the authenticated author of a message.
type Sender struct {
	UserID   int64
	Username string
}

// RoomOutcome is the per-room result of a multi-room send.
type RoomOutcome struct {
	RoomID  int64
	Message *store.Message
	Err     error
}

// Pipeline runs a chat message end to end: validate, re-check membership,
// persist, then dispatch to the room's broadcast group. No lock is held
// across the store calls or the dispatch; the router serializes delivery per
// room.
type Pipeline struct {
	store   store.Store
	members *MembershipIndex
	router  *Router
	log     *zerolog.Logger
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(st store.Store, members *MembershipIndex, router *Router, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   st,
		members: members,
		router:  router,
		log:     logger,
	}
}

// SendMessage validates, persists, and broadcasts one message.
// The persisted message is returned so the sender's client can reconcile
// without waiting for its own broadcast. On any error nothing is broadcast.
func (p *Pipeline) SendMessage(ctx context.Context, sender Sender, roomID int64, text string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}

	// Membership is re-checked at send time, not cached from connection
	// time. The check and the insert below are deliberately not one
	// transaction; a room deleted in between surfaces as ErrRoomNotFound
	// from the insert's foreign key.
	member, err := p.members.IsMember(ctx, sender.UserID, roomID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	userID := sender.UserID
	msg := &store.Message{
		RoomID:     roomID,
		UserID:     &userID,
		AuthorName: sender.Username,
		Body:       text,
	}
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return nil, ErrRoomNotFound
		}
		p.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", sender.UserID).Msg("persist message")
		return nil, persistenceError(err)
	}

	p.router.Deliver(roomID, &Event{
		Kind:   EventMessageReceived,
		RoomID: roomID,
		Message: &Message{
			ID:         msg.ID,
			RoomID:     roomID,
			AuthorID:   sender.UserID,
			AuthorName: sender.Username,
			Text:       text,
			SentAt:     msg.CreatedAt,
		},
	})

	return msg, nil
}

// SendToRooms applies SendMessage independently per room. A failure on one
// room never aborts the remaining rooms; the caller gets a per-room outcome.
func (p *Pipeline) SendToRooms(ctx context.Context, sender Sender, roomIDs []int64, text string) []RoomOutcome {
	outcomes := make([]RoomOutcome, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		msg, err := p.SendMessage(ctx, sender, roomID, text)
		outcomes = append(outcomes, RoomOutcome{RoomID: roomID, Message: msg, Err: err})
	}
	return outcomes
}
