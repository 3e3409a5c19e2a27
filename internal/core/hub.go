package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/store"
)

// MaxRoomNameLen is the maximum room name length in characters.
const MaxRoomNameLen = 100

// Hub coordinates sessions, membership, and broadcast. It owns the
// connection registry, the membership index, the per-room router, and the
// message pipeline, and exposes the operations transports call. All store
// I/O happens on the calling goroutine; the hub holds no lock of its own.
type Hub struct {
	store    store.Store
	log      *zerolog.Logger
	registry *Registry
	members  *MembershipIndex
	router   *Router
	pipeline *Pipeline
}

// NewHub wires a hub over the given store.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	registry := NewRegistry()
	members := NewMembershipIndex(st)
	router := NewRouter(registry, logger)
	return &Hub{
		store:    st,
		log:      logger,
		registry: registry,
		members:  members,
		router:   router,
		pipeline: NewPipeline(st, members, router, logger),
	}
}

// Run blocks until ctx is cancelled, then stops the dispatch goroutines.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.router.Close()
}

// Members exposes the membership index to transports that mutate membership
// outside a live connection (REST join/leave).
func (h *Hub) Members() *MembershipIndex {
	return h.members
}

// Pipeline exposes the message pipeline.
func (h *Hub) Pipeline() *Pipeline {
	return h.pipeline
}

// RegisterClient registers an authenticated connection and subscribes it to
// every room its user belongs to, then starts serving its commands until ctx
// is cancelled or the command channel closes.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	h.registry.Register(c)

	rooms, err := h.members.RoomsOf(ctx, c.UserID)
	if err != nil {
		h.registry.Unregister(c.ID)
		return err
	}
	for _, roomID := range rooms {
		h.registry.Subscribe(c.ID, roomID)
	}

	h.log.Debug().
		Str("connection_id", c.ID).
		Int64("user_id", c.UserID).
		Int("rooms", len(rooms)).
		Msg("connection registered")

	go h.serve(ctx, c)
	return nil
}

// UnregisterClient removes the connection from every broadcast group and
// from the registry. It runs on every disconnect, graceful or not.
func (h *Hub) UnregisterClient(c *Client) {
	offline := h.registry.Unregister(c.ID)
	h.log.Debug().
		Str("connection_id", c.ID).
		Int64("user_id", c.UserID).
		Bool("user_offline", offline).
		Msg("connection unregistered")
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID int64) bool {
	return h.registry.Online(userID)
}

func (h *Hub) serve(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			h.handle(ctx, c, cmd)
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	sender := Sender{UserID: c.UserID, Username: c.Name}

	switch cmd.Kind {
	case CommandSendMessage:
		if _, err := h.pipeline.SendMessage(ctx, sender, cmd.RoomID, cmd.Text); err != nil {
			h.sendError(c, cmd.RoomID, err)
		}

	case CommandSendToRooms:
		for _, outcome := range h.pipeline.SendToRooms(ctx, sender, cmd.RoomIDs, cmd.Text) {
			if outcome.Err != nil {
				h.sendError(c, outcome.RoomID, outcome.Err)
			}
		}

	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.RoomID)

	case CommandLeaveRoom:
		h.handleLeave(ctx, c, cmd.RoomID)

	case CommandCreateRoom:
		room, err := h.CreateRoom(ctx, sender, cmd.Text, cmd.Private, cmd.UserIDs)
		if err != nil {
			h.sendError(c, 0, err)
			return
		}
		h.registry.Subscribe(c.ID, room.ID)
		c.send(&Event{Kind: EventRoomCreated, RoomID: room.ID, RoomName: room.Name, UserID: c.UserID, UserName: c.Name})

	case CommandDeleteRoom:
		if err := h.DeleteRoom(ctx, sender, cmd.RoomID); err != nil {
			h.sendError(c, cmd.RoomID, err)
		}

	case CommandInvite:
		if err := h.Invite(ctx, sender, cmd.RoomID, cmd.UserID); err != nil {
			h.sendError(c, cmd.RoomID, err)
		}

	default:
		h.sendError(c, cmd.RoomID, &CoreError{Code: ErrCodeBadRequest, Message: "unknown command"})
	}
}

// handleJoin makes the user a member and subscribes the issuing connection.
// The user's other live connections are not auto-subscribed; they pick the
// room up on their next connect.
func (h *Hub) handleJoin(ctx context.Context, c *Client, roomID int64) {
	if _, err := h.members.Join(ctx, c.UserID, roomID); err != nil {
		h.sendError(c, roomID, err)
		return
	}
	h.registry.Subscribe(c.ID, roomID)
	h.router.Deliver(roomID, &Event{Kind: EventMemberJoined, RoomID: roomID, UserID: c.UserID, UserName: c.Name})
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, roomID int64) {
	if err := h.Leave(ctx, Sender{UserID: c.UserID, Username: c.Name}, roomID); err != nil {
		h.sendError(c, roomID, err)
	}
}

// Leave removes the user's membership and pulls every one of their live
// connections out of the room's broadcast group, then tells the remaining
// subscribers. Membership is per user, so a leave from any transport must
// silence all of that user's connections at once.
func (h *Hub) Leave(ctx context.Context, actor Sender, roomID int64) error {
	if err := h.members.Leave(ctx, actor.UserID, roomID); err != nil {
		return err
	}
	for _, client := range h.registry.ConnectionsOf(actor.UserID) {
		h.registry.Unsubscribe(client.ID, roomID)
	}
	h.router.Deliver(roomID, &Event{Kind: EventMemberLeft, RoomID: roomID, UserID: actor.UserID, UserName: actor.Username})
	return nil
}

// CreateRoom creates a room with the creator as implicit member, then adds
// any invited members. Invite failures are logged, not fatal: the room
// exists once created.
func (h *Hub) CreateRoom(ctx context.Context, creator Sender, name string, private bool, memberIDs []int64) (*store.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return nil, ErrNameTooLong
	}

	room, err := h.store.CreateRoom(ctx, name, private, creator.UserID)
	if err != nil {
		return nil, persistenceError(err)
	}

	if _, err := h.members.Join(ctx, creator.UserID, room.ID); err != nil {
		return nil, err
	}

	for _, memberID := range memberIDs {
		if memberID == creator.UserID {
			continue
		}
		if _, err := h.members.Join(ctx, memberID, room.ID); err != nil {
			h.log.Warn().Err(err).Int64("room_id", room.ID).Int64("user_id", memberID).Msg("add invited member")
		}
	}

	h.log.Info().Int64("room_id", room.ID).Str("room_name", room.Name).Int64("creator_id", creator.UserID).Msg("room created")
	return room, nil
}

// DeleteRoom deletes a room, its memberships, and its broadcast group.
// Creator only. Every formerly subscribed connection is told the room is
// gone.
func (h *Hub) DeleteRoom(ctx context.Context, actor Sender, roomID int64) error {
	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return persistenceError(err)
	}
	if room.CreatorID != actor.UserID {
		return ErrForbidden
	}

	if err := h.store.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return persistenceError(err)
	}

	h.members.InvalidateRoom(roomID)

	ev := &Event{Kind: EventRoomDeleted, RoomID: roomID, RoomName: room.Name}
	for _, client := range h.registry.DropGroup(roomID) {
		client.send(ev)
	}
	h.router.CloseRoom(roomID)

	h.log.Info().Int64("room_id", roomID).Int64("actor_id", actor.UserID).Msg("room deleted")
	return nil
}

// Invite adds another user to a room. Creator only. The room's subscribers
// and the invited user's live connections are notified; the invited user's
// connections are not auto-subscribed.
func (h *Hub) Invite(ctx context.Context, actor Sender, roomID, targetID int64) error {
	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return persistenceError(err)
	}
	if room.CreatorID != actor.UserID {
		return ErrForbidden
	}

	target, err := h.store.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return persistenceError(err)
	}

	if _, err := h.members.Join(ctx, targetID, roomID); err != nil {
		return err
	}

	ev := &Event{Kind: EventMemberAdded, RoomID: roomID, RoomName: room.Name, UserID: target.ID, UserName: target.Username}
	h.router.Deliver(roomID, ev)
	for _, client := range h.registry.ConnectionsOf(targetID) {
		client.send(ev)
	}
	return nil
}

// RenameRoom updates a room's name. Creator only.
func (h *Hub) RenameRoom(ctx context.Context, actor Sender, roomID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return ErrNameTooLong
	}

	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return persistenceError(err)
	}
	if room.CreatorID != actor.UserID {
		return ErrForbidden
	}

	if err := h.store.RenameRoom(ctx, roomID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return persistenceError(err)
	}
	return nil
}

func (h *Hub) sendError(c *Client, roomID int64, err error) {
	c.send(&Event{Kind: EventError, RoomID: roomID, Error: coreErrorOf(err)})
}

// coreErrorOf extracts the CoreError from err, wrapping anything else as a
// persistence failure so clients always see a stable code.
func coreErrorOf(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return persistenceError(err)
}
