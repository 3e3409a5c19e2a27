package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room and membership endpoints.
// Mutations go through the hub so REST and WebSocket share one set of rules
// and one broadcast path.
type RoomHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=100"`
	Private   bool    `json:"private"`
	MemberIDs []int64 `json:"member_ids,omitempty"`
}

// RenameRoomRequest represents the rename room request body.
type RenameRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Private   bool   `json:"private"`
	CreatorID int64  `json:"creator_id"`
	CreatedAt string `json:"created_at"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Private:   room.Private,
		CreatorID: room.CreatorID,
		CreatedAt: room.CreatedAt.Format(time.RFC3339),
	}
}

// statusOf maps stable core error codes onto HTTP statuses.
func statusOf(err error) int {
	var ce *core.CoreError
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch ce.Code {
	case core.ErrCodeEmptyMessage, core.ErrCodeMessageTooLong,
		core.ErrCodeEmptyName, core.ErrCodeNameTooLong, core.ErrCodeBadRequest:
		return http.StatusBadRequest
	case core.ErrCodeNotMember, core.ErrCodeAlreadyMember, core.ErrCodeCreatorCannotLeave:
		return http.StatusConflict
	case core.ErrCodeRoomNotFound, core.ErrCodeMembershipNotFound, core.ErrCodeUserNotFound:
		return http.StatusNotFound
	case core.ErrCodeForbidden:
		return http.StatusForbidden
	case core.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeCoreError(c *gin.Context, err error) {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		c.JSON(statusOf(err), ErrorResponse{Error: ce.Message, Code: ce.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return 0, false
	}
	return id, true
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.hub.CreateRoom(c.Request.Context(), core.Sender{UserID: uid, Username: username}, req.Name, req.Private, req.MemberIDs)
	if err != nil {
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms lists rooms the authenticated user belongs to.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.store.ListRoomsFor(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}
	c.JSON(http.StatusOK, response)
}

// RenameRoom updates a room's name. Creator only.
// PUT /api/rooms/:id
func (h *RoomHandlers) RenameRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req RenameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.hub.RenameRoom(c.Request.Context(), core.Sender{UserID: uid, Username: username}, roomID, req.Name); err != nil {
		writeCoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteRoom deletes a room with its memberships. Creator only.
// DELETE /api/rooms/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.hub.DeleteRoom(c.Request.Context(), core.Sender{UserID: uid, Username: username}, roomID); err != nil {
		writeCoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JoinRoom makes the authenticated user a member of the room. Live
// connections of the user pick the room up on their next connect.
// POST /api/rooms/:id/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	membership, err := h.hub.Members().Join(c.Request.Context(), uid, roomID)
	if err != nil {
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"membership_id": membership.ID,
		"room_id":       membership.RoomID,
		"joined_at":     membership.JoinedAt.Format(time.RFC3339),
	})
}

// LeaveRoom removes the authenticated user's membership and unsubscribes
// their live connections from the room.
// POST /api/rooms/:id/leave
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.hub.Leave(c.Request.Context(), core.Sender{UserID: uid, Username: username}, roomID); err != nil {
		writeCoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
