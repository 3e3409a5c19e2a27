package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for room history.
type MessageHandlers struct {
	hub      *core.Hub
	store    store.Store
	pageSize int
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(hub *core.Hub, st store.Store, pageSize int, logger *zerolog.Logger) *MessageHandlers {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageHandlers{
		hub:      hub,
		store:    st,
		pageSize: pageSize,
		log:      logger,
	}
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID       int64  `json:"id"`
	RoomID   int64  `json:"roomId"`
	UserID   *int64 `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
	SentAt   string `json:"sentAt"`
}

// History lists a room's messages, newest first, paginated with before_id.
// Members only: the missed-message path is this query, not broadcast replay.
// GET /api/rooms/:id/messages?before_id=&limit=
func (h *MessageHandlers) History(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	member, err := h.hub.Members().IsMember(c.Request.Context(), uid, roomID)
	if err != nil {
		writeCoreError(c, err)
		return
	}
	if !member {
		writeCoreError(c, core.ErrNotMember)
		return
	}

	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), roomID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, MessageResponse{
			ID:       m.ID,
			RoomID:   m.RoomID,
			UserID:   m.UserID,
			UserName: m.AuthorName,
			Message:  m.Body,
			SentAt:   m.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}
