package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/auth"
	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/proto"
)

// StatusUnauthenticated is the close code sent when token validation fails.
const StatusUnauthenticated websocket.StatusCode = 4401

// WSHandler upgrades HTTP connections, authenticates them, and bridges them
// to a core.Client.
type WSHandler struct {
	hub         *core.Hub
	authService *auth.Service
	msgLimit    int
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, msgLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, authService: authService, msgLimit: msgLimit, log: logger}
}

// wsToken pulls the credential from the query string or the Authorization
// header. Browsers cannot set headers on WebSocket upgrades, hence the query
// fallback.
func wsToken(r *stdhttp.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Authentication happens before registration: a rejected connection
	// never touches the registry.
	claims, err := h.authService.ValidateToken(wsToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		conn.Close(StatusUnauthenticated, core.ErrCodeUnauthenticated)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := core.NewClient(uuid.NewString(), claims.UserID, claims.Username)
	if err := h.hub.RegisterClient(ctx, client); err != nil {
		h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("register connection")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	// Cleanup is unconditional: an abnormal disconnect must still leave
	// every broadcast group.
	defer h.hub.UnregisterClient(client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("connection_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.msgLimit)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("connection_id", client.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr == nil && cmd != nil && isChatSend(cmd.Kind) && !limiter.allow() {
			protoErr = &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message rate limit exceeded"}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			select {
			case client.Commands <- cmd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func isChatSend(kind core.CommandKind) bool {
	return kind == core.CommandSendMessage || kind == core.CommandSendToRooms
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("connection_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
