package http

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/proto"
)

// outboundFrame mirrors proto.Outbound with raw data for per-event decoding.
type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

// readFrame reads outbound frames until one matches the wanted type and event.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType, event string) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame (waiting for %s/%s): %v", frameType, event, err)
		}
		if frame.Type == frameType && (event == "" || frame.Event == event) {
			return frame
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL("not-a-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var frame outboundFrame
	readErr := wsjson.Read(ctx, conn, &frame)
	if readErr == nil {
		t.Fatalf("expected connection to be closed, got frame %+v", frame)
	}
	if status := websocket.CloseStatus(readErr); status != StatusUnauthenticated {
		t.Fatalf("expected close status %d, got %d (%v)", StatusUnauthenticated, websocket.CloseStatus(readErr), readErr)
	}
}

func TestWebSocketJoinSendReceive(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, "alice")

	resp := env.do(t, "POST", "/api/rooms", aliceToken, `{"name":"general"}`)
	if resp.Code != 201 {
		t.Fatalf("create room: status %d: %s", resp.Code, resp.Body.String())
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bobConn, _, err := websocket.Dial(ctx, env.wsURL(bobToken), nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bobConn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, bobConn, proto.InboundTypeJoin, proto.RoomRef{RoomID: room.ID})

	frame := readFrame(t, ctx, bobConn, proto.OutboundTypeEvent, proto.EventNameMemberJoin)
	var joined proto.EventMember
	if err := json.Unmarshal(frame.Data, &joined); err != nil {
		t.Fatalf("unmarshal member event: %v", err)
	}
	if joined.RoomID != room.ID || joined.UserName != "bob" {
		t.Fatalf("unexpected join event: %+v", joined)
	}

	// Alice connects after creating the room; her connection is subscribed
	// to it on registration.
	aliceConn, _, err := websocket.Dial(ctx, env.wsURL(aliceToken), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, aliceConn, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "hi there"})

	frame = readFrame(t, ctx, bobConn, proto.OutboundTypeEvent, proto.EventNameMessage)
	var event proto.EventMessage
	if err := json.Unmarshal(frame.Data, &event); err != nil {
		t.Fatalf("unmarshal message event: %v", err)
	}
	if event.UserName != "alice" || event.Message != "hi there" || event.RoomID != room.ID {
		t.Fatalf("unexpected event payload: %+v", event)
	}
	if event.UserID != aliceID || event.ID == 0 {
		t.Fatalf("message event missing author or persisted id: %+v", event)
	}

	// The sender's own subscribed connection gets the echo too.
	frame = readFrame(t, ctx, aliceConn, proto.OutboundTypeEvent, proto.EventNameMessage)
	var echo proto.EventMessage
	if err := json.Unmarshal(frame.Data, &echo); err != nil {
		t.Fatalf("unmarshal echo event: %v", err)
	}
	if echo.ID != event.ID {
		t.Fatalf("echo does not match broadcast: %+v vs %+v", echo, event)
	}
}

func TestWebSocketErrorFrames(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")

	resp := env.do(t, "POST", "/api/rooms", aliceToken, `{"name":"general"}`)
	if resp.Code != 201 {
		t.Fatalf("create room: status %d: %s", resp.Code, resp.Body.String())
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(bobToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Unknown envelope type is rejected without dropping the connection.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "nonsense"}); err != nil {
		t.Fatalf("send nonsense: %v", err)
	}
	frame := readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if frame.Error == nil || frame.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", frame)
	}

	// Sending into a room without membership yields a stable error code.
	sendInbound(t, ctx, conn, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "hi"})
	frame = readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if frame.Error == nil || frame.Error.Code != core.ErrCodeNotMember {
		t.Fatalf("expected not_member error, got %+v", frame)
	}

	// The connection is still usable afterwards.
	sendInbound(t, ctx, conn, proto.InboundTypeJoin, proto.RoomRef{RoomID: room.ID})
	readFrame(t, ctx, conn, proto.OutboundTypeEvent, proto.EventNameMemberJoin)
}

func TestWebSocketRateLimitSendsErrorFrame(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")

	resp := env.do(t, "POST", "/api/rooms", aliceToken, `{"name":"general"}`)
	if resp.Code != 201 {
		t.Fatalf("create room: status %d", resp.Code)
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(aliceToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// One over the limit configured by newTestEnv.
	for i := 0; i < 6; i++ {
		sendInbound(t, ctx, conn, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "spam"})
	}

	// Deliveries and the limiter's error frame come from different write
	// paths, so collect both in whatever order they arrive.
	delivered, limited := 0, false
	for delivered < 5 || !limited {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame (delivered=%d limited=%v): %v", delivered, limited, err)
		}
		switch {
		case frame.Type == proto.OutboundTypeEvent && frame.Event == proto.EventNameMessage:
			delivered++
		case frame.Type == proto.OutboundTypeError:
			// The violation produces an error frame; the connection stays open.
			if frame.Error == nil || frame.Error.Code != core.ErrCodeBadRequest {
				t.Fatalf("unexpected error frame: %+v", frame)
			}
			limited = true
		}
	}

	// Joins are not rate limited and still work on the same connection.
	sendInbound(t, ctx, conn, proto.InboundTypeLeave, proto.RoomRef{RoomID: room.ID})
	frame := readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if frame.Error == nil || frame.Error.Code != core.ErrCodeCreatorCannotLeave {
		t.Fatalf("connection unusable after rate limit: %+v", frame)
	}
}

func TestWebSocketCreateAndDeleteRoom(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(aliceToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, conn, proto.InboundTypeCreateRoom, proto.CreateRoomData{Name: "mine"})

	frame := readFrame(t, ctx, conn, proto.OutboundTypeEvent, proto.EventNameRoomCreated)
	var created proto.EventRoom
	if err := json.Unmarshal(frame.Data, &created); err != nil {
		t.Fatalf("unmarshal room created: %v", err)
	}
	if created.RoomName != "mine" || created.RoomID == 0 {
		t.Fatalf("unexpected room created event: %+v", created)
	}

	sendInbound(t, ctx, conn, proto.InboundTypeDeleteRoom, proto.RoomRef{RoomID: created.RoomID})

	frame = readFrame(t, ctx, conn, proto.OutboundTypeEvent, proto.EventNameRoomDeleted)
	var deleted proto.EventRoom
	if err := json.Unmarshal(frame.Data, &deleted); err != nil {
		t.Fatalf("unmarshal room deleted: %v", err)
	}
	if deleted.RoomID != created.RoomID {
		t.Fatalf("unexpected room deleted event: %+v", deleted)
	}
}

func TestLeaveEndpointStopsLiveDelivery(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")

	resp := env.do(t, "POST", "/api/rooms", aliceToken, `{"name":"general"}`)
	if resp.Code != 201 {
		t.Fatalf("create room: status %d: %s", resp.Code, resp.Body.String())
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bobConn, _, err := websocket.Dial(ctx, env.wsURL(bobToken), nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bobConn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, bobConn, proto.InboundTypeJoin, proto.RoomRef{RoomID: room.ID})
	readFrame(t, ctx, bobConn, proto.OutboundTypeEvent, proto.EventNameMemberJoin)

	aliceConn, _, err := websocket.Dial(ctx, env.wsURL(aliceToken), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer aliceConn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, aliceConn, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "before"})
	readFrame(t, ctx, bobConn, proto.OutboundTypeEvent, proto.EventNameMessage)
	readFrame(t, ctx, aliceConn, proto.OutboundTypeEvent, proto.EventNameMessage)

	// Leaving over REST must unsubscribe Bob's live connection too.
	resp = env.do(t, "POST", fmt.Sprintf("/api/rooms/%d/leave", room.ID), bobToken, "")
	if resp.Code != 204 {
		t.Fatalf("leave room: status %d: %s", resp.Code, resp.Body.String())
	}

	sendInbound(t, ctx, aliceConn, proto.InboundTypeMsg, proto.MsgData{RoomID: room.ID, Text: "after leave"})

	// Alice's echo proves the broadcast ran.
	frame := readFrame(t, ctx, aliceConn, proto.OutboundTypeEvent, proto.EventNameMessage)
	var echo proto.EventMessage
	if err := json.Unmarshal(frame.Data, &echo); err != nil {
		t.Fatalf("unmarshal echo event: %v", err)
	}
	if echo.Message != "after leave" {
		t.Fatalf("unexpected echo payload: %+v", echo)
	}

	// Bob's connection is still open but gets nothing further.
	quiet, quietCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer quietCancel()
	var stray outboundFrame
	if err := wsjson.Read(quiet, bobConn, &stray); err == nil {
		t.Fatalf("expected no delivery after leave, got %+v", stray)
	}
}
