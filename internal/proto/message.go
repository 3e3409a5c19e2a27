package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin       = "join"
	InboundTypeLeave      = "leave"
	InboundTypeMsg        = "msg"
	InboundTypeMsgMulti   = "msg_multi"
	InboundTypeCreateRoom = "create_room"
	InboundTypeDeleteRoom = "delete_room"
	InboundTypeInvite     = "invite"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameMessage     = "message"
	EventNameMemberJoin  = "member_joined"
	EventNameMemberLeft  = "member_left"
	EventNameMemberAdded = "member_added"
	EventNameRoomCreated = "room_created"
	EventNameRoomDeleted = "room_deleted"
)

// RoomRef addresses a single room in join/leave/delete requests.
type RoomRef struct {
	RoomID int64 `json:"room_id"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	RoomID int64  `json:"room_id"`
	Text   string `json:"text"`
}

// MsgMultiData sends the same text to several rooms independently.
type MsgMultiData struct {
	RoomIDs []int64 `json:"room_ids"`
	Text    string  `json:"text"`
}

// CreateRoomData requests a new room.
type CreateRoomData struct {
	Name      string  `json:"name"`
	Private   bool    `json:"private"`
	MemberIDs []int64 `json:"member_ids,omitempty"`
}

// InviteData asks to add another user to a room. Creator only.
type InviteData struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is the push payload for a delivered chat message.
type EventMessage struct {
	ID       int64  `json:"id"`
	RoomID   int64  `json:"roomId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
	SentAt   int64  `json:"sentAt"`
}

// EventMember notifies about a membership change in a room.
type EventMember struct {
	RoomID   int64  `json:"roomId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// EventRoom notifies about a room lifecycle change.
type EventRoom struct {
	RoomID   int64  `json:"roomId"`
	RoomName string `json:"roomName"`
}

// Error describes a protocol-level error response. Code is one of the
// stable core error codes; RoomID is set when the error concerns a room.
type Error struct {
	Code   string `json:"code"`
	Msg    string `json:"msg"`
	RoomID int64  `json:"roomId,omitempty"`
}
