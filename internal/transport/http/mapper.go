package http

import (
	"encoding/json"

	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/proto"
)

// inboundToCommand maps a wire envelope onto a core command. A non-nil
// proto.Error means the envelope was well-formed json but invalid; a non-nil
// error means the connection should be dropped.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var ref proto.RoomRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil {
			return nil, nil, err
		}
		if ref.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, RoomID: ref.RoomID}, nil, nil

	case proto.InboundTypeLeave:
		var ref proto.RoomRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil {
			return nil, nil, err
		}
		if ref.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandLeaveRoom, RoomID: ref.RoomID}, nil, nil

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandSendMessage, RoomID: msg.RoomID, Text: msg.Text}, nil, nil

	case proto.InboundTypeMsgMulti:
		var msg proto.MsgMultiData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if len(msg.RoomIDs) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_ids is required"}, nil
		}
		return &core.Command{Kind: core.CommandSendToRooms, RoomIDs: msg.RoomIDs, Text: msg.Text}, nil, nil

	case proto.InboundTypeCreateRoom:
		var create proto.CreateRoomData
		if err := json.Unmarshal(inbound.Data, &create); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:    core.CommandCreateRoom,
			Text:    create.Name,
			Private: create.Private,
			UserIDs: create.MemberIDs,
		}, nil, nil

	case proto.InboundTypeDeleteRoom:
		var ref proto.RoomRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil {
			return nil, nil, err
		}
		if ref.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandDeleteRoom, RoomID: ref.RoomID}, nil, nil

	case proto.InboundTypeInvite:
		var invite proto.InviteData
		if err := json.Unmarshal(inbound.Data, &invite); err != nil {
			return nil, nil, err
		}
		if invite.RoomID <= 0 || invite.UserID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id and user_id are required"}, nil
		}
		return &core.Command{Kind: core.CommandInvite, RoomID: invite.RoomID, UserID: invite.UserID}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

// outboundFromEvent maps a core event onto its wire payload. One payload
// type per event kind.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageReceived:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data: proto.EventMessage{
				ID:       event.Message.ID,
				RoomID:   event.Message.RoomID,
				UserID:   event.Message.AuthorID,
				UserName: event.Message.AuthorName,
				Message:  event.Message.Text,
				SentAt:   event.Message.SentAt.Unix(),
			},
		}
	case core.EventMemberJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMemberJoin,
			Data:  proto.EventMember{RoomID: event.RoomID, UserID: event.UserID, UserName: event.UserName},
		}
	case core.EventMemberLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMemberLeft,
			Data:  proto.EventMember{RoomID: event.RoomID, UserID: event.UserID, UserName: event.UserName},
		}
	case core.EventMemberAdded:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMemberAdded,
			Data:  proto.EventMember{RoomID: event.RoomID, UserID: event.UserID, UserName: event.UserName},
		}
	case core.EventRoomCreated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameRoomCreated,
			Data:  proto.EventRoom{RoomID: event.RoomID, RoomName: event.RoomName},
		}
	case core.EventRoomDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameRoomDeleted,
			Data:  proto.EventRoom{RoomID: event.RoomID, RoomName: event.RoomName},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message, RoomID: event.RoomID},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
