package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage delivers a chat message to room members.
	CommandSendMessage CommandKind = iota
	// CommandSendToRooms delivers the same text to several rooms independently.
	CommandSendToRooms
	// CommandJoinRoom makes the user a member and subscribes this connection.
	CommandJoinRoom
	// CommandLeaveRoom removes membership and unsubscribes this connection.
	CommandLeaveRoom
	// CommandCreateRoom creates a room with the user as creator and implicit member.
	CommandCreateRoom
	// CommandDeleteRoom deletes a room; creator only.
	CommandDeleteRoom
	// CommandInvite adds another user to a room; creator only.
	CommandInvite
)

// Command represents an action requested by a client connection.
type Command struct {
	Kind    CommandKind
	RoomID  int64
	RoomIDs []int64 // for CommandSendToRooms
	Text    string  // message body or room name
	Private bool    // for CommandCreateRoom
	UserID  int64   // for CommandInvite: the user to add
	UserIDs []int64 // for CommandCreateRoom: members invited at creation
}
