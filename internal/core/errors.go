package core

// Stable error codes. Transports map these onto their own status space
// without matching message text.
const (
	ErrCodeEmptyMessage       = "empty_message"
	ErrCodeMessageTooLong     = "message_too_long"
	ErrCodeEmptyName          = "empty_name"
	ErrCodeNameTooLong        = "name_too_long"
	ErrCodeNotMember          = "not_member"
	ErrCodeAlreadyMember      = "already_member"
	ErrCodeCreatorCannotLeave = "creator_cannot_leave"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeMembershipNotFound = "membership_not_found"
	ErrCodeUserNotFound       = "user_not_found"
	ErrCodeForbidden          = "forbidden"
	ErrCodePersistence        = "persistence_error"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeBadRequest         = "bad_request"
)

// CoreError wraps a stable code and a human-readable message.
type CoreError struct {
	Code    string
	Message string
	cause   error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.cause
}

// Validation and state errors are rejected before (or instead of) any side
// effect, so the shared values are safe to return from concurrent calls.
var (
	ErrEmptyMessage       = &CoreError{Code: ErrCodeEmptyMessage, Message: "message cannot be empty"}
	ErrMessageTooLong     = &CoreError{Code: ErrCodeMessageTooLong, Message: "message is too long (max 1000 characters)"}
	ErrEmptyName          = &CoreError{Code: ErrCodeEmptyName, Message: "room name cannot be empty"}
	ErrNameTooLong        = &CoreError{Code: ErrCodeNameTooLong, Message: "room name is too long (max 100 characters)"}
	ErrNotMember          = &CoreError{Code: ErrCodeNotMember, Message: "you are not a member of this room"}
	ErrAlreadyMember      = &CoreError{Code: ErrCodeAlreadyMember, Message: "user is already a member of the room"}
	ErrCreatorCannotLeave = &CoreError{Code: ErrCodeCreatorCannotLeave, Message: "room creators cannot leave their own rooms, delete the room instead"}
	ErrRoomNotFound       = &CoreError{Code: ErrCodeRoomNotFound, Message: "room not found"}
	ErrMembershipNotFound = &CoreError{Code: ErrCodeMembershipNotFound, Message: "membership not found"}
	ErrUserNotFound       = &CoreError{Code: ErrCodeUserNotFound, Message: "user not found"}
	ErrForbidden          = &CoreError{Code: ErrCodeForbidden, Message: "only the room creator can do that"}
	ErrUnauthenticated    = &CoreError{Code: ErrCodeUnauthenticated, Message: "authentication required"}
)

// persistenceError tags an infrastructure failure while keeping the cause
// reachable through errors.Unwrap.
func persistenceError(err error) *CoreError {
	return &CoreError{Code: ErrCodePersistence, Message: "storage failure", cause: err}
}
