package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Wire frame, both directions: {"event": "...", "data": {...}}.

// Event is an outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// InboundFrame is a client frame before dispatch. Data stays raw until
// the handler knows which payload shape to decode.
type InboundFrame struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	EventJoinChat      = "join_chat"
	EventLeaveChat     = "leave_chat"
	EventSendMessage   = "send_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventAddReaction   = "add_reaction"
)

// Outbound event names.
const (
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventMessageHistory    = "message_history"
	EventNewMessage        = "new_message"
	EventMessageEdited     = "message_edited"
	EventMessageDeleted    = "message_deleted"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventReactionAdded     = "reaction_added"
	EventError             = "error"

	// EventNotificationNew is pushed through the user room by the
	// notification fanout.
	EventNotificationNew = "notification:new"
)

// PresencePayload is the data of user_joined and user_left.
type PresencePayload struct {
	IdentityID  uuid.UUID `json:"identityId"`
	OnlineCount int       `json:"onlineCount"`
}

// TypingPayload is the data of user_typing and user_stopped_typing.
// TypingIDs is the full current set, so clients render from it alone.
type TypingPayload struct {
	IdentityID uuid.UUID   `json:"identityId"`
	TypingIDs  []uuid.UUID `json:"typingIds"`
}

// ErrorPayload is sent only to the originating connection, never
// broadcast.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent wraps a message into the standard error frame.
func ErrorEvent(message string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Message: message}}
}
