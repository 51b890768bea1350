package models

import "time"

// Session transports. Push sessions hold a live websocket; pull sessions
// poll over plain HTTP with a cursor.
const (
	TransportPush = "push"
	TransportPull = "pull"
)

// Event types sent to clients. These match the wire protocol the web
// client speaks over both transports.
const (
	EventMessageHistory = "message_history"
	EventNewMessage     = "new_message"
	EventUsersUpdate    = "users_update"
	EventUserTyping     = "user_typing"
	EventError          = "error"
)

// UserInfo is the presence snapshot entry broadcast in users_update events.
type UserInfo struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinTime"`
}

// Event is one outbound frame delivered to a session. Exactly one of the
// payload fields is populated, selected by Type.
type Event struct {
	Type     string     `json:"type"`
	Message  *Message   `json:"message,omitempty"`
	Messages []Message  `json:"messages,omitempty"`
	Users    []UserInfo `json:"users,omitempty"`
	Username string     `json:"username,omitempty"`
	Typing   *bool      `json:"typing,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// NewMessageEvent wraps a stored message for broadcast.
func NewMessageEvent(msg *Message) Event {
	return Event{Type: EventNewMessage, Message: msg}
}

// TypingEvent reports a typing-state change for one user.
func TypingEvent(username string, typing bool) Event {
	return Event{Type: EventUserTyping, Username: username, Typing: &typing}
}

// UsersUpdateEvent carries a presence snapshot.
func UsersUpdateEvent(users []UserInfo) Event {
	return Event{Type: EventUsersUpdate, Users: users}
}
