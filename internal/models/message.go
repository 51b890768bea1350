package models

import "time"

// Message kinds. System messages are server-generated (join/leave notices)
// and carry no author.
const (
	KindText   = "text"
	KindFile   = "file"
	KindSystem = "system"
)

// Message represents a chat message in the durable history.
// Messages are immutable once appended; ID is a ULID assigned by the
// store at append time and is the ordering cursor (append order, not
// wall-clock order).
type Message struct {
	ID        string    `json:"id"` // ULID
	Kind      string    `json:"type"`
	Author    string    `json:"username,omitempty"` // empty for system messages
	Content   string    `json:"content,omitempty"`
	File      *FileInfo `json:"file,omitempty"`
	CreatedAt time.Time `json:"timestamp"` // set by the server, never by the client
}

// FileInfo describes an already-uploaded file embedded in a file message.
// Uploads happen elsewhere; the chat core only relays the descriptor.
type FileInfo struct {
	URL      string `json:"url"`
	Name     string `json:"fileName"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Backend  string `json:"storage,omitempty"` // e.g. "s3", "db"
}
