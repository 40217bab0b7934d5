package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated principal behind a connection. It is
// resolved once from the JWT at handshake time and stays immutable for
// the connection's lifetime; a reconnect re-resolves it.
//
// Year is 0 and Section is "" for identities that are not part of a
// class (faculty, admins). A class room is derived only when
// Department, Year and Section are all set.
type Identity struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Department string    `json:"department,omitempty"`
	Year       int       `json:"year,omitempty"`
	Section    string    `json:"section,omitempty"`
}

// HasClass reports whether the identity belongs to a class
// (department + year + section).
func (i Identity) HasClass() bool {
	return i.Department != "" && i.Year > 0 && i.Section != ""
}

// User is the durable account record behind an Identity. The realtime
// core only reads it: at login (password check, claim building) and
// when hydrating sender snapshots for message history.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	Year         int       `json:"year,omitempty"`
	Section      string    `json:"section,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GroupMember is the durable membership of an identity in a chat group.
// It is independent of connection state and is consulted at join time
// to authorize room entry.
type GroupMember struct {
	GroupID  uuid.UUID `json:"groupId"`
	UserID   uuid.UUID `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Message is a single chat message in a group.
//
// Messages use bigserial IDs: highest-volume table, naturally ordered,
// and they only ever originate from this process.
//
// A deleted message is retained (soft delete) so its ID stays stable
// for in-flight message_deleted events; history and unread counts
// exclude it.
type Message struct {
	ID          int64      `json:"id"`
	GroupID     uuid.UUID  `json:"groupId"`
	SenderID    uuid.UUID  `json:"senderId"`
	SenderName  string     `json:"senderName"`
	Body        string     `json:"body"`
	Attachments []string   `json:"attachments"`
	CreatedAt   time.Time  `json:"createdAt"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	IsEdited    bool       `json:"isEdited"`
	IsDeleted   bool       `json:"isDeleted"`
}

// Notification is a durable per-user record, independent of connection
// state. Created by the notification fanout, mutated only by read and
// delete operations scoped to its owning user.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"userId"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Link      string            `json:"link,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
}
