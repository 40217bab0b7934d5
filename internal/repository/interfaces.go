package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/lalith-99/campuslink/internal/models"
)

// Every method takes a context: these all hit the network, and request
// cancellation must propagate to the query.

// MessageRepository handles chat message persistence. Deletes are soft:
// the row is kept with is_deleted=true so already-broadcast events can
// keep referencing the id; reads exclude deleted rows.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt
	// populated. SenderName is left for the caller to fill from the
	// connection's identity snapshot.
	Create(ctx context.Context, groupID, senderID uuid.UUID, body string, attachments []string) (*models.Message, error)

	// GetByID returns a single message, including soft-deleted ones
	// (ownership checks need the row either way). Returns nil, nil if
	// the id does not exist.
	GetByID(ctx context.Context, id int64) (*models.Message, error)

	// ListRecent returns the newest non-deleted messages of a group,
	// most recent first, hydrated with the sender display snapshot.
	ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error)

	// MarkEdited replaces the body and stamps edited_at. Returns the
	// updated row, or nil, nil if the id does not exist or the row is
	// already deleted.
	MarkEdited(ctx context.Context, id int64, newBody string) (*models.Message, error)

	// MarkDeleted soft-deletes the message. Reports whether a live row
	// was actually flipped.
	MarkDeleted(ctx context.Context, id int64) (bool, error)
}

// MembershipRepository is the durable group-membership lookup,
// independent of connection state. Read at join time to authorize room
// entry.
type MembershipRepository interface {
	// IsMember checks if a user belongs to a group. Hot-path check —
	// consulted before every room join.
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)

	// ListMemberIDs returns the ids of all members of a group. Used to
	// expand group-wide notifications into per-user records.
	ListMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

// NotificationRepository persists per-user notifications and their
// read state. All mutations are scoped to the owning user inside the
// statement itself; a cross-user id simply affects zero rows.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)

	// CreateBulk inserts one row per recipient in a single batch.
	CreateBulk(ctx context.Context, userIDs []uuid.UUID, template *models.Notification) ([]models.Notification, error)

	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error)

	// MarkRead flips is_read for one notification owned by userID.
	// Reports whether a row was affected.
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)

	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete removes one notification owned by userID. Reports whether
	// a row was affected.
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)

	DeleteAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// UserRepository reads account records: login and display snapshots.
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail looks up a user for login. Returns nil, nil if the
	// email is unknown.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
