package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalith-99/campuslink/internal/models"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

const notificationColumns = `id, user_id, title, message, type, coalesce(link, ''), metadata, is_read, created_at, read_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Link,
		&n.Metadata,
		&n.IsRead,
		&n.CreatedAt,
		&n.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (id, user_id, title, message, type, link, metadata, is_read, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, nullif($5, ''), $6, false, now())
		RETURNING ` + notificationColumns

	created, err := scanNotification(s.pool.QueryRow(ctx, query,
		n.UserID, n.Title, n.Message, n.Type, n.Link, n.Metadata))
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

// CreateBulk inserts one notification per recipient in a single batch
// round-trip. Each row is independent: marking one read never touches
// the others.
func (s *NotificationStore) CreateBulk(ctx context.Context, userIDs []uuid.UUID, template *models.Notification) ([]models.Notification, error) {
	query := `
		INSERT INTO notifications (id, user_id, title, message, type, link, metadata, is_read, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, nullif($5, ''), $6, false, now())
		RETURNING ` + notificationColumns

	batch := &pgx.Batch{}
	for _, userID := range userIDs {
		batch.Queue(query, userID, template.Title, template.Message, template.Type, template.Link, template.Metadata)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := make([]models.Notification, 0, len(userIDs))
	for range userIDs {
		n, err := scanNotification(results.QueryRow())
		if err != nil {
			return nil, fmt.Errorf("bulk insert notification: %w", err)
		}
		created = append(created, *n)
	}
	return created, nil
}

func (s *NotificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	// Ownership is the user_id filter in the same statement. A foreign
	// id affects zero rows, indistinguishable from a missing one.
	// Idempotent for the owner: re-marking a read notification still
	// matches, keeping the original read_at.
	query := `
		UPDATE notifications
		SET is_read = true, read_at = coalesce(read_at, now())
		WHERE id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = now()
		WHERE user_id = $1 AND NOT is_read`

	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		SELECT count(*) FROM notifications
		WHERE user_id = $1 AND NOT is_read`

	var count int64
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationStore) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *NotificationStore) DeleteAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE user_id = $1 AND is_read`

	tag, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
