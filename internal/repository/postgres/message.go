package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalith-99/campuslink/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, groupID, senderID uuid.UUID, body string, attachments []string) (*models.Message, error) {
	// bigserial id, generated by Postgres. RETURNING gives it back.
	query := `
		INSERT INTO messages (group_id, sender_id, body, attachments, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, group_id, sender_id, body, attachments, created_at, edited_at, is_edited, is_deleted`

	if attachments == nil {
		attachments = []string{}
	}

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, groupID, senderID, body, attachments).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.Body,
		&msg.Attachments,
		&msg.CreatedAt,
		&msg.EditedAt,
		&msg.IsEdited,
		&msg.IsDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, m.sender_id, u.display_name, m.body, m.attachments,
		       m.created_at, m.edited_at, m.is_edited, m.is_deleted
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Body,
		&msg.Attachments,
		&msg.CreatedAt,
		&msg.EditedAt,
		&msg.IsEdited,
		&msg.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error) {
	// id DESC instead of created_at DESC: bigserial is monotonic, and
	// an integer sort beats a timestamp sort on the hot path.
	query := `
		SELECT m.id, m.group_id, m.sender_id, u.display_name, m.body, m.attachments,
		       m.created_at, m.edited_at, m.is_edited, m.is_deleted
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = $1 AND NOT m.is_deleted
		ORDER BY m.id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.GroupID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Body,
			&msg.Attachments,
			&msg.CreatedAt,
			&msg.EditedAt,
			&msg.IsEdited,
			&msg.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) MarkEdited(ctx context.Context, id int64, newBody string) (*models.Message, error) {
	// Deleted rows are not editable; the guard lives in the statement
	// so there is no window between check and update.
	query := `
		UPDATE messages
		SET body = $2, is_edited = true, edited_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING id, group_id, sender_id, body, attachments, created_at, edited_at, is_edited, is_deleted`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, id, newBody).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.Body,
		&msg.Attachments,
		&msg.CreatedAt,
		&msg.EditedAt,
		&msg.IsEdited,
		&msg.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) MarkDeleted(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE messages
		SET is_deleted = true
		WHERE id = $1 AND NOT is_deleted`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
