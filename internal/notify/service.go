// Package notify is the durable counterpart to the scoped fanout: it
// persists a per-user notification record first, then attempts live
// delivery, falling back to downstream channels for offline users.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/apperr"
	"github.com/lalith-99/campuslink/internal/models"
	"github.com/lalith-99/campuslink/internal/realtime"
	"github.com/lalith-99/campuslink/internal/repository"
)

// Pusher is the live-delivery side consumed by this service; the
// scoped fanout publisher satisfies it.
type Pusher interface {
	ToUser(userID uuid.UUID, event string, payload any)
	IsUserOnline(userID uuid.UUID) bool
}

// UnreadCache caches per-user unread counters. Nil-safe at the service
// level: without a cache every count hits the store.
type UnreadCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int64) error
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

// CreateInput is the caller-facing shape for new notifications.
type CreateInput struct {
	UserID   uuid.UUID
	Title    string
	Message  string
	Type     string
	Link     string
	Metadata map[string]string
}

type Service struct {
	store    repository.NotificationRepository
	members  repository.MembershipRepository
	pusher   Pusher
	cache    UnreadCache
	channels []Channel
	logger   *zap.Logger
}

func NewService(
	store repository.NotificationRepository,
	members repository.MembershipRepository,
	pusher Pusher,
	cache UnreadCache,
	channels []Channel,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		members:  members,
		pusher:   pusher,
		cache:    cache,
		channels: channels,
		logger:   logger,
	}
}

// Create persists the notification, then attempts delivery: a live
// notification:new push when the user is connected, downstream
// channels otherwise. Absence of a live connection is not an error,
// and no delivery failure ever surfaces to the caller once the row is
// stored.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Notification, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: recipient is required", apperr.ErrValidation)
	}
	if in.Title == "" || in.Message == "" {
		return nil, fmt.Errorf("%w: title and message are required", apperr.ErrValidation)
	}

	created, err := s.store.Create(ctx, &models.Notification{
		UserID:   in.UserID,
		Title:    in.Title,
		Message:  in.Message,
		Type:     in.Type,
		Link:     in.Link,
		Metadata: in.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}

	s.invalidate(ctx, created.UserID)
	s.deliver(ctx, created)
	return created, nil
}

// CreateBulk applies Create semantics per recipient in one batch
// write: exactly one independent record per user id.
func (s *Service) CreateBulk(ctx context.Context, userIDs []uuid.UUID, in CreateInput) ([]models.Notification, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", apperr.ErrValidation)
	}
	if in.Title == "" || in.Message == "" {
		return nil, fmt.Errorf("%w: title and message are required", apperr.ErrValidation)
	}

	created, err := s.store.CreateBulk(ctx, userIDs, &models.Notification{
		Title:    in.Title,
		Message:  in.Message,
		Type:     in.Type,
		Link:     in.Link,
		Metadata: in.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store notifications: %w", err)
	}

	s.invalidate(ctx, userIDs...)
	for i := range created {
		s.deliver(ctx, &created[i])
	}
	return created, nil
}

// CreateForGroup expands a chat group's durable membership into a bulk
// notification, e.g. "class rescheduled" to every member whether or
// not they are connected.
func (s *Service) CreateForGroup(ctx context.Context, groupID uuid.UUID, in CreateInput) ([]models.Notification, error) {
	memberIDs, err := s.members.ListMemberIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	if len(memberIDs) == 0 {
		return []models.Notification{}, nil
	}
	return s.CreateBulk(ctx, memberIDs, in)
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkRead marks one notification read. A notification that does not
// exist — or belongs to someone else — is not-found either way.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.store.MarkRead(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: notification %s", apperr.ErrNotFound, id)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// UnreadCount reads through the cache. The count is correct for a
// user who was offline for every Create: the record is persisted
// before any delivery attempt, so nothing depends on a socket event
// having been received.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.cache != nil {
		if count, hit, err := s.cache.Get(ctx, userID); err == nil && hit {
			return count, nil
		} else if err != nil {
			s.logger.Warn("unread cache read failed", zap.Error(err))
		}
	}

	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, count); err != nil {
			s.logger.Warn("unread cache write failed", zap.Error(err))
		}
	}
	return count, nil
}

func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: notification %s", apperr.ErrNotFound, id)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) DeleteAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.DeleteAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// deliver pushes to a live connection when there is one, and falls
// back to downstream channels when there is not. Channel failures are
// logged and swallowed.
func (s *Service) deliver(ctx context.Context, n *models.Notification) {
	if s.pusher != nil && s.pusher.IsUserOnline(n.UserID) {
		s.pusher.ToUser(n.UserID, realtime.EventNotificationNew, n)
		return
	}

	for _, ch := range s.channels {
		if err := ch.Send(ctx, n); err != nil {
			s.logger.Warn("notification channel failed",
				zap.String("channel", ch.Name()),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Warn("unread cache invalidation failed", zap.Error(err))
	}
}
