package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/models"
)

// Channel is an opaque downstream delivery sink (email, SMS, mobile
// push). Dispatch is opportunistic: invoked after the notification is
// persisted, never retried, and a failure never rolls back the stored
// record.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *models.Notification) error
}

// LogChannel stands in for a real provider integration: it logs the
// delivery and succeeds. The production deployment swaps in real
// email/SMS/push clients behind the same interface.
type LogChannel struct {
	name   string
	logger *zap.Logger
}

func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger}
}

func (c *LogChannel) Name() string { return c.name }

func (c *LogChannel) Send(ctx context.Context, n *models.Notification) error {
	c.logger.Info("notification dispatched",
		zap.String("channel", c.name),
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("type", n.Type),
	)
	return nil
}
