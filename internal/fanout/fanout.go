// Package fanout publishes domain events — not chat messages — to the
// directory's coarse-grained rooms: a single user, a role, a
// department, a class, or every connection in the process.
//
// Delivery is best-effort and at-most-once per currently-connected
// recipient: no retry, no persistence. A disconnected recipient simply
// misses the event; anything that must survive a disconnect goes
// through the notification service instead.
package fanout

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/realtime"
)

type Publisher struct {
	dir    *realtime.Directory
	logger *zap.Logger
}

func NewPublisher(dir *realtime.Directory, logger *zap.Logger) *Publisher {
	return &Publisher{dir: dir, logger: logger}
}

// Publish delivers an event to every live connection in the scope.
// Event names are caller-defined strings ("attendance:update",
// "file:approved") carrying a caller-defined payload.
func (p *Publisher) Publish(scope realtime.Room, event string, payload any) {
	if scope.IsZero() {
		p.logger.Warn("publish to zero scope dropped", zap.String("event", event))
		return
	}
	p.dir.Broadcast(scope, realtime.Event{Name: event, Data: payload})
	p.logger.Debug("event published",
		zap.String("event", event),
		zap.String("scope", scope.String()),
	)
}

// Broadcast publishes process-wide, to every registered connection.
func (p *Publisher) Broadcast(event string, payload any) {
	p.dir.BroadcastAll(realtime.Event{Name: event, Data: payload})
	p.logger.Debug("event published", zap.String("event", event), zap.String("scope", "all"))
}

// ToUser publishes to every live connection of one user.
func (p *Publisher) ToUser(userID uuid.UUID, event string, payload any) {
	p.Publish(realtime.UserRoom(userID), event, payload)
}

// ToRole publishes to every connection holding the role.
func (p *Publisher) ToRole(role, event string, payload any) {
	p.Publish(realtime.RoleRoom(role), event, payload)
}

// ToDepartment publishes to every connection in the department.
func (p *Publisher) ToDepartment(department, event string, payload any) {
	p.Publish(realtime.DeptRoom(department), event, payload)
}

// ToClass publishes to one department+year+section cohort.
func (p *Publisher) ToClass(department string, year int, section, event string, payload any) {
	p.Publish(realtime.ClassRoom(department, year, section), event, payload)
}

// IsUserOnline reports whether a live push to the user can reach
// anything right now.
func (p *Publisher) IsUserOnline(userID uuid.UUID) bool {
	return p.dir.IsUserOnline(userID)
}
