package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTypingTTL is how long a typing entry lives without a refresh.
// Clients re-send typing_start while composing, so a healthy client
// never expires; a client that died mid-keystroke stops showing as
// typing after this window instead of waiting for transport keepalive.
const DefaultTypingTTL = 8 * time.Second

// TypingCoordinator maintains, per chat group, the set of identities
// currently signaling "typing". Entries carry a rolling deadline;
// besides explicit stop, an entry is cleared on message send, on
// disconnect of the identity's last connection to the group, and on
// expiry.
type TypingCoordinator struct {
	mu     sync.Mutex
	ttl    time.Duration
	groups map[uuid.UUID]map[uuid.UUID]time.Time
}

// TypingExpiry describes one entry removed by Expire, with the set
// remaining in that group afterwards.
type TypingExpiry struct {
	GroupID    uuid.UUID
	IdentityID uuid.UUID
	Remaining  []uuid.UUID
}

func NewTypingCoordinator(ttl time.Duration) *TypingCoordinator {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingCoordinator{
		ttl:    ttl,
		groups: make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

// Start adds (or refreshes) the identity in the group's typing set and
// returns the current set.
func (t *TypingCoordinator) Start(groupID, identityID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	group := t.groups[groupID]
	if group == nil {
		group = make(map[uuid.UUID]time.Time)
		t.groups[groupID] = group
	}
	group[identityID] = time.Now().Add(t.ttl)
	return idsLocked(group)
}

// Stop removes the identity from the group's typing set. It reports
// whether the identity was actually typing, with the remaining set.
func (t *TypingCoordinator) Stop(groupID, identityID uuid.UUID) (removed bool, remaining []uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	group := t.groups[groupID]
	if group == nil {
		return false, nil
	}
	if _, ok := group[identityID]; !ok {
		return false, idsLocked(group)
	}
	delete(group, identityID)
	if len(group) == 0 {
		delete(t.groups, groupID)
	}
	return true, idsLocked(group)
}

// Snapshot returns the group's current typing set.
func (t *TypingCoordinator) Snapshot(groupID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return idsLocked(t.groups[groupID])
}

// Expire removes entries whose deadline passed and returns one record
// per removal so the caller can broadcast user_stopped_typing.
func (t *TypingCoordinator) Expire(now time.Time) []TypingExpiry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []TypingExpiry
	for groupID, group := range t.groups {
		for identityID, deadline := range group {
			if deadline.After(now) {
				continue
			}
			delete(group, identityID)
			expired = append(expired, TypingExpiry{
				GroupID:    groupID,
				IdentityID: identityID,
				Remaining:  idsLocked(group),
			})
		}
		if len(group) == 0 {
			delete(t.groups, groupID)
		}
	}
	return expired
}

func idsLocked(group map[uuid.UUID]time.Time) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(group))
	for id := range group {
		ids = append(ids, id)
	}
	return ids
}
