package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// PresenceTracker maintains, per chat group, a reference-counted
// multiset of identity ids. An identity is present in a group iff its
// refcount there is > 0, so a second device never produces a duplicate
// "joined" transition and a first disconnect of two never produces a
// premature "left".
//
// The table is mutex-guarded and never exposed; all reads go through
// Count.
type PresenceTracker struct {
	mu     sync.Mutex
	groups map[uuid.UUID]map[uuid.UUID]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{groups: make(map[uuid.UUID]map[uuid.UUID]int)}
}

// RecordJoin increments the identity's refcount in the group. It
// returns the new distinct-identity count and whether this join took
// the identity from absent to present (the only case that warrants a
// user_joined broadcast).
func (p *PresenceTracker) RecordJoin(groupID, identityID uuid.UUID) (count int, becamePresent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	group := p.groups[groupID]
	if group == nil {
		group = make(map[uuid.UUID]int)
		p.groups[groupID] = group
	}
	group[identityID]++
	return len(group), group[identityID] == 1
}

// RecordLeave decrements the identity's refcount. It returns the new
// distinct-identity count and whether the identity just went absent.
// Leaving a group one was never in is a no-op.
func (p *PresenceTracker) RecordLeave(groupID, identityID uuid.UUID) (count int, wentAbsent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	group := p.groups[groupID]
	if group == nil {
		return 0, false
	}
	refs, ok := group[identityID]
	if !ok {
		return len(group), false
	}
	if refs > 1 {
		group[identityID] = refs - 1
		return len(group), false
	}
	delete(group, identityID)
	if len(group) == 0 {
		delete(p.groups, groupID)
	}
	return len(group), true
}

// Count returns the number of distinct identities present in the group.
func (p *PresenceTracker) Count(groupID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups[groupID])
}
