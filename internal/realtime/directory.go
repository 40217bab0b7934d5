package realtime

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory is the identity & room directory: it owns the mapping from
// rooms to live clients, and coordinates the presence tracker and the
// typing coordinator so that every membership change keeps both
// consistent before it returns.
//
// Concurrency model: the room table is guarded by one RWMutex; group
// mutations (join, leave, typing, disconnect cleanup) additionally
// serialize through a mutex picked by hashing the group id into a
// fixed shard table. Two actions on the same group always linearize;
// groups on different shards proceed in parallel. The group lock is
// only ever held around in-memory work: broadcasts enqueue without
// blocking and persistence never happens in here.
//
// Lock order: group lock, then d.mu. Never the reverse.
type Directory struct {
	logger   *zap.Logger
	presence *PresenceTracker
	typing   *TypingCoordinator

	mu     sync.RWMutex
	rooms  map[Room]map[*Client]struct{}
	groups map[*Client]map[uuid.UUID]struct{}

	groupLocks [groupLockShards]sync.Mutex
}

// groupLockShards is the size of the fixed lock table. Sharding keeps
// the lock footprint constant under group churn.
const groupLockShards = 64

func NewDirectory(logger *zap.Logger, typingTTL time.Duration) *Directory {
	return &Directory{
		logger:   logger,
		presence: NewPresenceTracker(),
		typing:   NewTypingCoordinator(typingTTL),
		rooms:    make(map[Room]map[*Client]struct{}),
		groups:   make(map[*Client]map[uuid.UUID]struct{}),
	}
}

// Run drives the typing-expiry sweep until ctx is cancelled. Entries
// that outlive their TTL are cleared and announced exactly as an
// explicit typing_stop would be.
func (d *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			d.expireTyping(now)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Directory) expireTyping(now time.Time) {
	for _, exp := range d.typing.Expire(now) {
		d.Broadcast(GroupRoom(exp.GroupID), Event{
			Name: EventUserStoppedTyping,
			Data: TypingPayload{IdentityID: exp.IdentityID, TypingIDs: exp.Remaining},
		})
	}
}

// Register joins a freshly authenticated client to its identity rooms
// (user, role, dept, class). Group rooms require an explicit JoinGroup.
func (d *Directory) Register(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, room := range IdentityRooms(c.Identity) {
		d.joinRoomLocked(c, room)
	}
	if d.groups[c] == nil {
		d.groups[c] = make(map[uuid.UUID]struct{})
	}

	d.logger.Debug("client registered",
		zap.String("connection_id", c.ID.String()),
		zap.String("user_id", c.Identity.ID.String()),
		zap.String("role", c.Identity.Role),
	)
}

// Unregister removes the client from every room it belongs to. Group
// presence and typing are cleaned up synchronously, before this
// returns: from the rooms' perspective the disconnect is complete, with
// no partial state left behind.
func (d *Directory) Unregister(c *Client) {
	c.Close()

	d.mu.RLock()
	groupIDs := make([]uuid.UUID, 0, len(d.groups[c]))
	for groupID := range d.groups[c] {
		groupIDs = append(groupIDs, groupID)
	}
	d.mu.RUnlock()

	for _, groupID := range groupIDs {
		d.LeaveGroup(c, groupID)
	}

	d.mu.Lock()
	for _, room := range IdentityRooms(c.Identity) {
		d.leaveRoomLocked(c, room)
	}
	delete(d.groups, c)
	d.mu.Unlock()

	d.logger.Debug("client unregistered",
		zap.String("connection_id", c.ID.String()),
		zap.String("user_id", c.Identity.ID.String()),
	)
}

// JoinGroup joins the client to a group room and records presence.
// Idempotent: a second join by the same connection is a no-op and does
// not inflate the refcount. A user_joined event is broadcast only when
// the identity transitions from absent to present, so a second device
// never announces a duplicate join.
//
// Durable-membership authorization is the caller's job; the directory
// deals only in live state.
func (d *Directory) JoinGroup(c *Client, groupID uuid.UUID) {
	lock := d.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	if _, joined := d.groups[c][groupID]; joined {
		d.mu.Unlock()
		return
	}
	if d.groups[c] == nil {
		d.groups[c] = make(map[uuid.UUID]struct{})
	}
	d.groups[c][groupID] = struct{}{}
	d.joinRoomLocked(c, GroupRoom(groupID))
	d.mu.Unlock()

	count, becamePresent := d.presence.RecordJoin(groupID, c.Identity.ID)
	if becamePresent {
		d.Broadcast(GroupRoom(groupID), Event{
			Name: EventUserJoined,
			Data: PresencePayload{IdentityID: c.Identity.ID, OnlineCount: count},
		})
	}
}

// LeaveGroup reverses JoinGroup. When the identity's last connection
// leaves, its typing entry (if any) is cleared and announced, then
// user_left goes out with the new count.
func (d *Directory) LeaveGroup(c *Client, groupID uuid.UUID) {
	lock := d.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	if _, joined := d.groups[c][groupID]; !joined {
		d.mu.Unlock()
		return
	}
	delete(d.groups[c], groupID)
	d.leaveRoomLocked(c, GroupRoom(groupID))
	d.mu.Unlock()

	count, wentAbsent := d.presence.RecordLeave(groupID, c.Identity.ID)
	if !wentAbsent {
		return
	}

	if removed, remaining := d.typing.Stop(groupID, c.Identity.ID); removed {
		d.Broadcast(GroupRoom(groupID), Event{
			Name: EventUserStoppedTyping,
			Data: TypingPayload{IdentityID: c.Identity.ID, TypingIDs: remaining},
		})
	}

	d.Broadcast(GroupRoom(groupID), Event{
		Name: EventUserLeft,
		Data: PresencePayload{IdentityID: c.Identity.ID, OnlineCount: count},
	})
}

// HasJoined reports whether this connection has joined the group room.
func (d *Directory) HasJoined(c *Client, groupID uuid.UUID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.groups[c][groupID]
	return ok
}

// StartTyping records the identity as typing and broadcasts the current
// set to the room, excluding the typer. Ignored when the connection has
// not joined the group.
func (d *Directory) StartTyping(c *Client, groupID uuid.UUID) {
	lock := d.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	// Membership is checked under the group lock: a concurrent
	// LeaveGroup cannot slip between the check and the typing entry and
	// strand a departed identity as typing.
	if !d.HasJoined(c, groupID) {
		return
	}

	ids := d.typing.Start(groupID, c.Identity.ID)
	d.BroadcastExcept(GroupRoom(groupID), Event{
		Name: EventUserTyping,
		Data: TypingPayload{IdentityID: c.Identity.ID, TypingIDs: ids},
	}, c)
}

// StopTyping clears the identity's typing entry and broadcasts the
// remaining set. No-op if the identity was not typing.
func (d *Directory) StopTyping(c *Client, groupID uuid.UUID) {
	lock := d.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	d.clearTypingLocked(groupID, c.Identity.ID)
}

// ClearTyping removes the identity from the group's typing set without
// an explicit stop — the message-send path uses this so a sender never
// stays "typing" after their message lands.
func (d *Directory) ClearTyping(groupID, identityID uuid.UUID) {
	lock := d.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	d.clearTypingLocked(groupID, identityID)
}

func (d *Directory) clearTypingLocked(groupID, identityID uuid.UUID) {
	removed, remaining := d.typing.Stop(groupID, identityID)
	if !removed {
		return
	}
	d.Broadcast(GroupRoom(groupID), Event{
		Name: EventUserStoppedTyping,
		Data: TypingPayload{IdentityID: identityID, TypingIDs: remaining},
	})
}

// PresenceCount returns the number of distinct identities present in
// the group.
func (d *Directory) PresenceCount(groupID uuid.UUID) int {
	return d.presence.Count(groupID)
}

// IsUserOnline reports whether the user has at least one live
// connection. The notification fanout uses this to choose between a
// live push and downstream channels.
func (d *Directory) IsUserOnline(userID uuid.UUID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[UserRoom(userID)]) > 0
}

// Broadcast enqueues the event to every client in the room. Delivery
// is best-effort and at-most-once: a closed client or a full queue
// drops the frame for that client only.
func (d *Directory) Broadcast(room Room, ev Event) {
	d.BroadcastExcept(room, ev, nil)
}

// BroadcastExcept is Broadcast minus one connection (typically the
// actor, for events it should not echo back).
func (d *Directory) BroadcastExcept(room Room, ev Event, except *Client) {
	d.mu.RLock()
	members := make([]*Client, 0, len(d.rooms[room]))
	for c := range d.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	d.mu.RUnlock()

	for _, c := range members {
		if !c.Enqueue(ev) {
			d.logger.Warn("dropping event for slow client",
				zap.String("event", ev.Name),
				zap.String("room", room.String()),
				zap.String("connection_id", c.ID.String()),
			)
		}
	}
}

// BroadcastAll enqueues the event to every registered connection.
func (d *Directory) BroadcastAll(ev Event) {
	d.mu.RLock()
	all := make([]*Client, 0, len(d.groups))
	for c := range d.groups {
		all = append(all, c)
	}
	d.mu.RUnlock()

	for _, c := range all {
		if !c.Enqueue(ev) {
			d.logger.Warn("dropping event for slow client",
				zap.String("event", ev.Name),
				zap.String("connection_id", c.ID.String()),
			)
		}
	}
}

// SendTo delivers an event to a single connection.
func (d *Directory) SendTo(c *Client, ev Event) {
	if !c.Enqueue(ev) {
		d.logger.Warn("dropping event for slow client",
			zap.String("event", ev.Name),
			zap.String("connection_id", c.ID.String()),
		)
	}
}

func (d *Directory) joinRoomLocked(c *Client, room Room) {
	members := d.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		d.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (d *Directory) leaveRoomLocked(c *Client, room Room) {
	members := d.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(d.rooms, room)
	}
}

func (d *Directory) groupLock(groupID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(groupID[:])
	return &d.groupLocks[h.Sum32()%groupLockShards]
}
