package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/apperr"
	"github.com/lalith-99/campuslink/internal/models"
	"github.com/lalith-99/campuslink/internal/realtime"
)

// --- fakes -----------------------------------------------------------

type fakeMessageRepo struct {
	mu         sync.Mutex
	nextID     int64
	messages   map[int64]*models.Message
	names      map[uuid.UUID]string
	failCreate bool

	// listHook, when set, runs once at the start of the next ListRecent
	// call, outside the repo lock.
	listHook func()
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: make(map[int64]*models.Message),
		names:    make(map[uuid.UUID]string),
	}
}

func (r *fakeMessageRepo) Create(ctx context.Context, groupID, senderID uuid.UUID, body string, attachments []string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return nil, errors.New("connection refused")
	}
	r.nextID++
	if attachments == nil {
		attachments = []string{}
	}
	msg := &models.Message{
		ID: r.nextID, GroupID: groupID, SenderID: senderID,
		Body: body, Attachments: attachments, CreatedAt: time.Now(),
	}
	r.messages[msg.ID] = msg
	copied := *msg
	return &copied, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	copied.SenderName = r.names[msg.SenderID]
	return &copied, nil
}

func (r *fakeMessageRepo) ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error) {
	r.mu.Lock()
	hook := r.listHook
	r.listHook = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, 0)
	for id := r.nextID; id > 0 && len(out) < limit; id-- {
		msg, ok := r.messages[id]
		if !ok || msg.GroupID != groupID || msg.IsDeleted {
			continue
		}
		copied := *msg
		copied.SenderName = r.names[msg.SenderID]
		out = append(out, copied)
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkEdited(ctx context.Context, id int64, newBody string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok || msg.IsDeleted {
		return nil, nil
	}
	now := time.Now()
	msg.Body = newBody
	msg.IsEdited = true
	msg.EditedAt = &now
	copied := *msg
	return &copied, nil
}

func (r *fakeMessageRepo) MarkDeleted(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok || msg.IsDeleted {
		return false, nil
	}
	msg.IsDeleted = true
	return true, nil
}

type fakeMembershipRepo struct {
	mu      sync.Mutex
	members map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{members: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (r *fakeMembershipRepo) add(groupID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[groupID] == nil {
		r.members[groupID] = make(map[uuid.UUID]bool)
	}
	r.members[groupID][userID] = true
}

func (r *fakeMembershipRepo) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[groupID][userID], nil
}

func (r *fakeMembershipRepo) ListMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.members[groupID]))
	for id := range r.members[groupID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- harness ---------------------------------------------------------

type chatFixture struct {
	svc      *Service
	dir      *realtime.Directory
	messages *fakeMessageRepo
	members  *fakeMembershipRepo
	group    uuid.UUID
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	messages := newFakeMessageRepo()
	members := newFakeMembershipRepo()
	dir := realtime.NewDirectory(zap.NewNop(), time.Minute)
	return &chatFixture{
		svc:      NewService(messages, members, dir, zap.NewNop()),
		dir:      dir,
		messages: messages,
		members:  members,
		group:    uuid.New(),
	}
}

func (f *chatFixture) connect(t *testing.T, name string) *realtime.Client {
	t.Helper()
	c := realtime.NewClient(models.Identity{
		ID: uuid.New(), Name: name, Role: "student",
		Department: "CSE", Year: 3, Section: "A",
	})
	f.members.add(f.group, c.Identity.ID)
	f.messages.names[c.Identity.ID] = name
	f.dir.Register(c)
	require.NoError(t, f.svc.Join(context.Background(), c, f.group))
	return c
}

func drain(c *realtime.Client) []realtime.Event {
	var evs []realtime.Event
	for {
		select {
		case ev := <-c.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func eventNames(evs []realtime.Event) []string {
	names := make([]string, len(evs))
	for i, ev := range evs {
		names[i] = ev.Name
	}
	return names
}

// --- tests -----------------------------------------------------------

func TestSendRejectsEmptyText(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	drain(a)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Send(context.Background(), a, f.group, text, nil)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	// Attachments alone do not satisfy the text requirement.
	_, err := f.svc.Send(context.Background(), a, f.group, "  ", []string{"notes.pdf"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// Nothing was persisted or broadcast.
	assert.Empty(t, drain(a))
}

func TestSendBroadcastsHydratedMessage(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "Asha")
	b := f.connect(t, "Bala")
	drain(a)
	drain(b)

	msg, err := f.svc.Send(context.Background(), a, f.group, "  hello  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, "Asha", msg.SenderName)

	evs := drain(b)
	require.Equal(t, []string{realtime.EventNewMessage}, eventNames(evs))
	got := evs[0].Data.(*models.Message)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "Asha", got.SenderName)
}

func TestSendRequiresJoinedRoom(t *testing.T) {
	f := newChatFixture(t)
	outsider := realtime.NewClient(models.Identity{ID: uuid.New(), Name: "X", Role: "student"})
	f.dir.Register(outsider)

	_, err := f.svc.Send(context.Background(), outsider, f.group, "hi", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendClearsTypingWithoutExplicitStop(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	drain(a)
	drain(b)

	f.svc.StartTyping(b, f.group)
	drain(a)

	_, err := f.svc.Send(context.Background(), b, f.group, "done typing", nil)
	require.NoError(t, err)

	evs := drain(a)
	require.Equal(t, []string{realtime.EventUserStoppedTyping, realtime.EventNewMessage}, eventNames(evs))
	payload := evs[0].Data.(realtime.TypingPayload)
	assert.Equal(t, b.Identity.ID, payload.IdentityID)
	assert.Empty(t, payload.TypingIDs)
}

func TestSendPersistenceFailureReachesSenderOnly(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	drain(a)
	drain(b)

	f.messages.failCreate = true
	_, err := f.svc.Send(context.Background(), a, f.group, "hello", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrValidation)

	// The room never saw a broadcast for the failed write.
	assert.Empty(t, drain(b))
}

func TestEditByNonSenderIsPermissionError(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	drain(a)
	drain(b)

	msg, err := f.svc.Send(context.Background(), a, f.group, "original", nil)
	require.NoError(t, err)
	drain(a)
	drain(b)

	_, err = f.svc.Edit(context.Background(), b, msg.ID, "hijacked")
	assert.ErrorIs(t, err, apperr.ErrPermission)

	// Message unchanged, no broadcast.
	stored, _ := f.messages.GetByID(context.Background(), msg.ID)
	assert.Equal(t, "original", stored.Body)
	assert.Empty(t, drain(a))
}

func TestEditBroadcastsNewText(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	msg, err := f.svc.Send(context.Background(), a, f.group, "first", nil)
	require.NoError(t, err)
	drain(a)
	drain(b)

	updated, err := f.svc.Edit(context.Background(), a, msg.ID, "second")
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)
	require.NotNil(t, updated.EditedAt)

	evs := drain(b)
	require.Equal(t, []string{realtime.EventMessageEdited}, eventNames(evs))
	data := evs[0].Data.(map[string]any)
	assert.Equal(t, msg.ID, data["messageId"])
	assert.Equal(t, "second", data["newText"])
}

func TestEditRejectsEmptyText(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	msg, err := f.svc.Send(context.Background(), a, f.group, "body", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(context.Background(), a, msg.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEditUnknownMessageIsNotFound(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")

	_, err := f.svc.Edit(context.Background(), a, 9999, "text")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteIsSoftAndExcludedFromHistory(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	kept, err := f.svc.Send(context.Background(), a, f.group, "keep me", nil)
	require.NoError(t, err)
	doomed, err := f.svc.Send(context.Background(), a, f.group, "delete me", nil)
	require.NoError(t, err)
	drain(a)
	drain(b)

	require.NoError(t, f.svc.Delete(context.Background(), a, doomed.ID))

	// Everyone still joined gets message_deleted with the stable id.
	for _, c := range []*realtime.Client{a, b} {
		evs := drain(c)
		require.Equal(t, []string{realtime.EventMessageDeleted}, eventNames(evs))
		assert.Equal(t, doomed.ID, evs[0].Data.(map[string]any)["messageId"])
	}

	// The row survives but history no longer returns it.
	stored, _ := f.messages.GetByID(context.Background(), doomed.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.IsDeleted)

	history, err := f.svc.History(context.Background(), f.group)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, kept.ID, history[0].ID)
}

func TestDeleteByNonSenderIsPermissionError(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	msg, err := f.svc.Send(context.Background(), a, f.group, "mine", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), b, msg.ID), apperr.ErrPermission)
}

func TestDeletedMessageMutationsAreNotFound(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")

	msg, err := f.svc.Send(context.Background(), a, f.group, "bye", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(context.Background(), a, msg.ID))

	_, err = f.svc.Edit(context.Background(), a, msg.ID, "resurrect")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), a, msg.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.React(context.Background(), a, msg.ID, "👍"), apperr.ErrNotFound)
}

func TestHistoryIsDisplayOrdered(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.Send(context.Background(), a, f.group, text, nil)
		require.NoError(t, err)
	}

	history, err := f.svc.History(context.Background(), f.group)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Body)
	assert.Equal(t, "three", history[2].Body)
}

func TestJoinRejectsNonMembers(t *testing.T) {
	f := newChatFixture(t)
	outsider := realtime.NewClient(models.Identity{ID: uuid.New(), Name: "X", Role: "student"})
	f.dir.Register(outsider)

	err := f.svc.Join(context.Background(), outsider, f.group)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	// No partial room membership: the group never hears from them.
	assert.Equal(t, 0, f.dir.PresenceCount(f.group))
}

func TestJoinSeedsHistoryToJoinerOnly(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")

	_, err := f.svc.Send(context.Background(), a, f.group, "hello", nil)
	require.NoError(t, err)
	drain(a)

	b := f.connect(t, "B")
	evs := drain(b)
	// Joiner sees its own user_joined then its history seed.
	require.Equal(t, []string{realtime.EventUserJoined, realtime.EventMessageHistory}, eventNames(evs))
	seeded := evs[1].Data.(map[string]any)["messages"].([]models.Message)
	require.Len(t, seeded, 1)
	assert.Equal(t, "hello", seeded[0].Body)

	// A got the presence event but no history replay.
	assert.Equal(t, []string{realtime.EventUserJoined}, eventNames(drain(a)))
}

func TestJoinDeliversMessageSentDuringHistoryLoad(t *testing.T) {
	// A message landing between room entry and the history snapshot
	// must reach the joiner live, not vanish.
	f := newChatFixture(t)
	ctx := context.Background()

	a := f.connect(t, "A")
	drain(a)

	b := realtime.NewClient(models.Identity{
		ID: uuid.New(), Name: "B", Role: "student",
		Department: "CSE", Year: 3, Section: "A",
	})
	f.members.add(f.group, b.Identity.ID)
	f.messages.names[b.Identity.ID] = "B"
	f.dir.Register(b)

	f.messages.listHook = func() {
		_, err := f.svc.Send(ctx, a, f.group, "mid-join", nil)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Join(ctx, b, f.group))

	evs := drain(b)
	require.Equal(t,
		[]string{realtime.EventUserJoined, realtime.EventNewMessage, realtime.EventMessageHistory},
		eventNames(evs))
	assert.Equal(t, "mid-join", evs[1].Data.(*models.Message).Body)

	// The live copy and the seed may both carry the message; clients
	// dedupe on the stable id.
	seeded := evs[2].Data.(map[string]any)["messages"].([]models.Message)
	require.Len(t, seeded, 1)
	assert.Equal(t, evs[1].Data.(*models.Message).ID, seeded[0].ID)
}

func TestReactBroadcastsAndStaysEphemeral(t *testing.T) {
	f := newChatFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	msg, err := f.svc.Send(context.Background(), a, f.group, "react to me", nil)
	require.NoError(t, err)
	drain(a)
	drain(b)

	require.NoError(t, f.svc.React(context.Background(), b, msg.ID, "🔥"))

	evs := drain(a)
	require.Equal(t, []string{realtime.EventReactionAdded}, eventNames(evs))
	reaction := evs[0].Data.(Reaction)
	assert.Equal(t, msg.ID, reaction.MessageID)
	assert.Equal(t, b.Identity.ID, reaction.IdentityID)
	assert.Equal(t, "🔥", reaction.Emoji)

	assert.Len(t, f.svc.Reactions(msg.ID), 1)
}

func TestGroupChatScenario(t *testing.T) {
	// The end-to-end walk: A alone, sends hello; B joins, types,
	// sends; typing clears implicitly.
	f := newChatFixture(t)
	ctx := context.Background()

	a := f.connect(t, "A")
	drain(a)

	_, err := f.svc.Send(ctx, a, f.group, "hello", nil)
	require.NoError(t, err)
	// A is the sole member: only A receives the broadcast.
	require.Equal(t, []string{realtime.EventNewMessage}, eventNames(drain(a)))

	b := f.connect(t, "B")
	evs := drain(b)
	require.Equal(t, []string{realtime.EventUserJoined, realtime.EventMessageHistory}, eventNames(evs))
	assert.Equal(t, 2, evs[0].Data.(realtime.PresencePayload).OnlineCount)

	// A saw B join with count 2.
	evs = drain(a)
	require.Equal(t, []string{realtime.EventUserJoined}, eventNames(evs))
	assert.Equal(t, 2, evs[0].Data.(realtime.PresencePayload).OnlineCount)

	f.svc.StartTyping(b, f.group)
	evs = drain(a)
	require.Equal(t, []string{realtime.EventUserTyping}, eventNames(evs))
	assert.ElementsMatch(t, []uuid.UUID{b.Identity.ID}, evs[0].Data.(realtime.TypingPayload).TypingIDs)

	// B sends without ever calling typing_stop.
	_, err = f.svc.Send(ctx, b, f.group, "hi A", nil)
	require.NoError(t, err)

	evs = drain(a)
	require.Equal(t, []string{realtime.EventUserStoppedTyping, realtime.EventNewMessage}, eventNames(evs))
	assert.Empty(t, evs[0].Data.(realtime.TypingPayload).TypingIDs)
}
