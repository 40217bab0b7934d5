package fanout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/models"
	"github.com/lalith-99/campuslink/internal/realtime"
)

func newFixture() (*Publisher, *realtime.Directory) {
	dir := realtime.NewDirectory(zap.NewNop(), time.Minute)
	return NewPublisher(dir, zap.NewNop()), dir
}

func connect(dir *realtime.Directory, role, dept string, year int, section string) *realtime.Client {
	c := realtime.NewClient(models.Identity{
		ID: uuid.New(), Role: role, Department: dept, Year: year, Section: section,
	})
	dir.Register(c)
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

func TestPublishToClassScopesByCohort(t *testing.T) {
	p, dir := newFixture()

	cse3a := connect(dir, "student", "CSE", 3, "A")
	cse3b := connect(dir, "student", "CSE", 3, "B")
	ece3a := connect(dir, "student", "ECE", 3, "A")

	p.ToClass("CSE", 3, "A", "attendance:update", map[string]any{"percent": 84})

	evs := drain(cse3a)
	require.Len(t, evs, 1)
	assert.Equal(t, "attendance:update", evs[0].Name)

	assert.Empty(t, drain(cse3b))
	assert.Empty(t, drain(ece3a))
}

func TestPublishToRoleCrossesDepartments(t *testing.T) {
	p, dir := newFixture()

	facCSE := connect(dir, "faculty", "CSE", 0, "")
	facECE := connect(dir, "faculty", "ECE", 0, "")
	student := connect(dir, "student", "CSE", 3, "A")

	p.ToRole("faculty", "timetable:published", nil)

	assert.Len(t, drain(facCSE), 1)
	assert.Len(t, drain(facECE), 1)
	assert.Empty(t, drain(student))
}

func TestPublishToUserReachesAllDevices(t *testing.T) {
	p, dir := newFixture()

	identity := models.Identity{ID: uuid.New(), Role: "student", Department: "CSE", Year: 2, Section: "B"}
	phone := realtime.NewClient(identity)
	laptop := realtime.NewClient(identity)
	other := connect(dir, "student", "CSE", 2, "B")
	dir.Register(phone)
	dir.Register(laptop)

	p.ToUser(identity.ID, "file:approved", map[string]any{"fileId": "f-1"})

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)
	assert.Empty(t, drain(other))
}

func TestPublishToOfflineScopeIsNoop(t *testing.T) {
	p, _ := newFixture()

	// Nobody connected: must not panic or block.
	p.ToUser(uuid.New(), "file:approved", nil)
	p.ToDepartment("MECH", "notice:new", nil)
}

func TestPublishZeroScopeDropped(t *testing.T) {
	p, dir := newFixture()
	c := connect(dir, "student", "CSE", 3, "A")

	p.Publish(realtime.Room{}, "broken", nil)
	assert.Empty(t, drain(c))
}

func TestBroadcastReachesEveryRole(t *testing.T) {
	p, dir := newFixture()

	student := connect(dir, "student", "CSE", 1, "A")
	admin := connect(dir, "admin", "", 0, "")

	p.Broadcast("maintenance:scheduled", map[string]any{"at": "02:00"})

	for _, c := range []*realtime.Client{student, admin} {
		evs := drain(c)
		require.Len(t, evs, 1)
		assert.Equal(t, "maintenance:scheduled", evs[0].Name)
	}
}

func TestIsUserOnline(t *testing.T) {
	p, dir := newFixture()
	c := connect(dir, "student", "CSE", 3, "A")

	assert.True(t, p.IsUserOnline(c.Identity.ID))
	assert.False(t, p.IsUserOnline(uuid.New()))
}
