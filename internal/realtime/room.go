package realtime

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lalith-99/campuslink/internal/models"
)

// RoomKind tags the five multicast scopes.
type RoomKind int

const (
	RoomUser RoomKind = iota
	RoomRole
	RoomDept
	RoomClass
	RoomGroup
)

// Room is a named multicast target. It is a tagged value with a single
// canonical serialization, so "the CSE 3A class room" has exactly one
// name everywhere — there is no ad hoc string concatenation at call
// sites.
//
// Room is comparable and used directly as a map key.
type Room struct {
	kind RoomKind
	name string
}

func (r Room) Kind() RoomKind { return r.kind }
func (r Room) String() string { return r.name }

// IsZero reports whether r is the zero Room (no scope).
func (r Room) IsZero() bool { return r.name == "" }

// UserRoom addresses every live connection of one user.
func UserRoom(userID uuid.UUID) Room {
	return Room{kind: RoomUser, name: fmt.Sprintf("user:%s", userID)}
}

// RoleRoom addresses every connection whose identity holds the role.
func RoleRoom(role string) Room {
	return Room{kind: RoomRole, name: fmt.Sprintf("role:%s", role)}
}

// DeptRoom addresses every connection in a department.
func DeptRoom(department string) Room {
	return Room{kind: RoomDept, name: fmt.Sprintf("dept:%s", department)}
}

// ClassRoom addresses one department+year+section cohort.
func ClassRoom(department string, year int, section string) Room {
	return Room{kind: RoomClass, name: fmt.Sprintf("class:%s:%d:%s", department, year, section)}
}

// GroupRoom addresses the live members of one chat group.
func GroupRoom(groupID uuid.UUID) Room {
	return Room{kind: RoomGroup, name: fmt.Sprintf("group:%s", groupID)}
}

// IdentityRooms derives the rooms every connection of this identity is
// implicitly a member of. Group rooms are never derived; they require
// an explicit, membership-checked join.
func IdentityRooms(id models.Identity) []Room {
	rooms := []Room{UserRoom(id.ID), RoleRoom(id.Role)}
	if id.Department != "" {
		rooms = append(rooms, DeptRoom(id.Department))
	}
	if id.HasClass() {
		rooms = append(rooms, ClassRoom(id.Department, id.Year, id.Section))
	}
	return rooms
}
