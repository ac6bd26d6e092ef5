package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomsJoinAndMembers(t *testing.T) {
	rooms := NewRooms()
	a := newConn("c1", "alice")
	b := newConn("c2", "bob")

	rooms.Join("chat-1", a)
	rooms.Join("chat-1", b)
	rooms.Join("chat-2", a)

	assert.Len(t, rooms.Members("chat-1"), 2)
	assert.Len(t, rooms.Members("chat-2"), 1)
	assert.Empty(t, rooms.Members("chat-404"))
}

func TestRoomsJoinIdempotent(t *testing.T) {
	rooms := NewRooms()
	a := newConn("c1", "alice")

	rooms.Join("chat-1", a)
	rooms.Join("chat-1", a)

	assert.Len(t, rooms.Members("chat-1"), 1)
}

func TestRoomsLeaveAll(t *testing.T) {
	rooms := NewRooms()
	a := newConn("c1", "alice")
	b := newConn("c2", "bob")

	rooms.Join("chat-1", a)
	rooms.Join("chat-1", b)
	rooms.Join("chat-2", a)

	rooms.LeaveAll(a)

	assert.Len(t, rooms.Members("chat-1"), 1)
	assert.Empty(t, rooms.Members("chat-2"), "empty room is pruned")

	// LeaveAll on a connection that joined nothing is a no-op.
	rooms.LeaveAll(newConn("c3", "carol"))
	assert.Len(t, rooms.Members("chat-1"), 1)
}
