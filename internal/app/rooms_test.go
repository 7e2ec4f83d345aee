package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func TestRoomJoinLeaveNetCount(t *testing.T) {
	r := NewRoomRegistry()
	a, b := newMember("a"), newMember("b")

	assert.True(t, r.Join(a, 1))
	assert.False(t, r.Join(a, 1), "duplicate join is a no-op")
	assert.True(t, r.Join(b, 1))
	assert.Len(t, r.Members(1), 2)

	assert.True(t, r.Leave("a", 1))
	assert.False(t, r.Leave("a", 1))
	assert.Len(t, r.Members(1), 1)
	assert.True(t, r.IsMember("b", 1))
	assert.False(t, r.IsMember("a", 1))

	r.Leave("b", 1)
	assert.Empty(t, r.List(), "empty rooms are forgotten")
}

func TestRoomBroadcastIsolatesFailures(t *testing.T) {
	r := NewRoomRegistry()
	members := []*fakeMember{newMember("a"), newMember("b"), newMember("c"), newMember("d")}
	members[2].fail = true
	for _, m := range members {
		r.Join(m, 7)
	}

	res, err := r.Broadcast(7, protocol.Message, map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, core.SessionID("c"), res.Dropped[0].ID())

	for _, m := range []*fakeMember{members[0], members[1], members[3]} {
		got := m.received()
		require.Len(t, got, 1)
		assert.Equal(t, protocol.Message, got[0].Header)
		assert.JSONEq(t, `{"text":"hi"}`, string(got[0].Body))
	}
}

func TestRoomBroadcastUnknownRoom(t *testing.T) {
	r := NewRoomRegistry()
	res, err := r.Broadcast(99, protocol.Message, nil)
	require.NoError(t, err)
	assert.Zero(t, res.SentTo)
	assert.Empty(t, res.Dropped)
}

func TestRoomLeaveAll(t *testing.T) {
	r := NewRoomRegistry()
	a, b := newMember("a"), newMember("b")
	for _, id := range []domain.RoomID{1, 2, 3} {
		r.Join(a, id)
	}
	r.Join(b, 2)

	left := r.LeaveAll("a")
	assert.ElementsMatch(t, []domain.RoomID{1, 2, 3}, left)
	assert.Empty(t, r.RoomsOf("a"))
	assert.Equal(t, []core.RoomInfo{{ID: 2, MemberCount: 1}}, r.List())
	assert.Empty(t, r.LeaveAll("a"))
}

func TestRoomJoinRefusesClosedMember(t *testing.T) {
	r := NewRoomRegistry()
	gone := newMember("gone")
	gone.closed = true

	assert.False(t, r.Join(gone, 1))
	assert.Empty(t, r.Members(1))
	assert.Empty(t, r.List())
}

func TestRoomDrop(t *testing.T) {
	r := NewRoomRegistry()
	a, b := newMember("a"), newMember("b")
	r.Join(a, 1)
	r.Join(b, 1)
	r.Join(a, 2)

	dropped := r.Drop(1)
	assert.Len(t, dropped, 2)
	assert.Empty(t, r.Members(1))
	assert.Equal(t, []domain.RoomID{2}, r.RoomsOf("a"))
	assert.Empty(t, r.RoomsOf("b"))
}
