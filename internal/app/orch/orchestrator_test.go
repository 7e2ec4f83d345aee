package orch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/core/coretest"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func loggedIn(o *Orchestrator, sid string, uid domain.UserID) *coretest.Session {
	s := coretest.NewSession(sid)
	s.SetUser(domain.User{ID: uid, Email: sid + "@x", Username: sid})
	o.Connect(s)
	return s
}

func TestDisconnectLeavesEverything(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	b := loggedIn(o, "b", 2)
	for _, room := range []domain.RoomID{1, 2, 3} {
		o.JoinSession(a, room)
	}
	o.JoinSession(b, 1)
	o.JoinStream(a, "R1")

	o.Disconnect("a")
	o.Disconnect("a")

	assert.Equal(t, 1, o.Registry.Count())
	assert.Empty(t, o.Rooms.RoomsOf("a"))
	_, ok := o.Streams.CodeOf("a")
	assert.False(t, ok)

	n, err := o.BroadcastRoom(1, protocol.Message, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{protocol.Message}, b.Headers())
	assert.Empty(t, a.Frames())
}

func TestDisconnectRacingJoinLeavesNoMember(t *testing.T) {
	o := New(nil)
	const n = 2000
	sessions := make([]*coretest.Session, n)
	for i := range sessions {
		sessions[i] = loggedIn(o, fmt.Sprintf("s%d", i), 1)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			o.JoinUserToRoom(1, 1)
		}
	}()
	for _, s := range sessions {
		o.Disconnect(s.ID())
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, o.Registry.Count())
	assert.Empty(t, o.Rooms.Members(1))
	for _, s := range sessions {
		_, ok := s.User()
		assert.False(t, ok)
	}
}

func TestJoinRefusesUnboundSession(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	o.Disconnect("a")

	o.JoinSession(a, 2)
	assert.Empty(t, o.Rooms.RoomsOf("a"))
}

func TestSendToReachesEverySessionOfUser(t *testing.T) {
	o := New(nil)
	a1 := loggedIn(o, "a1", 1)
	a2 := loggedIn(o, "a2", 1)
	b := loggedIn(o, "b", 2)

	n, err := o.SendTo(1, protocol.AddFriend, []any{1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, a1.Frames(), 1)
	assert.Len(t, a2.Frames(), 1)
	assert.Empty(t, b.Frames())

	n, err = o.SendTo(99, protocol.AddFriend, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSlowChatMemberIsKicked(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	slow := loggedIn(o, "slow", 2)
	o.JoinSession(a, 5)
	o.JoinSession(slow, 5)
	slow.SetFull(true)

	n, err := o.BroadcastRoom(5, protocol.Message, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, slow.Closed())
	assert.False(t, a.Closed())
}

func TestSlowMediaMemberOnlyLosesFrame(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	slow := loggedIn(o, "slow", 2)
	o.JoinStream(a, "P3")
	o.JoinStream(slow, "P3")
	slow.SetFull(true)

	n, err := o.RelayAudio("a", map[string]string{"audio": "AA"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, slow.Closed())
}

func TestJoinAndRemoveUserFromRoom(t *testing.T) {
	o := New(nil)
	a1 := loggedIn(o, "a1", 1)
	a2 := loggedIn(o, "a2", 1)
	o.JoinUserToRoom(1, 8)
	assert.Len(t, o.Rooms.Members(8), 2)

	o.JoinStream(a1, "R8")
	o.JoinStream(a2, "R9")
	o.RemoveUserFromRoom(1, 8)
	assert.Empty(t, o.Rooms.Members(8))
	_, ok := o.Streams.CodeOf("a1")
	assert.False(t, ok, "leaving a room ends its call")
	code, ok := o.Streams.CodeOf("a2")
	assert.True(t, ok)
	assert.Equal(t, domain.StreamCode("R9"), code)
}

func TestEvictRoomEndsCall(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	b := loggedIn(o, "b", 2)
	o.JoinSession(a, 4)
	o.JoinSession(b, 4)
	o.JoinStream(a, "R4")

	members := o.EvictRoom(4)
	assert.Len(t, members, 2)
	assert.Empty(t, o.Rooms.List())
	assert.Empty(t, o.Streams.List())
}

func TestRelayVideoSkipsSender(t *testing.T) {
	o := New(nil)
	a := loggedIn(o, "a", 1)
	b := loggedIn(o, "b", 2)
	c := loggedIn(o, "c", 3)
	for _, s := range []*coretest.Session{a, b, c} {
		o.JoinStream(s, "R1")
	}

	n, err := o.RelayVideo("a", map[string]any{"frame": false})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, a.Frames())
	f, ok := b.Last(protocol.VideoStream)
	require.True(t, ok)
	assert.JSONEq(t, `{"frame":false}`, string(f.Body))
}
