package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func TestJoinStreamChecksAccess(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	carol := h.login("carol")
	room := h.createRoom(alice, "general")
	code := domain.NewStreamCode(domain.StreamRoom, int64(room.ID))

	h.do(carol, protocol.JoinStream, map[string]any{"code": code})
	assert.Equal(t, "You cannot join that call", errorMessage(t, carol))

	h.do(carol, protocol.JoinStream, map[string]any{"code": "P77"})
	assert.Equal(t, "You cannot join that call", errorMessage(t, carol))

	h.do(carol, protocol.JoinStream, map[string]any{"code": "X1"})
	assert.Equal(t, "You cannot join that call", errorMessage(t, carol))

	h.do(alice, protocol.JoinStream, map[string]any{"code": code})
	assert.Equal(t, code, body[domain.StreamCode](t, alice, protocol.StreamJoined))
	got, ok := h.orch.Streams.CodeOf(alice.ID())
	require.True(t, ok)
	assert.Equal(t, code, got)
}

func TestRelayMedia(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	bob := h.login("bob")
	carol := h.login("carol")
	room := h.createRoom(alice, "general", "bob", "carol")
	code := domain.NewStreamCode(domain.StreamRoom, int64(room.ID))
	h.do(alice, protocol.JoinStream, map[string]any{"code": code})
	h.do(bob, protocol.JoinStream, map[string]any{"code": code})
	alice.Reset()
	bob.Reset()
	carol.Reset()

	h.do(alice, protocol.VideoStream, map[string]any{"frame": "AAAA"})
	f, ok := bob.Last(protocol.VideoStream)
	require.True(t, ok)
	assert.JSONEq(t, `"AAAA"`, string(f.Body))
	assert.Empty(t, alice.Frames(), "video is not echoed")

	h.do(alice, protocol.VideoStream, map[string]any{"frame": false})
	f, _ = bob.Last(protocol.VideoStream)
	assert.JSONEq(t, `false`, string(f.Body))

	h.do(bob, protocol.AudioStream, map[string]any{"audio": "c291bmQ="})
	for _, s := range [][]string{alice.Headers(), bob.Headers()} {
		assert.Contains(t, s, protocol.AudioStream)
	}
	assert.Empty(t, carol.Frames(), "not in the call")

	h.do(alice, protocol.VideoStream, map[string]any{})
	assert.Equal(t, msgMalformed, errorMessage(t, alice))

	h.do(bob, protocol.LeaveStream, nil)
	bob.Reset()
	h.do(alice, protocol.AudioStream, map[string]any{"audio": "eA=="})
	assert.Empty(t, bob.Frames())
}

func TestJoinStreamMovesSession(t *testing.T) {
	h := newHarness(t)
	alice := h.login("alice")
	h.login("bob")
	r1 := h.createRoom(alice, "one")
	f := h.befriend(alice, "bob")
	roomCode := domain.NewStreamCode(domain.StreamRoom, int64(r1.ID))
	privCode := domain.NewStreamCode(domain.StreamPrivate, int64(f.ID))

	h.do(alice, protocol.JoinStream, map[string]any{"code": roomCode})
	h.do(alice, protocol.JoinStream, map[string]any{"code": privCode})

	assert.Empty(t, h.orch.Streams.Members(roomCode))
	assert.Len(t, h.orch.Streams.Members(privCode), 1)
}
