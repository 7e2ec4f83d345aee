package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func TestStreamRelayVideoExcludesSender(t *testing.T) {
	r := NewStreamRegistry()
	a, b, c := newMember("a"), newMember("b"), newMember("c")
	for _, m := range []*fakeMember{a, b, c} {
		r.Join(m, "R5")
	}

	res, err := r.RelayVideo("a", map[string]any{"frame": "Zm9v"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SentTo)
	assert.Empty(t, a.received())
	require.Len(t, b.received(), 1)
	assert.Equal(t, protocol.VideoStream, b.received()[0].Header)
	assert.Len(t, c.received(), 1)
}

func TestStreamRelayAudioIncludesSender(t *testing.T) {
	r := NewStreamRegistry()
	a, b, c := newMember("a"), newMember("b"), newMember("c")
	for _, m := range []*fakeMember{a, b, c} {
		r.Join(m, "P9")
	}

	res, err := r.RelayAudio("a", map[string]any{"audio": "AAAA"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SentTo)
	for _, m := range []*fakeMember{a, b, c} {
		got := m.received()
		require.Len(t, got, 1)
		assert.Equal(t, protocol.AudioStream, got[0].Header)
	}
}

func TestStreamRelayWithoutCodeIsNoop(t *testing.T) {
	r := NewStreamRegistry()
	b := newMember("b")
	r.Join(b, "R1")

	res, err := r.RelayAudio("ghost", map[string]any{"audio": "AAAA"})
	require.NoError(t, err)
	assert.Zero(t, res.SentTo)
	assert.Empty(t, b.received())
}

func TestStreamJoinSecondCodeMoves(t *testing.T) {
	r := NewStreamRegistry()
	a, b := newMember("a"), newMember("b")
	r.Join(b, "R1")

	_, moved := r.Join(a, "R1")
	assert.False(t, moved)
	prev, moved := r.Join(a, "P2")
	assert.True(t, moved)
	assert.Equal(t, domain.StreamCode("R1"), prev)

	code, ok := r.CodeOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.StreamCode("P2"), code)
	assert.Len(t, r.Members("R1"), 1)
	assert.Len(t, r.Members("P2"), 1)

	_, moved = r.Join(a, "P2")
	assert.False(t, moved, "rejoining the same code is not a move")
}

func TestStreamLeave(t *testing.T) {
	r := NewStreamRegistry()
	a := newMember("a")
	r.Join(a, "R1")

	code, ok := r.Leave("a")
	assert.True(t, ok)
	assert.Equal(t, domain.StreamCode("R1"), code)
	_, ok = r.CodeOf("a")
	assert.False(t, ok)
	assert.Empty(t, r.List())

	_, ok = r.Leave("a")
	assert.False(t, ok)
}

func TestPolicy(t *testing.T) {
	var p SimplePolicy
	assert.Equal(t, KickMember, p.OnBackPressure(TrafficChat, nil))
	assert.Equal(t, DropFrame, p.OnBackPressure(TrafficMedia, nil))
}
