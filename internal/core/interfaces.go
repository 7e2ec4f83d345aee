package core

import (
	"context"

	"github.com/dkeye/roomcast/internal/domain"
)

// Frame is one encoded wire frame, length prefix included.
type Frame []byte

type SessionID string

// Member is what a room or stream index holds: an addressable, non-owning
// handle on a live connection. Registries never close it.
type Member interface {
	ID() SessionID
	TrySend(Frame) error
	// Closed reports that the connection is going away. Registries refuse it.
	Closed() bool
}

// Session is server-side state for one live connection.
// Owned by the transport adapter; the adapter must Close() it.
type Session interface {
	Member
	RemoteAddr() string

	// User returns the identity bound on LOGIN.
	User() (domain.User, bool)
	SetUser(domain.User)
	ClearUser()

	// Send encodes and queues a frame, waiting for queue space.
	Send(ctx context.Context, header string, body any) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []Member
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID      SessionID     `json:"sid"`
	UserID   domain.UserID `json:"user_id,omitempty"`
	Username string        `json:"username,omitempty"`
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type StreamInfo struct {
	Code        domain.StreamCode `json:"code"`
	MemberCount int               `json:"member_count"`
}
