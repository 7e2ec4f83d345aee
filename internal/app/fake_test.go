package app

import (
	"errors"
	"sync"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/protocol"
)

var errFull = errors.New("full")

type fakeMember struct {
	id     core.SessionID
	fail   bool
	closed bool

	mu     sync.Mutex
	frames []core.Frame
}

func newMember(id string) *fakeMember { return &fakeMember{id: core.SessionID(id)} }

func (m *fakeMember) ID() core.SessionID { return m.id }

func (m *fakeMember) Closed() bool { return m.closed }

func (m *fakeMember) TrySend(f core.Frame) error {
	if m.fail {
		return errFull
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	return nil
}

func (m *fakeMember) received() []protocol.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Frame, 0, len(m.frames))
	for _, raw := range m.frames {
		f, err := protocol.Unmarshal(raw[protocol.LengthSize:])
		if err != nil {
			panic(err)
		}
		out = append(out, f)
	}
	return out
}
