// Package coretest provides an in-memory core.Session for handler and
// orchestrator tests.
package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

var ErrFull = errors.New("coretest: queue full")

// Session records every frame it is given. Setting Full makes TrySend fail.
type Session struct {
	SID  core.SessionID
	Addr string

	mu     sync.Mutex
	user   *domain.User
	frames []protocol.Frame
	full   bool
	closed bool
}

func NewSession(sid string) *Session {
	return &Session{SID: core.SessionID(sid), Addr: "pipe"}
}

func (s *Session) ID() core.SessionID { return s.SID }
func (s *Session) RemoteAddr() string { return s.Addr }

func (s *Session) User() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Session) SetUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

func (s *Session) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

func (s *Session) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return ErrFull
	}
	frame, err := protocol.Unmarshal(f[protocol.LengthSize:])
	if err != nil {
		return err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *Session) Send(_ context.Context, header string, body any) error {
	frame, err := protocol.Encode(header, body)
	if err != nil {
		return err
	}
	return s.TrySend(frame)
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frames returns a copy of everything received so far.
func (s *Session) Frames() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Frame(nil), s.frames...)
}

// Headers lists received headers in order.
func (s *Session) Headers() []string {
	frames := s.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Header
	}
	return out
}

// Last returns the most recent frame with the given header.
func (s *Session) Last(header string) (protocol.Frame, bool) {
	frames := s.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Header == header {
			return frames[i], true
		}
	}
	return protocol.Frame{}, false
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}
