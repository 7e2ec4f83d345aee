package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/metrics"
	"github.com/dkeye/roomcast/internal/protocol"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("session closed")
)

const DefaultSendQueue = 256

// Dispatcher handles one inbound frame. Returning core.ErrQuit ends the session;
// other errors are logged and the session keeps reading.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess core.Session, f protocol.Frame) error
}

// Session is the server-side state of one connection. It implements core.Session.
// All socket writes go through writePump, so frames never interleave.
type Session struct {
	id      core.SessionID
	conn    Conn
	send    chan core.Frame
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	draining  chan struct{}
	drainOnce sync.Once
	flushed   chan struct{}

	mu   sync.RWMutex
	user *domain.User
}

func NewSession(ctx context.Context, conn Conn, queue int, m *metrics.Metrics) *Session {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:       core.SessionID(uuid.NewString()),
		conn:     conn,
		send:     make(chan core.Frame, queue),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		draining: make(chan struct{}),
		flushed:  make(chan struct{}),
	}
}

func (s *Session) ID() core.SessionID { return s.id }
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

func (s *Session) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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

// Closed reports that the session no longer accepts frames.
func (s *Session) Closed() bool {
	select {
	case <-s.ctx.Done():
		return true
	case <-s.draining:
		return true
	default:
		return false
	}
}

// TrySend queues an encoded frame without blocking.
func (s *Session) TrySend(f core.Frame) error {
	if s.Closed() {
		return ErrClosed
	}
	select {
	case s.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Send encodes and queues a frame, waiting for room in the queue.
func (s *Session) Send(ctx context.Context, header string, body any) error {
	f, err := protocol.Encode(header, body)
	if err != nil {
		return err
	}
	if s.Closed() {
		return ErrClosed
	}
	select {
	case s.send <- f:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-s.draining:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops both pumps and closes the socket. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

// Drain stops accepting frames and lets writePump flush what is already
// queued before it closes the session. Idempotent.
func (s *Session) Drain() {
	s.drainOnce.Do(func() { close(s.draining) })
}

// Flushed is closed once writePump has returned.
func (s *Session) Flushed() <-chan struct{} { return s.flushed }

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) writePump() {
	defer close(s.flushed)
	defer s.Close()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.send:
			if !s.write(f) {
				return
			}
		case <-s.draining:
			s.flush()
			return
		}
	}
}

// flush writes every queued frame. Each write is bounded by the conn's write deadline.
func (s *Session) flush() {
	for {
		select {
		case f := <-s.send:
			if !s.write(f) {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(f core.Frame) bool {
	if err := s.conn.WriteFrame(f); err != nil {
		log.Error().Err(err).Str("module", "transport").Str("sid", string(s.id)).Msg("writePump write error")
		return false
	}
	s.metrics.FrameOut()
	return true
}

func (s *Session) readPump(d Dispatcher) {
	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			s.logReadError(err)
			return
		}
		if err := d.Dispatch(s.ctx, s, f); err != nil {
			if errors.Is(err, core.ErrQuit) {
				log.Info().Str("module", "transport").Str("sid", string(s.id)).Msg("peer quit")
				return
			}
			log.Warn().Err(err).Str("module", "transport").Str("sid", string(s.id)).Str("header", f.Header).Msg("dispatch failed")
		}
	}
}

func (s *Session) logReadError(err error) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Info().Str("module", "transport").Str("sid", string(s.id)).Msg("peer closed")
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, protocol.ErrFrameTooLarge):
		log.Warn().Err(err).Str("module", "transport").Str("sid", string(s.id)).Msg("dropping connection on protocol error")
	default:
		log.Error().Err(err).Str("module", "transport").Str("sid", string(s.id)).Msg("readPump read error")
	}
}
