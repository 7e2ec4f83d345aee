package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/roomcast/internal/app/orch"
	"github.com/dkeye/roomcast/internal/metrics"
)

// Server accepts connections and runs one Session per connection.
type Server struct {
	Orch       *orch.Orchestrator
	Dispatcher Dispatcher
	Metrics    *metrics.Metrics

	SendQueue    int
	MaxFrameSize uint32
	// AllowedOrigins are browser origins accepted on the WebSocket entry
	// besides the server's own host.
	AllowedOrigins []string

	wg conc.WaitGroup

	mu       sync.Mutex
	ctx      context.Context
	ln       net.Listener
	conns    map[Conn]struct{}
	shutdown bool
}

func (s *Server) maxFrameSize() uint32 { return s.MaxFrameSize }

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// ListenAndServeTLS listens on addr and serves TLS connections until ctx ends
// or Shutdown is called.
func (s *Server) ListenAndServeTLS(ctx context.Context, addr string, cfg *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return err
	}
	log.Info().Str("module", "transport").Str("addr", ln.Addr().String()).Msg("listening")
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It returns nil after Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.ctx = ctx
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Str("module", "transport").Msg("accept")
			return err
		}
		conn := NewNetConn(c, s.MaxFrameSize)
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Go(func() {
			s.ServeConn(ctx, conn)
		})
	}
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) track(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[Conn]struct{})
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// ServeConn runs a session on conn and blocks until it ends. The session is
// registered with the orchestrator for its whole lifetime. On QUIT or end of
// input the send queue is flushed before the connection closes.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	defer s.untrack(conn)
	sess := NewSession(ctx, conn, s.SendQueue, s.Metrics)
	log.Info().Str("module", "transport").Str("sid", string(sess.ID())).Str("addr", conn.RemoteAddr()).Msg("new connection")

	s.Orch.Connect(sess)
	go sess.writePump()
	sess.readPump(s.Dispatcher)

	// Replies to frames already handled still go out before the socket closes.
	sess.Drain()
	s.Orch.Disconnect(sess.ID())
	<-sess.Flushed()
	sess.Close()
	log.Info().Str("module", "transport").Str("sid", string(sess.ID())).Msg("connection closed")
}

// Shutdown stops accepting, closes every open connection and waits for their
// sessions to finish.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	ln := s.ln
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	log.Info().Str("module", "transport").Msg("server stopped")
}
