package client

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/roomcast/internal/adapters/transport"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/protocol"
)

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"

	DefaultReconnectInterval = 5 * time.Second
	DefaultSendQueue         = 256
)

var ErrNotConnected = errors.New("not connected")

// Dialer opens one framed connection to the server.
type Dialer func(ctx context.Context) (transport.Conn, error)

func TLSDialer(addr string, cfg *tls.Config, maxFrameSize uint32) Dialer {
	return func(ctx context.Context) (transport.Conn, error) {
		d := tls.Dialer{Config: cfg}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return transport.NewNetConn(c, maxFrameSize), nil
	}
}

// Supervisor keeps a connection to the server alive. It redials forever
// after a fixed pause and publishes every inbound frame on the bus.
type Supervisor struct {
	dial     Dialer
	bus      *Bus
	interval time.Duration
	queue    int

	machine *fsm.FSM

	mu  sync.Mutex
	out chan core.Frame
}

func NewSupervisor(dial Dialer, bus *Bus, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	s := &Supervisor{dial: dial, bus: bus, interval: interval, queue: DefaultSendQueue}
	s.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: "dial", Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: "established", Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: "lost", Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug().Str("module", "client").Str("from", e.Src).Str("to", e.Dst).Msg("connection state")
			},
		},
	)
	return s
}

func (s *Supervisor) State() string { return s.machine.Current() }

func (s *Supervisor) event(ctx context.Context, name string) {
	if err := s.machine.Event(context.WithoutCancel(ctx), name); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("event", name).Msg("state transition")
	}
}

// Run dials, serves the connection until it fails and waits the reconnect
// interval before dialing again. It returns when ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.event(ctx, "dial")
		conn, err := s.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("connect failed")
		} else {
			s.serve(ctx, conn)
		}
		s.event(ctx, "lost")

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		log.Info().Str("module", "client").Msg("reconnecting")
	}
}

func (s *Supervisor) serve(ctx context.Context, conn transport.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(connCtx, func() { _ = conn.Close() })
	defer stop()

	out := make(chan core.Frame, s.queue)
	s.setOut(out)
	// Sends are refused as soon as either side fails, not once teardown ends.
	lost := func() {
		s.clearOut(out)
		cancel()
	}
	defer s.clearOut(out)

	s.event(ctx, "established")
	log.Info().Str("module", "client").Str("addr", conn.RemoteAddr()).Msg("connected")

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case f := <-out:
				if err := conn.WriteFrame(f); err != nil {
					log.Warn().Err(err).Str("module", "client").Msg("write failed")
					lost()
					return
				}
			}
		}
	})

	s.bus.Publish(protocol.Frame{Header: protocol.Reconnect})
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if connCtx.Err() == nil {
				log.Warn().Err(err).Str("module", "client").Msg("connection lost")
			}
			lost()
			return
		}
		s.bus.Publish(f)
	}
}

func (s *Supervisor) setOut(out chan core.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
}

// clearOut detaches out if it is still the live queue.
func (s *Supervisor) clearOut(out chan core.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == out {
		s.out = nil
	}
}

// Send queues a frame on the live connection. Nothing is buffered while
// offline: the frame is dropped and ErrNotConnected returned.
func (s *Supervisor) Send(header string, body any) error {
	frame, err := protocol.Encode(header, body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return ErrNotConnected
	}
	select {
	case s.out <- frame:
		return nil
	default:
		return transport.ErrBackpressure
	}
}
