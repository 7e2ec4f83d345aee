package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/adapters/transport"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/protocol"
)

// pipeDialer hands out client ends of net.Pipe and the server ends on a channel.
func pipeDialer(servers chan<- transport.Conn) Dialer {
	return func(context.Context) (transport.Conn, error) {
		c, s := net.Pipe()
		servers <- transport.NewNetConn(s, 0)
		return transport.NewNetConn(c, 0), nil
	}
}

type recorder struct {
	mu      sync.Mutex
	headers []string
}

func (r *recorder) add(f protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, f.Header)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.headers...)
}

func TestSupervisorReconnectFiresBeforeFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	servers := make(chan transport.Conn, 2)
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(protocol.Reconnect, rec.add)
	bus.Subscribe(protocol.Info, rec.add)
	sup := NewSupervisor(pipeDialer(servers), bus, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	srv := <-servers
	data, err := protocol.Encode(protocol.Info, protocol.MessageBody{Message: "hi"})
	require.NoError(t, err)
	require.NoError(t, srv.WriteFrame(data))
	assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{protocol.Reconnect, protocol.Info}, rec.get())
	assert.Equal(t, StateConnected, sup.State())

	require.NoError(t, srv.Close())
	srv = <-servers
	assert.Eventually(t, func() bool { return len(rec.get()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.Reconnect, rec.get()[2])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_ = srv.Close()
}

func TestSupervisorWaitsBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = 60 * time.Millisecond
	attempts := make(chan time.Time, 8)
	dial := func(context.Context) (transport.Conn, error) {
		attempts <- time.Now()
		return nil, errors.New("refused")
	}
	sup := NewSupervisor(dial, NewBus(), interval)
	go func() { _ = sup.Run(ctx) }()

	first := <-attempts
	second := <-attempts
	assert.GreaterOrEqual(t, second.Sub(first), interval)
	cancel()
}

func TestSupervisorSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	servers := make(chan transport.Conn, 1)
	bus := NewBus()
	sup := NewSupervisor(pipeDialer(servers), bus, time.Second)

	assert.ErrorIs(t, sup.Send(protocol.FetchRooms, nil), ErrNotConnected)

	bus.Subscribe(protocol.Reconnect, func(protocol.Frame) {
		assert.NoError(t, sup.Send(protocol.Login, credentials{Email: "a@x.com", Password: "pw"}))
	})
	go func() { _ = sup.Run(ctx) }()

	srv := <-servers
	f, err := srv.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.Login, f.Header)
	assert.JSONEq(t, `{"email":"a@x.com","password":"pw"}`, string(f.Body))

	require.NoError(t, srv.Close())
	assert.Eventually(t, func() bool {
		return errors.Is(sup.Send(protocol.FetchRooms, nil), ErrNotConnected)
	}, time.Second, 5*time.Millisecond)
}

// stallConn blocks writes until released and fails reads on demand.
type stallConn struct {
	readErr chan error
	writing chan struct{}
	release chan struct{}
}

func (c *stallConn) ReadFrame() (protocol.Frame, error) { return protocol.Frame{}, <-c.readErr }

func (c *stallConn) WriteFrame(core.Frame) error {
	select {
	case c.writing <- struct{}{}:
	default:
	}
	<-c.release
	return nil
}

func (c *stallConn) Close() error       { return nil }
func (c *stallConn) RemoteAddr() string { return "stall" }

func TestSendRefusedOnceReadFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &stallConn{readErr: make(chan error, 1), writing: make(chan struct{}, 1), release: make(chan struct{})}
	dialed := false
	sup := NewSupervisor(func(context.Context) (transport.Conn, error) {
		if dialed {
			return nil, errors.New("down")
		}
		dialed = true
		return conn, nil
	}, NewBus(), time.Hour)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	require.Eventually(t, func() bool { return sup.State() == StateConnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Send(protocol.Info, nil))
	<-conn.writing

	conn.readErr <- io.EOF
	assert.Eventually(t, func() bool {
		return errors.Is(sup.Send(protocol.Info, nil), ErrNotConnected)
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sup.Send(protocol.Info, nil), ErrNotConnected)

	close(conn.release)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
