package transport

import (
	"bufio"
	"net"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/protocol"
)

const defaultWriteTimeout = 10 * time.Second

// Conn is one framed duplex stream. ReadFrame is called from a single reader
// goroutine and WriteFrame from a single writer goroutine.
type Conn interface {
	ReadFrame() (protocol.Frame, error)
	// WriteFrame writes an already encoded frame, length prefix included.
	WriteFrame(core.Frame) error
	Close() error
	RemoteAddr() string
}

// netConn carries frames over a TLS or plain TCP stream.
type netConn struct {
	conn         net.Conn
	r            *bufio.Reader
	maxFrameSize uint32
	writeTimeout time.Duration
}

func NewNetConn(c net.Conn, maxFrameSize uint32) Conn {
	return &netConn{
		conn:         c,
		r:            bufio.NewReaderSize(c, 64<<10),
		maxFrameSize: maxFrameSize,
		writeTimeout: defaultWriteTimeout,
	}
}

func (c *netConn) ReadFrame() (protocol.Frame, error) {
	return protocol.ReadFrame(c.r, c.maxFrameSize)
}

func (c *netConn) WriteFrame(f core.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(f)
	return err
}

func (c *netConn) Close() error       { return c.conn.Close() }
func (c *netConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
