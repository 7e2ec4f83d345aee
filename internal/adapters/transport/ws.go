package transport

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/protocol"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsConn carries one length-prefixed frame per binary WebSocket message.
type wsConn struct {
	conn         WSConn
	addr         string
	maxFrameSize uint32
}

func NewWSConn(c WSConn, addr string, maxFrameSize uint32) Conn {
	return &wsConn{conn: c, addr: addr, maxFrameSize: maxFrameSize}
}

func (c *wsConn) ReadFrame() (protocol.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Frame{}, err
	}
	payload, err := protocol.SplitPrefixed(data, c.maxFrameSize)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Unmarshal(payload)
}

func (c *wsConn) WriteFrame(f core.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, f)
}

func (c *wsConn) Close() error       { return c.conn.Close() }
func (c *wsConn) RemoteAddr() string { return c.addr }

// checkOrigin admits requests without an Origin header (native clients), the
// server's own host and any origin listed in AllowedOrigins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// HandleWS upgrades the request and serves it as a regular session.
// The session outlives the handler; Shutdown waits for it.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "transport").Msg("ws upgrade")
		return
	}
	if s.maxFrameSize() > 0 {
		ws.SetReadLimit(int64(s.maxFrameSize()) + protocol.LengthSize)
	}
	conn := NewWSConn(ws, r.RemoteAddr, s.maxFrameSize())
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	s.wg.Go(func() {
		s.ServeConn(s.baseContext(), conn)
	})
}
