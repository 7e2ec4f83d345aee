package command

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomcast/internal/app/orch"
	"github.com/dkeye/roomcast/internal/app/workers"
	"github.com/dkeye/roomcast/internal/auth"
	"github.com/dkeye/roomcast/internal/blob"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/core/coretest"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
	"github.com/dkeye/roomcast/internal/store/sqlite"
)

type harness struct {
	t     *testing.T
	d     *Dispatcher
	orch  *orch.Orchestrator
	store *sqlite.Store
	auth  *auth.Scrypt
	users map[string]domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := sqlite.Open(filepath.Join(dir, "roomcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	blobs, err := blob.NewDisk(filepath.Join(dir, "files"))
	require.NoError(t, err)

	h := &harness{
		t:     t,
		orch:  orch.New(nil),
		store: st,
		auth:  &auth.Scrypt{N: 1024, R: 8, P: 1},
		users: make(map[string]domain.User),
	}
	h.d = New(Deps{
		Orch:  h.orch,
		Store: st,
		Auth:  h.auth,
		Blobs: blobs,
		Pool:  workers.New(2),
	})
	return h
}

func frame(t *testing.T, header string, body any) protocol.Frame {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return protocol.Frame{Header: header, Body: raw}
}

// account creates a user directly in the store with password "pw-<name>".
func (h *harness) account(name string) domain.User {
	h.t.Helper()
	hash, err := h.auth.Hash("pw-" + name)
	require.NoError(h.t, err)
	u, err := h.store.CreateUser(context.Background(), name, name+"@example.com", hash)
	require.NoError(h.t, err)
	h.users[name] = u
	return u
}

// connect opens a session bound in the orchestrator.
func (h *harness) connect(sid string) *coretest.Session {
	s := coretest.NewSession(sid)
	h.orch.Connect(s)
	return s
}

// login creates the account if needed, logs a fresh session in and clears its frames.
func (h *harness) login(name string) *coretest.Session {
	h.t.Helper()
	if _, ok := h.users[name]; !ok {
		h.account(name)
	}
	s := h.connect(fmt.Sprintf("%s-%d", name, h.orch.Registry.Count()))
	h.do(s, protocol.Login, map[string]string{"email": name + "@example.com", "password": "pw-" + name})
	_, ok := s.User()
	require.True(h.t, ok, "login %s", name)
	s.Reset()
	return s
}

func (h *harness) do(s core.Session, header string, body any) {
	h.t.Helper()
	require.NoError(h.t, h.d.Dispatch(context.Background(), s, frame(h.t, header, body)))
}

func body[T any](t *testing.T, s *coretest.Session, header string) T {
	t.Helper()
	f, ok := s.Last(header)
	require.True(t, ok, "no %s frame in %v", header, s.Headers())
	var v T
	require.NoError(t, f.Decode(&v))
	return v
}

func errorMessage(t *testing.T, s *coretest.Session) string {
	t.Helper()
	return body[protocol.MessageBody](t, s, protocol.Error).Message
}

type loginReply struct {
	Error   bool         `json:"error"`
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
}

func TestGateRejectsAnonymousSessions(t *testing.T) {
	h := newHarness(t)
	s := h.connect("anon")

	h.do(s, protocol.FetchRooms, nil)
	assert.Equal(t, "Unauthorised User", errorMessage(t, s))

	alice := h.login("alice")
	room := h.createRoom(alice, "general")
	alice.Reset()
	s.Reset()

	h.do(s, protocol.SendMessage, map[string]any{"_id": room.ID, "content": "hi"})
	assert.Equal(t, []string{protocol.Error}, s.Headers())
	assert.Equal(t, "Unauthorised User", errorMessage(t, s))
	assert.Empty(t, h.orch.Rooms.RoomsOf(s.ID()))
	assert.Empty(t, alice.Frames())

	h.do(s, protocol.JoinStream, map[string]string{"code": fmt.Sprintf("R%d", room.ID)})
	_, inStream := h.orch.Streams.CodeOf(s.ID())
	assert.False(t, inStream)

	err := h.d.Dispatch(context.Background(), s, protocol.Frame{Header: protocol.Quit})
	assert.ErrorIs(t, err, core.ErrQuit)
}

func TestUnknownHeaderIgnored(t *testing.T) {
	h := newHarness(t)
	s := h.login("alice")

	h.do(s, "NOPE", map[string]int{"x": 1})
	assert.Empty(t, s.Frames())
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t)
	s := h.login("alice")

	require.NoError(t, h.d.Dispatch(context.Background(), s, protocol.Frame{Header: protocol.FetchUser, Body: []byte(`[1,2]`)}))
	assert.Equal(t, msgMalformed, errorMessage(t, s))

	s.Reset()
	h.do(s, protocol.FetchUser, map[string]string{})
	assert.Equal(t, msgMalformed, errorMessage(t, s))
}

func TestHandlerPanicBecomesError(t *testing.T) {
	h := newHarness(t)
	s := h.login("alice")
	h.d.routes["BOOM"] = func(context.Context, core.Session, protocol.Frame) error { panic("boom") }

	h.do(s, "BOOM", nil)
	assert.Equal(t, msgInternal, errorMessage(t, s))
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	s := h.connect("s1")

	h.do(s, protocol.Register, map[string]string{"username": "bob", "email": "bob@example.com", "password": "secret"})
	assert.Equal(t, loginReply{Message: "Registration successful!"}, body[loginReply](t, s, protocol.Register))

	h.do(s, protocol.Register, map[string]string{"username": "bob2", "email": "bob@example.com", "password": "secret"})
	reg := body[loginReply](t, s, protocol.Register)
	assert.True(t, reg.Error)
	assert.Equal(t, "Registration was not successful", reg.Message)

	h.do(s, protocol.Login, map[string]string{"email": "bob@example.com", "password": "wrong"})
	bad := body[loginReply](t, s, protocol.Login)
	assert.True(t, bad.Error)
	assert.Equal(t, "Invalid email id or password", bad.Message)
	_, ok := s.User()
	assert.False(t, ok)

	h.do(s, protocol.Login, map[string]string{"email": "bob@example.com", "password": "secret"})
	good := body[loginReply](t, s, protocol.Login)
	assert.False(t, good.Error)
	assert.Equal(t, "Login success!!", good.Message)
	require.NotNil(t, good.User)
	assert.Equal(t, "bob", good.User.Username)

	h.do(s, protocol.Logout, nil)
	assert.Equal(t, protocol.Logout, s.Headers()[len(s.Headers())-1])
	_, ok = s.User()
	assert.False(t, ok)
}

func TestLoginThrottledAfterFailures(t *testing.T) {
	h := newHarness(t)
	h.d.limiter = NewLoginLimiter(2, DefaultLoginWindow)
	h.account("carol")
	s := h.connect("s1")

	for range 2 {
		h.do(s, protocol.Login, map[string]string{"email": "carol@example.com", "password": "nope"})
	}
	h.do(s, protocol.Login, map[string]string{"email": "CAROL@example.com", "password": "pw-carol"})
	reply := body[loginReply](t, s, protocol.Login)
	assert.True(t, reply.Error)
	assert.Equal(t, "Too many failed attempts, try again later", reply.Message)
	_, ok := s.User()
	assert.False(t, ok)
}

func TestChangePasswordAndDeleteAccount(t *testing.T) {
	h := newHarness(t)
	s := h.login("dave")

	h.do(s, protocol.ChangePassword, map[string]string{"oldpass": "bad", "newpass": "x"})
	assert.Equal(t, "Invalid password", errorMessage(t, s))

	h.do(s, protocol.ChangePassword, map[string]string{"oldpass": "pw-dave", "newpass": "fresh"})
	assert.Equal(t, "Password Updated!", body[protocol.MessageBody](t, s, protocol.Info).Message)

	h.do(s, protocol.DeleteAccount, map[string]string{"password": "fresh"})
	assert.Equal(t, "Account successfully deleted", body[protocol.MessageBody](t, s, protocol.Info).Message)
	assert.Equal(t, protocol.Logout, s.Headers()[len(s.Headers())-1])

	_, err := h.store.UserByEmail(context.Background(), "dave@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateProfileAndFetchUser(t *testing.T) {
	h := newHarness(t)
	h.account("erin")
	s := h.login("frank")

	h.do(s, protocol.UpdateProfile, map[string]string{"username": "erin"})
	assert.Equal(t, "That username is already taken", errorMessage(t, s))

	h.do(s, protocol.UpdateProfile, map[string]string{"username": "franky", "phone": "555"})
	assert.Equal(t, "Profile Updated!", body[protocol.MessageBody](t, s, protocol.Info).Message)
	me, _ := s.User()
	assert.Equal(t, "franky", me.Username)
	assert.Equal(t, "555", me.Phone)

	h.do(s, protocol.FetchUser, map[string]string{"email": "erin@example.com"})
	assert.Equal(t, "erin", body[domain.User](t, s, protocol.FetchUser).Username)

	h.do(s, protocol.FetchUser, map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, "This email ID doesn't exist", errorMessage(t, s))
}
