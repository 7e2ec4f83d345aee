// Package command maps inbound frame headers to handlers and enforces the
// login requirement in front of them.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/roomcast/internal/app/orch"
	"github.com/dkeye/roomcast/internal/app/workers"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/metrics"
	"github.com/dkeye/roomcast/internal/protocol"
)

const (
	msgUnauthorised = "Unauthorised User"
	msgMalformed    = "Malformed request"
	msgInternal     = "Something went wrong, please try again"
)

type Handler func(ctx context.Context, sess core.Session, f protocol.Frame) error

type Deps struct {
	Orch    *orch.Orchestrator
	Store   core.Store
	Auth    core.Authenticator
	Blobs   core.BlobStore
	Pool    *workers.Pool
	Metrics *metrics.Metrics
	Limiter *LoginLimiter
}

// Dispatcher implements transport.Dispatcher. Dispatch runs on the session's
// read loop, so one session's commands complete in submission order.
type Dispatcher struct {
	orch    *orch.Orchestrator
	store   core.Store
	auth    core.Authenticator
	blobs   core.BlobStore
	pool    *workers.Pool
	metrics *metrics.Metrics
	limiter *LoginLimiter

	validate *validator.Validate
	routes   map[string]Handler
}

func New(d Deps) *Dispatcher {
	if d.Pool == nil {
		d.Pool = workers.New(workers.DefaultSize)
	}
	if d.Limiter == nil {
		d.Limiter = NewLoginLimiter(DefaultLoginAttempts, DefaultLoginWindow)
	}
	disp := &Dispatcher{
		orch:     d.Orch,
		store:    d.Store,
		auth:     d.Auth,
		blobs:    d.Blobs,
		pool:     d.Pool,
		metrics:  d.Metrics,
		limiter:  d.Limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	disp.routes = map[string]Handler{
		protocol.Login:              disp.login,
		protocol.Register:           disp.register,
		protocol.Logout:             disp.logout,
		protocol.ChangePassword:     disp.changePassword,
		protocol.DeleteAccount:      disp.deleteAccount,
		protocol.UpdateProfile:      disp.updateProfile,
		protocol.FetchUser:          disp.fetchUser,
		protocol.FetchRooms:         disp.fetchRooms,
		protocol.FetchMembers:       disp.fetchMembers,
		protocol.FetchRecentChats:   disp.fetchRecentChats,
		protocol.FetchFriends:       disp.fetchFriends,
		protocol.AddFriend:          disp.addFriend,
		protocol.RemoveFriend:       disp.removeFriend,
		protocol.CreateRoom:         disp.createRoom,
		protocol.InviteMember:       disp.inviteMember,
		protocol.LeaveMember:        disp.leaveMember,
		protocol.KickMember:         disp.kickMember,
		protocol.DeleteRoom:         disp.deleteRoom,
		protocol.SendMessage:        disp.sendMessage,
		protocol.SendPrivateMessage: disp.sendPrivateMessage,
		protocol.DownloadFile:       disp.downloadFile,
		protocol.JoinStream:         disp.joinStream,
		protocol.LeaveStream:        disp.leaveStream,
		protocol.VideoStream:        disp.videoStream,
		protocol.AudioStream:        disp.audioStream,
	}
	return disp
}

// Headers accepted from a session that has not logged in.
var public = map[string]bool{
	protocol.Login:    true,
	protocol.Register: true,
	protocol.Quit:     true,
}

func (d *Dispatcher) Dispatch(ctx context.Context, sess core.Session, f protocol.Frame) error {
	if f.Header == protocol.Quit {
		return core.ErrQuit
	}
	if !public[f.Header] {
		if _, ok := sess.User(); !ok {
			d.metrics.AuthRejected()
			log.Debug().Str("module", "command").Str("sid", string(sess.ID())).Str("header", f.Header).Msg("rejected: not logged in")
			return sess.Send(ctx, protocol.Error, protocol.ErrorBody(msgUnauthorised))
		}
	}
	h, ok := d.routes[f.Header]
	if !ok {
		log.Debug().Str("module", "command").Str("sid", string(sess.ID())).Str("header", f.Header).Msg("ignoring unknown header")
		return nil
	}
	d.metrics.FrameIn(f.Header)

	start := time.Now()
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = h(ctx, sess, f) })
	d.metrics.ObserveDispatch(f.Header, time.Since(start))

	if r := pc.Recovered(); r != nil {
		log.Error().Err(r.AsError()).Str("module", "command").Str("sid", string(sess.ID())).Str("header", f.Header).Str("stack", string(r.Stack)).Msg("handler panic")
		return sess.Send(ctx, protocol.Error, protocol.ErrorBody(msgInternal))
	}
	return d.reportError(ctx, sess, f.Header, err)
}

// reportError answers a failed handler with an ERROR frame. Only send
// failures propagate to the transport.
func (d *Dispatcher) reportError(ctx context.Context, sess core.Session, header string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *core.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("module", "command").Str("sid", string(sess.ID())).Str("header", header).Msg("handler failed")
		return err
	}
	if appErr.Err != nil {
		log.Warn().Err(appErr.Err).Str("module", "command").Str("sid", string(sess.ID())).Str("header", header).Msg(appErr.Message)
	}
	return sess.Send(ctx, protocol.Error, protocol.ErrorBody(appErr.Message))
}

// decode unmarshals the body into v and validates it.
func (d *Dispatcher) decode(f protocol.Frame, v any) error {
	if err := f.Decode(v); err != nil {
		return core.NewAppError(msgMalformed, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return core.NewAppError(msgMalformed, err)
	}
	return nil
}

// fail builds an application error with a user-facing message.
func fail(msg string, cause error) error {
	return core.NewAppError(msg, cause)
}

// unexpected wraps errors the peer cannot act on.
func unexpected(err error) error {
	return core.NewAppError(msgInternal, err)
}

// userOf returns the identity the auth gate has already checked.
func userOf(sess core.Session) domain.User {
	u, _ := sess.User()
	return u
}

// db runs fn on the persistence worker pool.
func db[T any](ctx context.Context, d *Dispatcher, fn func(context.Context) (T, error)) (T, error) {
	return workers.Call(ctx, d.pool, fn)
}

func (d *Dispatcher) exec(ctx context.Context, fn func(context.Context) error) error {
	return d.pool.Do(ctx, fn)
}
