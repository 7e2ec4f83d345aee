package command

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// result is the LOGIN/REGISTER reply body; failures set Error.
type result struct {
	Error   bool         `json:"error,omitempty"`
	Message string       `json:"message"`
	User    *domain.User `json:"user,omitempty"`
}

func (d *Dispatcher) login(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	if !d.limiter.Allow(p.Email) {
		log.Warn().Str("module", "command").Str("sid", string(sess.ID())).Str("email", p.Email).Msg("login throttled")
		return sess.Send(ctx, protocol.Login, result{Error: true, Message: "Too many failed attempts, try again later"})
	}

	creds, err := db(ctx, d, func(ctx context.Context) (core.Credentials, error) {
		return d.store.CredentialsByEmail(ctx, p.Email)
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return unexpected(err)
	}
	if err != nil || !d.auth.Verify(p.Password, creds.PasswordHash) {
		d.limiter.Fail(p.Email)
		return sess.Send(ctx, protocol.Login, result{Error: true, Message: "Invalid email id or password"})
	}
	d.limiter.Reset(p.Email)

	if prev, ok := sess.User(); ok && prev.ID != creds.User.ID {
		d.orch.LeaveAll(sess.ID())
	}
	sess.SetUser(creds.User)
	log.Info().Str("module", "command").Str("sid", string(sess.ID())).Int64("user", int64(creds.User.ID)).Msg("logged in")
	return sess.Send(ctx, protocol.Login, result{Message: "Login success!!", User: &creds.User})
}

func (d *Dispatcher) register(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return sess.Send(ctx, protocol.Register, result{Error: true, Message: "Registration was not successful"})
	}
	if err := domain.ValidateUsername(p.Username); err != nil {
		return sess.Send(ctx, protocol.Register, result{Error: true, Message: err.Error()})
	}
	hash, err := d.auth.Hash(p.Password)
	if err != nil {
		return unexpected(err)
	}
	user, err := db(ctx, d, func(ctx context.Context) (domain.User, error) {
		return d.store.CreateUser(ctx, p.Username, p.Email, hash)
	})
	if err != nil {
		if !errors.Is(err, core.ErrConflict) {
			log.Error().Err(err).Str("module", "command").Msg("register")
		}
		return sess.Send(ctx, protocol.Register, result{Error: true, Message: "Registration was not successful"})
	}
	log.Info().Str("module", "command").Int64("user", int64(user.ID)).Msg("registered")
	return sess.Send(ctx, protocol.Register, result{Message: "Registration successful!"})
}

func (d *Dispatcher) logout(ctx context.Context, sess core.Session, _ protocol.Frame) error {
	sess.ClearUser()
	d.orch.LeaveAll(sess.ID())
	return sess.Send(ctx, protocol.Logout, struct{}{})
}

func (d *Dispatcher) changePassword(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		OldPass string `json:"oldpass" validate:"required"`
		NewPass string `json:"newpass" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := d.checkPassword(ctx, me.ID, p.OldPass); err != nil {
		return err
	}
	hash, err := d.auth.Hash(p.NewPass)
	if err != nil {
		return unexpected(err)
	}
	if err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.SetPassword(ctx, me.ID, hash)
	}); err != nil {
		return unexpected(err)
	}
	return sess.Send(ctx, protocol.Info, protocol.MessageBody{Message: "Password Updated!"})
}

func (d *Dispatcher) checkPassword(ctx context.Context, id domain.UserID, raw string) error {
	creds, err := db(ctx, d, func(ctx context.Context) (core.Credentials, error) {
		return d.store.CredentialsByID(ctx, id)
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return unexpected(err)
	}
	if err != nil || !d.auth.Verify(raw, creds.PasswordHash) {
		return fail("Invalid password", nil)
	}
	return nil
}

func (d *Dispatcher) deleteAccount(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Password string `json:"password" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := d.checkPassword(ctx, me.ID, p.Password); err != nil {
		return err
	}
	if err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.DeleteUser(ctx, me.ID)
	}); err != nil {
		return unexpected(err)
	}
	log.Info().Str("module", "command").Int64("user", int64(me.ID)).Msg("account deleted")
	if err := sess.Send(ctx, protocol.Info, protocol.MessageBody{Message: "Account successfully deleted"}); err != nil {
		return err
	}
	return d.logout(ctx, sess, f)
}

func (d *Dispatcher) updateProfile(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Username string `json:"username" validate:"required"`
		Phone    string `json:"phone" validate:"omitempty,max=15"`
		Address  string `json:"address" validate:"omitempty,max=100"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := me.SetUsername(p.Username); err != nil {
		return fail(err.Error(), nil)
	}
	err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.UpdateProfile(ctx, me.ID, me.Username, p.Phone, p.Address)
	})
	switch {
	case errors.Is(err, core.ErrConflict):
		return fail("That username is already taken", nil)
	case err != nil:
		return unexpected(err)
	}
	me.Phone, me.Address = p.Phone, p.Address
	sess.SetUser(me)
	return sess.Send(ctx, protocol.Info, protocol.MessageBody{Message: "Profile Updated!"})
}

func (d *Dispatcher) fetchUser(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Email string `json:"email" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	user, err := db(ctx, d, func(ctx context.Context) (domain.User, error) {
		return d.store.UserByEmail(ctx, p.Email)
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fail("This email ID doesn't exist", nil)
	case err != nil:
		return unexpected(err)
	}
	return sess.Send(ctx, protocol.FetchUser, user)
}
