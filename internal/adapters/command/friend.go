package command

import (
	"context"
	"errors"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

func (d *Dispatcher) friendOf(ctx context.Context, fid domain.FriendID, uid domain.UserID) (domain.UserID, error) {
	return db(ctx, d, func(ctx context.Context) (domain.UserID, error) {
		return d.store.FriendOf(ctx, fid, uid)
	})
}

func (d *Dispatcher) fetchFriends(ctx context.Context, sess core.Session, _ protocol.Frame) error {
	me := userOf(sess)
	friends, err := db(ctx, d, func(ctx context.Context) ([]domain.Friend, error) {
		return d.store.Friends(ctx, me.ID)
	})
	if err != nil {
		return unexpected(err)
	}
	return sess.Send(ctx, protocol.FetchFriends, friends)
}

// addFriend creates the friendship and tells both sides about each other.
func (d *Dispatcher) addFriend(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Email string `json:"email" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	other, err := db(ctx, d, func(ctx context.Context) (domain.User, error) {
		return d.store.UserByEmail(ctx, p.Email)
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fail("Email ID not found!", nil)
	case err != nil:
		return unexpected(err)
	}
	if other.ID == me.ID {
		return fail("You cannot add yourself as a friend", nil)
	}
	fid, err := db(ctx, d, func(ctx context.Context) (domain.FriendID, error) {
		return d.store.AddFriend(ctx, me.ID, other.ID)
	})
	switch {
	case errors.Is(err, core.ErrConflict):
		return fail("You already have that user as a friend", nil)
	case err != nil:
		return unexpected(err)
	}

	if _, err := d.orch.SendTo(me.ID, protocol.AddFriend, domain.Friend{ID: fid, User: other}); err != nil {
		return err
	}
	_, err = d.orch.SendTo(other.ID, protocol.AddFriend, domain.Friend{ID: fid, User: me})
	return err
}

func (d *Dispatcher) removeFriend(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		FriendID domain.FriendID `json:"fid" validate:"required"`
		User     domain.UserID   `json:"fuser" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.RemoveFriend(ctx, p.FriendID, me.ID, p.User)
	}); err != nil {
		return fail("Could not remove that friend", err)
	}
	d.orch.EndStream(domain.NewStreamCode(domain.StreamPrivate, int64(p.FriendID)))

	if _, err := d.orch.SendTo(me.ID, protocol.RemoveFriend, p.FriendID); err != nil {
		return err
	}
	_, err := d.orch.SendTo(p.User, protocol.RemoveFriend, p.FriendID)
	return err
}
