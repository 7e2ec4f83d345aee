package command

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// fetchRooms replies with the caller's rooms and subscribes the session to each.
func (d *Dispatcher) fetchRooms(ctx context.Context, sess core.Session, _ protocol.Frame) error {
	me := userOf(sess)
	rooms, err := db(ctx, d, func(ctx context.Context) ([]domain.Room, error) {
		return d.store.RoomsOf(ctx, me.ID)
	})
	if err != nil {
		return unexpected(err)
	}
	for _, r := range rooms {
		d.orch.JoinSession(sess, r.ID)
	}
	return sess.Send(ctx, protocol.FetchRooms, rooms)
}

func (d *Dispatcher) fetchMembers(ctx context.Context, sess core.Session, _ protocol.Frame) error {
	me := userOf(sess)
	members, err := db(ctx, d, func(ctx context.Context) ([]domain.RoomMember, error) {
		return d.store.MembersOf(ctx, me.ID)
	})
	if err != nil {
		return unexpected(err)
	}
	return sess.Send(ctx, protocol.FetchMembers, members)
}

func (d *Dispatcher) createRoom(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		RoomName string          `json:"roomname" validate:"required"`
		Members  []domain.UserID `json:"members"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	if err := domain.ValidateRoomName(p.RoomName); err != nil {
		return fail("Room was not created: "+err.Error(), nil)
	}
	me := userOf(sess)
	room, err := db(ctx, d, func(ctx context.Context) (domain.Room, error) {
		return d.store.CreateRoom(ctx, me.ID, p.RoomName, p.Members)
	})
	if err != nil {
		return fail("Room was not created", err)
	}

	notify := append([]domain.UserID{me.ID}, p.Members...)
	seen := make(map[domain.UserID]struct{}, len(notify))
	for _, uid := range notify {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		d.orch.JoinUserToRoom(uid, room.ID)
		if _, err := d.orch.SendTo(uid, protocol.JoinRoom, room); err != nil {
			return unexpected(err)
		}
	}
	log.Info().Str("module", "command").Int64("room", int64(room.ID)).Int64("owner", int64(me.ID)).Msg("room created")
	return nil
}

// requireMember fails unless uid belongs to the room.
func (d *Dispatcher) requireMember(ctx context.Context, room domain.RoomID, uid domain.UserID, msg string) error {
	ok, err := db(ctx, d, func(ctx context.Context) (bool, error) {
		return d.store.IsRoomMember(ctx, room, uid)
	})
	if err != nil {
		return unexpected(err)
	}
	if !ok {
		return fail(msg, nil)
	}
	return nil
}

func (d *Dispatcher) inviteMember(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		RoomID domain.RoomID `json:"roomid" validate:"required"`
		Email  string        `json:"email" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := d.requireMember(ctx, p.RoomID, me.ID, "You are not a member of this room"); err != nil {
		return err
	}
	invitee, err := db(ctx, d, func(ctx context.Context) (domain.User, error) {
		return d.store.UserByEmail(ctx, p.Email)
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fail("Email ID not found", nil)
	case err != nil:
		return unexpected(err)
	}
	err = d.exec(ctx, func(ctx context.Context) error {
		return d.store.AddRoomMember(ctx, p.RoomID, invitee.ID)
	})
	switch {
	case errors.Is(err, core.ErrConflict):
		return fail("This user is already in the room", nil)
	case err != nil:
		return unexpected(err)
	}
	room, err := db(ctx, d, func(ctx context.Context) (domain.Room, error) {
		return d.store.Room(ctx, p.RoomID)
	})
	if err != nil {
		return unexpected(err)
	}

	if _, err := d.orch.SendTo(invitee.ID, protocol.JoinRoom, room); err != nil {
		return unexpected(err)
	}
	d.orch.JoinUserToRoom(invitee.ID, room.ID)
	_, err = d.orch.BroadcastRoom(room.ID, protocol.MemberJoin, []any{room.ID, invitee})
	return err
}

func (d *Dispatcher) leaveMember(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		RoomID domain.RoomID `json:"roomid" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.RemoveRoomMember(ctx, p.RoomID, me.ID)
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fail("You are not a member of this room", nil)
	case err != nil:
		return unexpected(err)
	}
	return d.dropMember(p.RoomID, me.ID)
}

// dropMember tells the member's sessions they left, unsubscribes them and
// tells the rest of the room.
func (d *Dispatcher) dropMember(room domain.RoomID, uid domain.UserID) error {
	if _, err := d.orch.SendTo(uid, protocol.LeaveRoom, room); err != nil {
		return err
	}
	d.orch.RemoveUserFromRoom(uid, room)
	_, err := d.orch.BroadcastRoom(room, protocol.MemberLeave, []any{room, uid})
	return err
}

func (d *Dispatcher) kickMember(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		RoomID   domain.RoomID `json:"roomid" validate:"required"`
		MemberID domain.UserID `json:"memberid" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	room, err := db(ctx, d, func(ctx context.Context) (domain.Room, error) {
		return d.store.Room(ctx, p.RoomID)
	})
	if err != nil || room.OwnerID != me.ID || p.MemberID == me.ID {
		return fail("Could not kick that member", err)
	}
	if err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.RemoveRoomMember(ctx, p.RoomID, p.MemberID)
	}); err != nil {
		return fail("Could not kick that member", err)
	}
	log.Info().Str("module", "command").Int64("room", int64(room.ID)).Int64("member", int64(p.MemberID)).Msg("member kicked")
	return d.dropMember(room.ID, p.MemberID)
}

func (d *Dispatcher) deleteRoom(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		RoomID domain.RoomID `json:"roomid" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	me := userOf(sess)
	if err := d.exec(ctx, func(ctx context.Context) error {
		return d.store.DeleteRoom(ctx, p.RoomID, me.ID)
	}); err != nil {
		return fail("Could not delete the room", err)
	}
	if _, err := d.orch.BroadcastRoom(p.RoomID, protocol.LeaveRoom, p.RoomID); err != nil {
		return err
	}
	d.orch.EvictRoom(p.RoomID)
	log.Info().Str("module", "command").Int64("room", int64(p.RoomID)).Msg("room deleted")
	return nil
}
