package command

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// joinStream admits the caller to a room call it belongs to or to a private
// call with a friend. A session already in another call is moved.
func (d *Dispatcher) joinStream(ctx context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Code domain.StreamCode `json:"code" validate:"required"`
	}
	if err := d.decode(f, &p); err != nil {
		return err
	}
	kind, id, err := p.Code.Parse()
	if err != nil {
		return fail("You cannot join that call", err)
	}
	me := userOf(sess)
	switch kind {
	case domain.StreamRoom:
		if err := d.requireMember(ctx, domain.RoomID(id), me.ID, "You cannot join that call"); err != nil {
			return err
		}
	case domain.StreamPrivate:
		if _, err := d.friendOf(ctx, domain.FriendID(id), me.ID); err != nil {
			return fail("You cannot join that call", err)
		}
	}
	d.orch.JoinStream(sess, p.Code)
	return sess.Send(ctx, protocol.StreamJoined, p.Code)
}

func (d *Dispatcher) leaveStream(_ context.Context, sess core.Session, _ protocol.Frame) error {
	d.orch.LeaveStream(sess.ID())
	return nil
}

// Relayed media carries the bare field value: a base64 string, or false
// when the sender's camera stops.

func (d *Dispatcher) videoStream(_ context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Frame json.RawMessage `json:"frame"`
	}
	if err := f.Decode(&p); err != nil || len(p.Frame) == 0 {
		return fail(msgMalformed, err)
	}
	_, err := d.orch.RelayVideo(sess.ID(), p.Frame)
	return err
}

func (d *Dispatcher) audioStream(_ context.Context, sess core.Session, f protocol.Frame) error {
	var p struct {
		Audio json.RawMessage `json:"audio"`
	}
	if err := f.Decode(&p); err != nil || len(p.Audio) == 0 {
		return fail(msgMalformed, err)
	}
	_, err := d.orch.RelayAudio(sess.ID(), p.Audio)
	return err
}
