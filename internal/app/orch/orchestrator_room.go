package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// BroadcastRoom sends one frame to every session currently in the room.
func (o *Orchestrator) BroadcastRoom(room domain.RoomID, header string, body any) (int, error) {
	res, err := o.Rooms.Broadcast(room, header, body)
	if err != nil {
		return 0, err
	}
	o.applyPolicy(app.TrafficChat, res)
	return res.SentTo, nil
}

// JoinSession subscribes a single session to the room. A session that was
// unbound while joining is taken back out.
func (o *Orchestrator) JoinSession(sess core.Session, room domain.RoomID) {
	if !o.Rooms.Join(sess, room) {
		return
	}
	if _, ok := o.Registry.GetSession(sess.ID()); !ok {
		o.Rooms.Leave(sess.ID(), room)
		return
	}
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Int64("room", int64(room)).Msg("added to room")
}

// JoinUserToRoom subscribes every live session of uid to the room.
func (o *Orchestrator) JoinUserToRoom(uid domain.UserID, room domain.RoomID) {
	for _, s := range o.Registry.SessionsOf(uid) {
		o.JoinSession(s, room)
	}
}

// RemoveUserFromRoom unsubscribes every live session of uid from the room
// and from the room's call.
func (o *Orchestrator) RemoveUserFromRoom(uid domain.UserID, room domain.RoomID) {
	call := domain.NewStreamCode(domain.StreamRoom, int64(room))
	for _, s := range o.Registry.SessionsOf(uid) {
		o.Rooms.Leave(s.ID(), room)
		if code, ok := o.Streams.CodeOf(s.ID()); ok && code == call {
			o.Streams.Leave(s.ID())
		}
		log.Info().Str("module", "orch").Str("sid", string(s.ID())).Int64("room", int64(room)).Msg("removed from room")
	}
}

// EvictRoom forgets a deleted room and ends its call.
func (o *Orchestrator) EvictRoom(room domain.RoomID) []core.Member {
	members := o.Rooms.Drop(room)
	o.EndStream(domain.NewStreamCode(domain.StreamRoom, int64(room)))
	log.Info().Str("module", "orch").Int64("room", int64(room)).Int("members", len(members)).Msg("room evicted")
	return members
}
