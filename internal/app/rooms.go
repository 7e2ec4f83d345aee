package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// RoomRegistry maps room ids to the live sessions subscribed to them.
// It only indexes members; it never closes them.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.SessionID]core.Member
	bySID map[core.SessionID]map[domain.RoomID]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[domain.RoomID]map[core.SessionID]core.Member),
		bySID: make(map[core.SessionID]map[domain.RoomID]struct{}),
	}
}

// Join adds m to the room. It reports false if m was already a member or is
// already closed.
func (r *RoomRegistry) Join(m core.Member, room domain.RoomID) bool {
	sid := m.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Closed() {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.SessionID]core.Member)
		r.rooms[room] = members
	}
	if _, dup := members[sid]; dup {
		return false
	}
	members[sid] = m
	joined, ok := r.bySID[sid]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		r.bySID[sid] = joined
	}
	joined[room] = struct{}{}
	log.Debug().Str("module", "app.rooms").Str("sid", string(sid)).Int64("room", int64(room)).Msg("member added")
	return true
}

// Leave removes sid from the room if present.
func (r *RoomRegistry) Leave(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sid, room)
}

func (r *RoomRegistry) leaveLocked(sid core.SessionID, room domain.RoomID) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[sid]; !ok {
		return false
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.bySID[sid]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.bySID, sid)
		}
	}
	log.Debug().Str("module", "app.rooms").Str("sid", string(sid)).Int64("room", int64(room)).Msg("member removed")
	return true
}

// LeaveAll removes sid from every room and returns the rooms it left.
func (r *RoomRegistry) LeaveAll(sid core.SessionID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := r.bySID[sid]
	left := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(sid, room)
	}
	return left
}

// Drop forgets the room entirely and returns the members it had.
func (r *RoomRegistry) Drop(room domain.RoomID) []core.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	out := make([]core.Member, 0, len(members))
	for sid, m := range members {
		out = append(out, m)
		if joined, ok := r.bySID[sid]; ok {
			delete(joined, room)
			if len(joined) == 0 {
				delete(r.bySID, sid)
			}
		}
	}
	delete(r.rooms, room)
	return out
}

func (r *RoomRegistry) IsMember(sid core.SessionID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][sid]
	return ok
}

func (r *RoomRegistry) Members(room domain.RoomID) []core.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]core.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func (r *RoomRegistry) RoomsOf(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(r.bySID[sid]))
	for room := range r.bySID[sid] {
		out = append(out, room)
	}
	return out
}

func (r *RoomRegistry) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(members)})
	}
	return out
}

// Broadcast encodes the frame once and offers it to every member present at
// call time. A failing member is reported in Dropped and does not stop the rest.
func (r *RoomRegistry) Broadcast(room domain.RoomID, header string, body any) (core.PublishResult, error) {
	frame, err := protocol.Encode(header, body)
	if err != nil {
		return core.PublishResult{}, err
	}
	return fanOut(r.Members(room), "", frame), nil
}

// fanOut sends outside of any registry lock. Members equal to skip are left out.
func fanOut(members []core.Member, skip core.SessionID, frame core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, m := range members {
		if skip != "" && m.ID() == skip {
			continue
		}
		if err := m.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	return res
}
