package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// StreamRegistry maps call codes to the sessions relaying audio/video in them.
// A session belongs to at most one stream; the recorded code and the member
// set are updated under the same lock so they always agree.
type StreamRegistry struct {
	mu      sync.RWMutex
	streams map[domain.StreamCode]map[core.SessionID]core.Member
	codes   map[core.SessionID]domain.StreamCode
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		streams: make(map[domain.StreamCode]map[core.SessionID]core.Member),
		codes:   make(map[core.SessionID]domain.StreamCode),
	}
}

// Join records code for m and adds it to the stream. A session already in a
// different stream leaves it first; the previous code is returned.
func (r *StreamRegistry) Join(m core.Member, code domain.StreamCode) (prev domain.StreamCode, moved bool) {
	sid := m.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.codes[sid]; ok && old != code {
		r.leaveLocked(sid)
		prev, moved = old, true
	}
	members, ok := r.streams[code]
	if !ok {
		members = make(map[core.SessionID]core.Member)
		r.streams[code] = members
	}
	members[sid] = m
	r.codes[sid] = code
	logger := log.Debug().Str("module", "app.streams").Str("sid", string(sid)).Str("code", string(code))
	if moved {
		logger = logger.Str("from", string(prev))
	}
	logger.Msg("joined stream")
	return prev, moved
}

// Leave clears the recorded code and removes the membership.
func (r *StreamRegistry) Leave(sid core.SessionID) (domain.StreamCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sid)
}

func (r *StreamRegistry) leaveLocked(sid core.SessionID) (domain.StreamCode, bool) {
	code, ok := r.codes[sid]
	if !ok {
		return "", false
	}
	delete(r.codes, sid)
	if members, ok := r.streams[code]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.streams, code)
		}
	}
	log.Debug().Str("module", "app.streams").Str("sid", string(sid)).Str("code", string(code)).Msg("left stream")
	return code, true
}

func (r *StreamRegistry) CodeOf(sid core.SessionID) (domain.StreamCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.codes[sid]
	return code, ok
}

func (r *StreamRegistry) Members(code domain.StreamCode) []core.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.streams[code]
	out := make([]core.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func (r *StreamRegistry) List() []core.StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.StreamInfo, 0, len(r.streams))
	for code, members := range r.streams {
		out = append(out, core.StreamInfo{Code: code, MemberCount: len(members)})
	}
	return out
}

// RelayVideo forwards a video frame to every member of the sender's stream
// except the sender.
func (r *StreamRegistry) RelayVideo(from core.SessionID, body any) (core.PublishResult, error) {
	return r.relay(from, protocol.VideoStream, body, true)
}

// RelayAudio forwards an audio frame to every member of the sender's stream,
// the sender included.
func (r *StreamRegistry) RelayAudio(from core.SessionID, body any) (core.PublishResult, error) {
	return r.relay(from, protocol.AudioStream, body, false)
}

func (r *StreamRegistry) relay(from core.SessionID, header string, body any, excludeSender bool) (core.PublishResult, error) {
	code, ok := r.CodeOf(from)
	if !ok {
		return core.PublishResult{}, nil
	}
	frame, err := protocol.Encode(header, body)
	if err != nil {
		return core.PublishResult{}, err
	}
	var skip core.SessionID
	if excludeSender {
		skip = from
	}
	return fanOut(r.Members(code), skip, frame), nil
}
