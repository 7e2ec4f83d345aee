package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// Registry is the live connection list: every accepted session until it is torn down.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]core.Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]core.Session),
	}
}

func (r *Registry) Bind(sess core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = sess
	log.Debug().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("addr", sess.RemoteAddr()).Msg("bound session")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) GetSession(sid core.SessionID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// SessionsOf returns every live session logged in as uid.
func (r *Registry) SessionsOf(uid domain.UserID) []core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Session
	for _, s := range r.sessions {
		if u, ok := s.User(); ok && u.ID == uid {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Snapshot() []core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
