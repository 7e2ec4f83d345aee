package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// JoinStream moves sess into the call identified by code.
func (o *Orchestrator) JoinStream(sess core.Session, code domain.StreamCode) {
	prev, moved := o.Streams.Join(sess, code)
	ev := log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Str("code", string(code))
	if moved {
		ev = ev.Str("from", string(prev))
	}
	ev.Msg("joined stream")
}

func (o *Orchestrator) LeaveStream(sid core.SessionID) bool {
	_, ok := o.Streams.Leave(sid)
	return ok
}

// EndStream removes every member from the call, e.g. when its room or
// friendship is deleted.
func (o *Orchestrator) EndStream(code domain.StreamCode) {
	for _, m := range o.Streams.Members(code) {
		o.Streams.Leave(m.ID())
	}
}

func (o *Orchestrator) RelayVideo(from core.SessionID, body any) (int, error) {
	res, err := o.Streams.RelayVideo(from, body)
	if err != nil {
		return 0, err
	}
	o.applyPolicy(app.TrafficMedia, res)
	return res.SentTo, nil
}

func (o *Orchestrator) RelayAudio(from core.SessionID, body any) (int, error) {
	res, err := o.Streams.RelayAudio(from, body)
	if err != nil {
		return 0, err
	}
	o.applyPolicy(app.TrafficMedia, res)
	return res.SentTo, nil
}
