package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/metrics"
	"github.com/dkeye/roomcast/internal/protocol"
)

// Orchestrator owns the live indexes and applies the backpressure policy to
// every fan-out. Command handlers talk to it instead of the registries.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomRegistry
	Streams  *app.StreamRegistry
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

func New(m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomRegistry(),
		Streams:  app.NewStreamRegistry(),
		Policy:   app.SimplePolicy{},
		Metrics:  m,
	}
}

// Connect makes a freshly accepted session addressable.
func (o *Orchestrator) Connect(sess core.Session) {
	o.Registry.Bind(sess)
	o.Metrics.SessionOpened()
}

// Disconnect removes every trace of sid. Safe to call more than once.
// The session is made unreachable before its memberships are cleared, so a
// concurrent JoinUserToRoom cannot put it back.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.Registry.Unbind(sid)
	sess.ClearUser()
	o.LeaveAll(sid)
	o.Metrics.SessionClosed()
}

// LeaveAll drops sid from every room and from its stream.
func (o *Orchestrator) LeaveAll(sid core.SessionID) {
	rooms := o.Rooms.LeaveAll(sid)
	code, inStream := o.Streams.Leave(sid)
	if len(rooms) > 0 || inStream {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("rooms", len(rooms)).Str("stream", string(code)).Msg("left all")
	}
}

// SendTo offers a frame to every live session of uid and returns how many accepted it.
func (o *Orchestrator) SendTo(uid domain.UserID, header string, body any) (int, error) {
	sessions := o.Registry.SessionsOf(uid)
	if len(sessions) == 0 {
		return 0, nil
	}
	frame, err := protocol.Encode(header, body)
	if err != nil {
		return 0, err
	}
	res := core.PublishResult{}
	for _, s := range sessions {
		if err := s.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SentTo++
	}
	o.applyPolicy(app.TrafficChat, res)
	return res.SentTo, nil
}

func (o *Orchestrator) applyPolicy(traffic app.Traffic, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.Dropped(traffic.String(), len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(traffic, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Str("traffic", traffic.String()).Msg("kicking slow member")
			if sess, ok := o.Registry.GetSession(slow.ID()); ok {
				sess.Close()
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
