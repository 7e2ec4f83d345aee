package app

import "github.com/dkeye/roomcast/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Traffic distinguishes chat broadcasts from realtime media relay.
type Traffic int

const (
	TrafficChat Traffic = iota
	TrafficMedia
)

func (t Traffic) String() string {
	if t == TrafficMedia {
		return "media"
	}
	return "chat"
}

type Policy interface {
	OnBackPressure(traffic Traffic, member core.Member) BackpressureAction
}

// SimplePolicy drops media for slow members and disconnects members that
// cannot keep up with chat; the client reconnects and refetches state.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(traffic Traffic, _ core.Member) BackpressureAction {
	if traffic == TrafficMedia {
		return DropFrame
	}
	return KickMember
}
