package app

import "github.com/dkeye/Cast/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(sess *core.Session) BackpressureAction
}

// SimplePolicy drops the broadcast for the slow connection and keeps it open.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Session) BackpressureAction {
	return DropFrame
}

// StrictPolicy disconnects connections that cannot keep up.
type StrictPolicy struct{}

func (StrictPolicy) OnBackPressure(*core.Session) BackpressureAction {
	return KickMember
}

// PolicyByName maps a config value to a Policy.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return StrictPolicy{}
	}
	return SimplePolicy{}
}
