package app

import "github.com/avolkov/parley/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what to do with a client whose send buffer is full.
type Policy interface {
	OnBackPressure(id domain.ClientID) BackpressureAction
}

// SimplePolicy drops the frame: delivery is best-effort and a slow reader
// is not evicted for missing chat traffic.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(id domain.ClientID) BackpressureAction {
	return DropFrame
}
