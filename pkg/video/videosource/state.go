package videosource

import "sync/atomic"

type State int32

const (
	Created State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

type atomicState struct{ v int32 }

func (a *atomicState) load() State { return State(atomic.LoadInt32(&a.v)) }

func (a *atomicState) store(s State) { atomic.StoreInt32(&a.v, int32(s)) }

// advance moves to next only when the current state is from.
func (a *atomicState) advance(from, next State) bool {
	return atomic.CompareAndSwapInt32(&a.v, int32(from), int32(next))
}
