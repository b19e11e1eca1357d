package capture

import "sync/atomic"

// streamState is the lifecycle shared by every streaming backend: Idle
// before Start, Running while delivering frames, Paused while suspended
// without tearing down native resources, Stopped once torn down. Stopped
// is terminal; a new backend must be constructed to stream again.
type streamState int32

const (
	stateIdle streamState = iota
	stateRunning
	statePaused
	stateStopped
)

// streamLifecycle centralizes the state transitions every backend's
// Start/Pause/Resume/Stop implementation drives, so each platform file
// only has to supply native start/stop/pause/resume actions.
type streamLifecycle struct {
	state atomic.Int32
}

func (l *streamLifecycle) get() streamState {
	return streamState(l.state.Load())
}

func (l *streamLifecycle) set(s streamState) {
	l.state.Store(int32(s))
}

// start transitions Idle -> Running. Returns false if not in Idle.
func (l *streamLifecycle) start() bool {
	return l.state.CompareAndSwap(int32(stateIdle), int32(stateRunning))
}

// pause transitions Running -> Paused. Returns false if not Running.
func (l *streamLifecycle) pause() bool {
	return l.state.CompareAndSwap(int32(stateRunning), int32(statePaused))
}

// resume transitions Paused -> Running. Returns false if not Paused.
func (l *streamLifecycle) resume() bool {
	return l.state.CompareAndSwap(int32(statePaused), int32(stateRunning))
}

// stop transitions any non-Stopped state to Stopped. Returns false if
// already Stopped (so callers can make Stop idempotent without double
// releasing native resources).
func (l *streamLifecycle) stop() bool {
	for {
		cur := l.state.Load()
		if streamState(cur) == stateStopped {
			return false
		}
		if l.state.CompareAndSwap(cur, int32(stateStopped)) {
			return true
		}
	}
}

func (l *streamLifecycle) isPaused() bool {
	return l.get() == statePaused
}

func (l *streamLifecycle) isRunning() bool {
	return l.get() == stateRunning
}

func (l *streamLifecycle) isStopped() bool {
	return l.get() == stateStopped
}
