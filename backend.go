package capture

import "context"

// Backend is the capability contract every platform implementation
// satisfies. A Backend is constructed for a single source (one monitor or
// one window) and is not reusable once Stop has been called.
type Backend interface {
	// Screenshot captures a single frame synchronously. An unset region
	// (non-positive width or height) falls back to the backend's
	// configured region; if that is also unset, the full source is
	// captured.
	Screenshot(ctx context.Context, region Rectangle) (Image, error)

	// Start begins continuous delivery of frames to cb. It returns once
	// the underlying capture loop is running, or with an error if it
	// could not start. cb may be invoked from a backend-owned goroutine.
	Start(ctx context.Context, cb FrameCallback) error

	// Stop ends delivery and releases native resources. Idempotent.
	Stop() error

	// Pause suspends delivery without releasing native resources. Returns
	// false if the backend was not running.
	Pause() bool

	// Resume reverses Pause. Returns false if the backend was not paused.
	Resume() bool

	// IsPaused reports the current pause state.
	IsPaused() bool

	// SetRegion updates the active crop rectangle; takes effect on the
	// next captured frame. Passing the zero Rectangle reverts to the full
	// source.
	SetRegion(region Rectangle)
}

// Enumerator lists capturable sources on the host. Each platform backend
// package exposes one.
type Enumerator interface {
	Monitors() ([]Monitor, error)
	Windows() ([]Window, error)
}

// PermissionChecker runs a host-environment readiness diagnostic ahead of
// constructing a Backend, so callers can surface actionable guidance
// before attempting a capture that would otherwise fail deep in a native
// call stack.
type PermissionChecker interface {
	CheckPermission(ctx context.Context) (PermissionReport, error)
}
