//go:build linux

package capture

import "os"

// sessionType reports which display protocol this process is running
// under. Wayland compositors set WAYLAND_DISPLAY; a bare X11 session sets
// only DISPLAY. Both can be set under XWayland, in which case Wayland
// takes precedence since the portal path also works for X11 clients
// running under it.
func sessionType() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "headless"
}

// New constructs the Backend appropriate for the host platform and the
// running session type on Linux.
func New(cfg Config) (Backend, error) {
	switch sessionType() {
	case "wayland":
		return newWaylandBackend(cfg)
	case "x11":
		return newX11Backend(cfg)
	default:
		return nil, errConfig("new_backend", "neither WAYLAND_DISPLAY nor DISPLAY is set; run from a graphical session")
	}
}

// NewEnumerator constructs the Enumerator appropriate for the running
// session type.
func NewEnumerator() (Enumerator, error) {
	switch sessionType() {
	case "wayland":
		return waylandEnumerator{}, nil
	case "x11":
		return newX11Enumerator()
	default:
		return nil, errConfig("new_enumerator", "neither WAYLAND_DISPLAY nor DISPLAY is set; run from a graphical session")
	}
}

// waylandEnumerator adapts the package-level Wayland enumeration helpers
// to the Enumerator interface. Window enumeration has no stable protocol
// on Wayland (by design, for sandboxing); callers needing per-window
// capture must go through the portal's own picker via SourceWindow.
type waylandEnumerator struct{}

func (waylandEnumerator) Monitors() ([]Monitor, error) {
	return enumerateWaylandMonitors()
}

// Windows returns an empty list: Wayland has no protocol for listing other
// clients' windows. Per-window capture still works through the portal's
// interactive picker (SourceWindow / SourceEither).
func (waylandEnumerator) Windows() ([]Window, error) {
	return []Window{}, nil
}
