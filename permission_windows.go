//go:build windows

package capture

import "context"

// windowsPermissionChecker probes whether Desktop Duplication is actually
// usable in this session. Windows has no user-facing screen-recording
// consent prompt (unlike macOS), but Desktop Duplication silently refuses
// to initialize on RDP sessions without the redirected display driver, on
// secure desktops, and under a handful of GPU-driver configurations, so
// the diagnostic surfaces that ahead of time.
type windowsPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return windowsPermissionChecker{}
}

func (windowsPermissionChecker) CheckPermission(ctx context.Context) (PermissionReport, error) {
	slots, err := enumDXGIOutputs()
	if err != nil {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "no DXGI outputs are enumerable",
			Details: []string{err.Error(), "confirm a display adapter and monitor are attached and the session is not headless"},
		}, nil
	}
	defer releaseDXGIOutputSlots(slots)

	probe, err := newDXGICapturer(Config{Source: SourceMonitor, MonitorID: 0})
	if err != nil {
		return PermissionReport{
			Status:  PermissionWarning,
			Summary: "DXGI Desktop Duplication unavailable; will fall back to GDI",
			Details: []string{err.Error(), "this is expected over most Remote Desktop sessions and on the secure desktop"},
		}, nil
	}
	probe.Stop()

	return PermissionReport{
		Status:  PermissionOK,
		Summary: "DXGI Desktop Duplication is available",
		Details: []string{"all capture paths reachable"},
	}, nil
}
