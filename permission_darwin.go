//go:build darwin

package capture

import "context"

// darwinPermissionChecker reports whether this process holds the macOS
// Screen Recording TCC grant, the single gating permission for every
// capture path on this platform.
type darwinPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return darwinPermissionChecker{}
}

func (darwinPermissionChecker) CheckPermission(ctx context.Context) (PermissionReport, error) {
	if !hasScreenRecordingPermission() {
		return PermissionReport{
			Status:  PermissionError,
			Summary: "screen recording is not authorized for this process",
			Details: []string{
				"open System Settings > Privacy & Security > Screen Recording",
				"enable this application, then relaunch it (macOS does not apply the grant to a running process)",
			},
		}, nil
	}
	return PermissionReport{
		Status:  PermissionOK,
		Summary: "screen recording is authorized",
		Details: []string{"ScreenCaptureKit capture path reachable"},
	}, nil
}
