//go:build windows

package capture

import "errors"

// newWindowsBackend picks the Backend implementation for cfg.Source.
// Monitor/region capture tries DXGI Desktop Duplication first and falls
// through to GDI polling if duplication can't be initialized at all (no
// desktop, remote session without it, or already duplicated); per-window
// capture always uses GDI (PrintWindow/BitBlt), since Desktop Duplication
// has no concept of a single window.
func newWindowsBackend(cfg Config) (Backend, error) {
	if cfg.Source == SourceWindow {
		return newGDICapturer(cfg), nil
	}
	dxgi, err := newDXGICapturer(cfg)
	if err == nil {
		return dxgi, nil
	}
	var capErr *CaptureError
	if errors.As(err, &capErr) && capErr.Kind == ErrNotFound {
		// A bad monitor index is a caller mistake, not a duplication
		// failure; GDI would silently capture the wrong screen.
		return nil, err
	}
	return newGDICapturer(cfg), nil
}
