//go:build windows

package capture

// New constructs the Backend appropriate for cfg on Windows: DXGI Desktop
// Duplication (with GDI fallback) for monitor/region capture, GDI
// PrintWindow/BitBlt polling for window capture.
func New(cfg Config) (Backend, error) {
	return newWindowsBackend(cfg)
}

// NewEnumerator constructs the Windows Enumerator.
func NewEnumerator() (Enumerator, error) {
	return newWindowsEnumerator()
}
