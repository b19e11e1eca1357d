//go:build windows

package capture

import (
	"syscall"
	"unsafe"
)

var (
	dwmapi = syscall.NewLazyDLL("dwmapi.dll")

	procPrintWindow           = user32.NewProc("PrintWindow")
	procDwmGetWindowAttribute = dwmapi.NewProc("DwmGetWindowAttribute")
)

const (
	pwRenderFullContent      = 0x00000002
	dwmwaExtendedFrameBounds = 9
)

// extendedFrameBounds reads DWMWA_EXTENDED_FRAME_BOUNDS for hwnd, which is
// the compositor's notion of the window's visible bounds (excludes the
// invisible resize-border padding GetWindowRect still reports on Windows
// 10/11). Window captures are cropped against this rect rather than
// GetWindowRect.
func extendedFrameBounds(hwnd uintptr) (rect, error) {
	var r rect
	ret, _, _ := procDwmGetWindowAttribute.Call(
		hwnd, dwmwaExtendedFrameBounds,
		uintptr(unsafe.Pointer(&r)), unsafe.Sizeof(r),
	)
	if ret != 0 {
		// S_OK is 0; DwmGetWindowAttribute failed (e.g. not composited).
		// Fall back to GetWindowRect.
		if ok, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ok == 0 {
			return rect{}, errNotFound("windows_window_bounds", "GetWindowRect failed; invalid window handle")
		}
	}
	return r, nil
}

// printWindow asks the target window to paint itself into hdcDest at
// (0,0), including content that relies on DirectComposition/DirectX
// surfaces (PW_RENDERFULLCONTENT). Returns false if the window refused
// (some legacy GDI apps return 0 for this flag); callers should fall back
// to a plain BitBlt of the window's screen DC in that case.
func printWindow(hwnd, hdcDest uintptr) bool {
	ret, _, _ := procPrintWindow.Call(hwnd, hdcDest, pwRenderFullContent)
	return ret != 0
}
