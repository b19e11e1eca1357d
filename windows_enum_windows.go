//go:build windows

package capture

import (
	"syscall"
	"unicode/utf16"
	"unsafe"
)

var (
	shcore = syscall.NewLazyDLL("shcore.dll")

	procGetMonitorInfoW   = user32.NewProc("GetMonitorInfoW")
	procEnumWindows       = user32.NewProc("EnumWindows")
	procIsWindowVisible   = user32.NewProc("IsWindowVisible")
	procGetWindowTextW    = user32.NewProc("GetWindowTextW")
	procGetWindowTextLenW = user32.NewProc("GetWindowTextLengthW")
	procGetWindowLongW    = user32.NewProc("GetWindowLongW")
	procGetDeviceCaps     = gdi32.NewProc("GetDeviceCaps")
	procGetDpiForMonitor  = shcore.NewProc("GetDpiForMonitor")
)

const (
	gwlExStyle  = -20
	wsExToolWin = 0x00000080

	desktopHorzres = 118
	horzres        = 8

	dwmwaCloaked = 14

	mdtEffectiveDPI = 0
	baselineDPI     = 96
)

type monitorInfoExW struct {
	CbSize    uint32
	RcMonitor rect
	RcWork    rect
	Flags     uint32
	Device    [32]uint16
}

// windowsEnumerator lists monitors via DXGI output descriptors and
// top-level windows via EnumWindows.
type windowsEnumerator struct{}

func newWindowsEnumerator() (*windowsEnumerator, error) { return &windowsEnumerator{}, nil }

func (windowsEnumerator) Monitors() ([]Monitor, error) {
	slots, err := enumDXGIOutputs()
	if err != nil {
		return nil, err
	}
	defer releaseDXGIOutputSlots(slots)

	monitors := make([]Monitor, 0, len(slots))
	for id, slot := range slots {
		var mi monitorInfoExW
		mi.CbSize = uint32(unsafe.Sizeof(mi))
		procGetMonitorInfoW.Call(slot.desc.Monitor, uintptr(unsafe.Pointer(&mi)))

		name := utf16PtrToString(&mi.Device[0])
		if name == "" {
			name = utf16PtrToString(&slot.desc.DeviceName[0])
		}

		monitors = append(monitors, Monitor{
			ID:          id,
			Name:        name,
			X:           int(slot.desc.DesktopCoordinates.Left),
			Y:           int(slot.desc.DesktopCoordinates.Top),
			Width:       int(slot.desc.DesktopCoordinates.Right - slot.desc.DesktopCoordinates.Left),
			Height:      int(slot.desc.DesktopCoordinates.Bottom - slot.desc.DesktopCoordinates.Top),
			ScaleFactor: monitorScaleFactor(slot.desc.Monitor),
		})
	}
	return monitors, nil
}

// monitorScaleFactor prefers GetDpiForMonitor (Windows 8.1+); falls back
// to the desktop/logical horizontal-resolution ratio, and finally to 1.0
// when neither is determinate.
func monitorScaleFactor(hMonitor uintptr) float64 {
	if procGetDpiForMonitor.Find() == nil {
		var dpiX, dpiY uint32
		hr, _, _ := procGetDpiForMonitor.Call(hMonitor, mdtEffectiveDPI,
			uintptr(unsafe.Pointer(&dpiX)), uintptr(unsafe.Pointer(&dpiY)))
		if hr == 0 && dpiX > 0 {
			return float64(dpiX) / float64(baselineDPI)
		}
	}

	hdc, _, _ := procCreateDCW.Call(uintptr(unsafe.Pointer(displayDeviceName)), 0, 0, 0)
	if hdc == 0 {
		return 1.0
	}
	defer procDeleteDC.Call(hdc)

	physical, _, _ := procGetDeviceCaps.Call(hdc, desktopHorzres)
	logical, _, _ := procGetDeviceCaps.Call(hdc, horzres)
	if logical == 0 {
		return 1.0
	}
	scale := float64(physical) / float64(logical)
	if scale < 1.0 {
		return 1.0
	}
	return scale
}

func (windowsEnumerator) Windows() ([]Window, error) {
	var windows []Window
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		if ok, _, _ := procIsWindowVisible.Call(hwnd); ok == 0 {
			return 1
		}
		exStyle, _, _ := procGetWindowLongW.Call(hwnd, uintptr(gwlExStyle))
		if int32(exStyle)&wsExToolWin != 0 {
			return 1
		}
		var cloaked uint32
		procDwmGetWindowAttribute.Call(hwnd, dwmwaCloaked, uintptr(unsafe.Pointer(&cloaked)), unsafe.Sizeof(cloaked))
		if cloaked != 0 {
			return 1
		}

		name := windowTitle(hwnd)
		if name == "" {
			return 1
		}

		r, err := extendedFrameBounds(hwnd)
		if err != nil {
			return 1
		}

		windows = append(windows, Window{
			Handle: uint64(hwnd),
			Name:   name,
			X:      int(r.Left),
			Y:      int(r.Top),
			Width:  int(r.Right - r.Left),
			Height: int(r.Bottom - r.Top),
		})
		return 1
	})
	procEnumWindows.Call(cb, 0)
	return windows, nil
}

func windowTitle(hwnd uintptr) string {
	length, _, _ := procGetWindowTextLenW.Call(hwnd)
	if length == 0 {
		return ""
	}
	buf := make([]uint16, length+1)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return string(utf16.Decode(buf[:n]))
}

func utf16PtrToString(p *uint16) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*uint16)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(n)*2)) != 0 {
		n++
	}
	buf := unsafe.Slice(p, n)
	return string(utf16.Decode(buf))
}
