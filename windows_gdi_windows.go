//go:build windows

package capture

import (
	"context"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/vistream/capturekit/pixel"
)

var (
	user32 = syscall.NewLazyDLL("user32.dll")
	gdi32  = syscall.NewLazyDLL("gdi32.dll")

	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procSetProcessDPIAware = user32.NewProc("SetProcessDPIAware")
	procGetWindowRect      = user32.NewProc("GetWindowRect")

	procCreateDCW              = gdi32.NewProc("CreateDCW")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	smCxScreen = 0
	smCyScreen = 1
	srcCopy    = 0x00CC0020
	captureBlt = 0x40000000
	biRGB      = 0

	dibRGBColors = 0
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

var displayDeviceName = syscall.StringToUTF16Ptr("DISPLAY")

func init() {
	if procSetProcessDPIAware.Find() == nil {
		procSetProcessDPIAware.Call()
	}
}

// gdiCapturer is the Windows fallback backend used when DXGI Desktop
// Duplication cannot be initialized (older hardware, RDP sessions, secure
// desktops). GDI handles are created once and reused across frames.
type gdiCapturer struct {
	cfg Config
	mu  sync.Mutex

	screenDC      uintptr
	screenDCOwned bool
	memDC         uintptr
	hBitmap       uintptr
	oldBitmap     uintptr
	bi            bitmapInfo
	width         int
	height        int
	inited        bool
	pixBuf        []byte

	lifecycle    streamLifecycle
	region       Rectangle
	stopCh       chan struct{}
	windowBounds rect
}

func newGDICapturer(cfg Config) *gdiCapturer {
	return &gdiCapturer{cfg: cfg, region: cfg.Region, stopCh: make(chan struct{})}
}

func (c *gdiCapturer) screenSize() (int, int, error) {
	if c.cfg.Source == SourceWindow {
		r, err := extendedFrameBounds(uintptr(c.cfg.WindowHandle))
		if err != nil {
			return 0, 0, err
		}
		c.windowBounds = r
		return int(r.Right - r.Left), int(r.Bottom - r.Top), nil
	}
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 0, 0, errResource("windows_gdi_geometry", "GetSystemMetrics returned zero dimensions", nil)
	}
	return int(w), int(h), nil
}

func (c *gdiCapturer) ensureHandles() error {
	width, height, err := c.screenSize()
	if err != nil {
		return err
	}
	if c.inited && c.width == width && c.height == height {
		return nil
	}
	c.releaseHandles()

	var hdc uintptr
	if c.cfg.Source == SourceWindow {
		hdc, _, _ = procGetDC.Call(uintptr(c.cfg.WindowHandle))
		c.screenDCOwned = false
	} else {
		hdc, _, _ = procCreateDCW.Call(uintptr(unsafe.Pointer(displayDeviceName)), 0, 0, 0)
		if hdc == 0 {
			hdc, _, _ = procGetDC.Call(0)
			c.screenDCOwned = false
		} else {
			c.screenDCOwned = true
		}
	}
	if hdc == 0 {
		return errResource("windows_gdi_dc", "CreateDC and GetDC both failed", nil)
	}

	memDC, _, _ := procCreateCompatibleDC.Call(hdc)
	if memDC == 0 {
		c.releaseDC(hdc)
		return errResource("windows_gdi_dc", "CreateCompatibleDC failed", nil)
	}

	hBitmap, _, _ := procCreateCompatibleBitmap.Call(hdc, uintptr(width), uintptr(height))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		c.releaseDC(hdc)
		return errResource("windows_gdi_bitmap", "CreateCompatibleBitmap failed", nil)
	}

	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)
	if oldBitmap == 0 {
		procDeleteObject.Call(hBitmap)
		procDeleteDC.Call(memDC)
		c.releaseDC(hdc)
		return errResource("windows_gdi_select", "SelectObject failed", nil)
	}

	c.screenDC = hdc
	c.memDC = memDC
	c.hBitmap = hBitmap
	c.oldBitmap = oldBitmap
	c.width = width
	c.height = height
	c.inited = true
	n, err := checkedRGBASize(width, height)
	if err != nil {
		c.releaseHandles()
		return err
	}
	c.pixBuf = make([]byte, n)
	c.bi = bitmapInfo{BmiHeader: bitmapInfoHeader{
		BiSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		BiWidth:       int32(width),
		BiHeight:      -int32(height),
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: biRGB,
	}}
	return nil
}

func (c *gdiCapturer) releaseDC(hdc uintptr) {
	if c.screenDCOwned {
		procDeleteDC.Call(hdc)
	} else {
		procReleaseDC.Call(0, hdc)
	}
}

func (c *gdiCapturer) releaseHandles() {
	if !c.inited {
		return
	}
	if c.oldBitmap != 0 && c.memDC != 0 {
		procSelectObject.Call(c.memDC, c.oldBitmap)
	}
	if c.hBitmap != 0 {
		procDeleteObject.Call(c.hBitmap)
	}
	if c.memDC != 0 {
		procDeleteDC.Call(c.memDC)
	}
	if c.screenDC != 0 {
		c.releaseDC(c.screenDC)
	}
	c.inited = false
	c.screenDC, c.memDC, c.hBitmap, c.oldBitmap = 0, 0, 0, 0
}

func (c *gdiCapturer) captureOnceLocked(region Rectangle) (Image, error) {
	if c.cfg.Source == SourceWindow {
		// Prefer PrintWindow with full-content rendering so DirectX/
		// DirectComposition-backed windows (browsers, games, modern UI
		// frameworks) still paint; some legacy GDI-only windows reject
		// the flag and must be blitted directly instead.
		if !printWindow(uintptr(c.cfg.WindowHandle), c.memDC) {
			ret, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
				c.screenDC, 0, 0, srcCopy|captureBlt)
			if ret == 0 {
				return Image{}, errResource("windows_gdi_bitblt", "PrintWindow and BitBlt both failed", nil)
			}
		}
	} else if ret, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
		c.screenDC, 0, 0, srcCopy|captureBlt); ret == 0 {
		ret2, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
			c.screenDC, 0, 0, srcCopy)
		if ret2 == 0 {
			return Image{}, errResource("windows_gdi_bitblt", "BitBlt failed", nil)
		}
	}

	ret, _, _ := procGetDIBits.Call(
		c.memDC, c.hBitmap, 0, uintptr(c.height),
		uintptr(unsafe.Pointer(&c.pixBuf[0])), uintptr(unsafe.Pointer(&c.bi)), dibRGBColors,
	)
	if ret == 0 {
		return Image{}, errResource("windows_gdi_getdibits", "GetDIBits failed", nil)
	}

	full := Image{Pix: make([]byte, len(c.pixBuf)), Width: c.width, Height: c.height}
	pixel.Convert(full.Pix, c.pixBuf, c.width*c.height)

	if !region.IsSet() {
		return full, nil
	}
	x, y, w, h := clampRegion(region, c.width, c.height)
	return cropRGBA(full.Pix, c.width, x, y, w, h), nil
}

// capture grabs one frame; an unset region falls back to the instance's
// configured region.
func (c *gdiCapturer) capture(region Rectangle) (Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !region.IsSet() {
		region = c.region
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			c.releaseHandles()
		}
		if err := c.ensureHandles(); err != nil {
			lastErr = err
			continue
		}
		img, err := c.captureOnceLocked(region)
		if err == nil {
			return img, nil
		}
		lastErr = err
	}
	return Image{}, lastErr
}

func (c *gdiCapturer) Screenshot(ctx context.Context, region Rectangle) (Image, error) {
	return c.capture(region)
}

func (c *gdiCapturer) Start(ctx context.Context, cb FrameCallback) error {
	if cb == nil {
		return errConfig("windows_gdi_start", "no frame callback set")
	}
	if !c.lifecycle.start() {
		return errConfig("windows_gdi_start", "backend already started")
	}
	interval := c.cfg.FrameInterval
	if interval <= 0 {
		interval = time.Second / 60
	}
	go c.pollLoop(interval, cb)
	return nil
}

func (c *gdiCapturer) pollLoop(interval time.Duration, cb FrameCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last time.Time

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			if c.lifecycle.isPaused() {
				continue
			}
			img, err := c.capture(Rectangle{})
			if err != nil {
				continue
			}
			var durationMS float64
			if !last.IsZero() {
				durationMS = float64(now.Sub(last).Microseconds()) / 1000.0
			}
			last = now
			cb(&Frame{Image: img, DurationMS: durationMS})
		}
	}
}

func (c *gdiCapturer) Stop() error {
	if !c.lifecycle.stop() {
		return nil
	}
	close(c.stopCh)
	c.mu.Lock()
	c.releaseHandles()
	c.mu.Unlock()
	return nil
}

func (c *gdiCapturer) Pause() bool { return c.lifecycle.pause() }
func (c *gdiCapturer) Resume() bool { return c.lifecycle.resume() }
func (c *gdiCapturer) IsPaused() bool { return c.lifecycle.isPaused() }

func (c *gdiCapturer) SetRegion(region Rectangle) {
	c.mu.Lock()
	c.region = region
	c.mu.Unlock()
}
