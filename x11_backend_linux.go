//go:build linux

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/shm"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/vistream/capturekit/pixel"
)

// x11Backend captures an X11 root window (or a single client window) using
// the MIT-SHM extension for zero-copy image transfer, falling back to a
// per-frame socket GetImage when the extension is unavailable (remote
// displays, some nested servers). It polls rather than streams, since X11
// has no native "subscribe to frames" primitive; pacing is governed by
// Config.FrameInterval.
type x11Backend struct {
	cfg    Config
	logger *slog.Logger
	conn   *xgb.Conn
	root   xproto.Window
	target xproto.Drawable
	depth  byte
	// swapPixels is true when the server sends little-endian ZPixmap data,
	// whose in-memory channel order is B,G,R,A and needs the canonical
	// swap; big-endian servers deliver bytes that are copied through.
	swapPixels bool
	useShm     bool
	// monitor is the selected CRTC rectangle for SourceMonitor capture;
	// zero width/height means the whole root (no RandR, single screen).
	monitor Rectangle

	lifecycle streamLifecycle

	// mu covers region, the shared-memory segment, and the in-flight
	// capture; SetRegion and Screenshot contend with the poll loop on it.
	mu     sync.Mutex
	region Rectangle
	segID  shm.Seg
	seg    *shmSegment

	stopCh chan struct{}
}

func newX11Backend(cfg Config) (*x11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errConfig("x11_connect", fmt.Sprintf("cannot connect to X display (is DISPLAY set correctly?): %v", err))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", "x11")

	useShm := true
	if err := shm.Init(conn); err != nil {
		useShm = false
		logger.Warn("MIT-SHM extension unavailable, using socket GetImage", "error", err)
	}
	_ = xfixes.Init(conn) // optional: initialized only, no XFIXES request is made; absence is non-fatal

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b := &x11Backend{
		cfg:        cfg,
		logger:     logger,
		conn:       conn,
		root:       screen.Root,
		target:     xproto.Drawable(screen.Root),
		depth:      screen.RootDepth,
		swapPixels: setup.ImageByteOrder == xproto.ImageOrderLSBFirst,
		useShm:     useShm,
		region:     cfg.Region,
		stopCh:     make(chan struct{}),
	}

	switch cfg.Source {
	case SourceWindow:
		b.target = xproto.Drawable(cfg.WindowHandle)
	case SourceMonitor:
		if err := b.resolveMonitor(cfg.MonitorID); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return b, nil
}

// resolveMonitor records the selected CRTC's rectangle so capture reads
// only that monitor's area of the root. Without RandR there is a single
// virtual screen, so only monitor 0 exists and the rectangle stays unset
// (whole root).
func (b *x11Backend) resolveMonitor(monitorID int) error {
	if randr.Init(b.conn) != nil {
		if monitorID != 0 {
			return errNotFound("x11_monitor", fmt.Sprintf("monitor index %d out of range (RandR unavailable, single virtual screen)", monitorID))
		}
		return nil
	}
	monitors, err := randrMonitors(b.conn, b.root)
	if err != nil || len(monitors) == 0 {
		if monitorID != 0 {
			return errNotFound("x11_monitor", fmt.Sprintf("monitor index %d out of range", monitorID))
		}
		return nil
	}
	if monitorID < 0 || monitorID >= len(monitors) {
		return errNotFound("x11_monitor", fmt.Sprintf("monitor index %d out of range (%d monitors)", monitorID, len(monitors)))
	}
	m := monitors[monitorID]
	b.monitor = Rectangle{X: float64(m.X), Y: float64(m.Y), Width: float64(m.Width), Height: float64(m.Height)}
	return nil
}

// captureBounds computes the source rectangle for one frame: the window's
// geometry, the selected monitor's CRTC rectangle, or the whole root.
func (b *x11Backend) captureBounds() (x, y, width, height int, err error) {
	geom, cookieErr := xproto.GetGeometry(b.conn, b.target).Reply()
	if cookieErr != nil {
		return 0, 0, 0, 0, classifyX11Error("x11_geometry", cookieErr)
	}
	if b.cfg.Source == SourceMonitor && b.monitor.IsSet() {
		mx, my, mw, mh := clampRegion(b.monitor, int(geom.Width), int(geom.Height))
		return mx, my, mw, mh, nil
	}
	return 0, 0, int(geom.Width), int(geom.Height), nil
}

// ensureShmLocked (re)allocates the shared segment when the capture area
// outgrows it. The segment is marked for removal only once both this
// process and the X server are attached; marking earlier would make the
// server's attach fail. Caller holds b.mu.
func (b *x11Backend) ensureShmLocked(width, height int) error {
	needed, err := checkedRGBASize(width, height)
	if err != nil {
		return err
	}
	if b.seg != nil && b.seg.size() >= needed {
		return nil
	}
	b.releaseShmLocked()

	seg, err := newShmSegment(needed)
	if err != nil {
		return err
	}
	segID, err := shm.NewSegId(b.conn)
	if err != nil {
		seg.remove()
		seg.close()
		return errResource("x11_shm_segid", "could not allocate MIT-SHM segment id", err)
	}
	if err := shm.AttachChecked(b.conn, segID, uint32(seg.id), false).Check(); err != nil {
		seg.remove()
		seg.close()
		return errResource("x11_shm_attach_x", "X server could not attach shared memory", err)
	}
	// Both sides are attached now; mark the segment so the kernel reaps it
	// once the last attacher detaches, even on abnormal exit.
	seg.remove()

	b.seg = seg
	b.segID = segID
	return nil
}

// releaseShmLocked detaches server-side first, then tears down the local
// attachment; the segment itself is already marked IPC_RMID. Caller holds
// b.mu.
func (b *x11Backend) releaseShmLocked() {
	if b.seg == nil {
		return
	}
	shm.Detach(b.conn, b.segID)
	b.seg.close()
	b.seg = nil
	b.segID = 0
}

// captureOnce grabs one frame. An unset region falls back to the
// instance's configured region.
func (b *x11Backend) captureOnce(region Rectangle) (Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !region.IsSet() {
		region = b.region
	}

	srcX, srcY, width, height, err := b.captureBounds()
	if err != nil {
		return Image{}, err
	}
	if width == 0 || height == 0 {
		return Image{}, nil
	}

	img, err := NewImage(width, height)
	if err != nil {
		return Image{}, err
	}

	if b.useShm {
		if err := b.ensureShmLocked(width, height); err != nil {
			// A server that advertises MIT-SHM can still refuse the
			// attach (ssh-forwarded displays, container namespaces);
			// the socket path always works, just slower.
			b.useShm = false
			b.logger.Warn("shared-memory setup failed, falling back to socket GetImage", "error", err)
		}
	}

	if b.useShm {
		err = b.readShmLocked(img, srcX, srcY, width, height)
	} else {
		err = b.readSocketLocked(img, srcX, srcY, width, height)
	}
	if err != nil {
		return Image{}, err
	}

	if b.depth <= 24 {
		forceOpaque(img.Pix)
	}

	if !region.IsSet() {
		return img, nil
	}
	x, y, w, h := clampRegion(region, width, height)
	return cropRGBA(img.Pix, width, x, y, w, h), nil
}

func (b *x11Backend) readShmLocked(img Image, srcX, srcY, width, height int) error {
	_, err := shm.GetImage(b.conn, b.target, int16(srcX), int16(srcY), uint16(width), uint16(height),
		0xFFFFFFFF, byte(xproto.ImageFormatZPixmap), b.segID, 0).Reply()
	if err != nil {
		return classifyX11Error("x11_shm_get_image", err)
	}
	b.convertZPixmap(img.Pix, b.seg.bytes()[:len(img.Pix)], width*height)
	return nil
}

func (b *x11Backend) readSocketLocked(img Image, srcX, srcY, width, height int) error {
	reply, err := xproto.GetImage(b.conn, xproto.ImageFormatZPixmap, b.target,
		int16(srcX), int16(srcY), uint16(width), uint16(height), 0xFFFFFFFF).Reply()
	if err != nil {
		return classifyX11Error("x11_get_image", err)
	}
	if len(reply.Data) < len(img.Pix) {
		return errProtocol("x11_get_image", "server returned a truncated image", nil)
	}
	b.convertZPixmap(img.Pix, reply.Data[:len(img.Pix)], width*height)
	return nil
}

// convertZPixmap lands server pixel data in the canonical channel order:
// little-endian servers send B,G,R,A per pixel and need the swap,
// big-endian servers' bytes already arrive in channel order.
func (b *x11Backend) convertZPixmap(dst, src []byte, count int) {
	if b.swapPixels {
		pixel.Convert(dst, src, count)
		return
	}
	copy(dst, src)
}

// forceOpaque sets every alpha byte to 0xFF; ZPixmap data from depth-24
// visuals carries undefined padding where the alpha channel would be.
func forceOpaque(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
}

func (b *x11Backend) Screenshot(ctx context.Context, region Rectangle) (Image, error) {
	return b.captureOnce(region)
}

func (b *x11Backend) Start(ctx context.Context, cb FrameCallback) error {
	if cb == nil {
		return errConfig("x11_start", "no frame callback set")
	}
	if !b.lifecycle.start() {
		return errConfig("x11_start", "backend already started")
	}
	interval := b.cfg.FrameInterval
	if interval <= 0 {
		interval = time.Second / 60
	}
	go b.pollLoop(interval, cb)
	return nil
}

func (b *x11Backend) pollLoop(interval time.Duration, cb FrameCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last time.Time

	for {
		select {
		case <-b.stopCh:
			return
		case now := <-ticker.C:
			if b.lifecycle.isPaused() {
				continue
			}
			img, err := b.captureOnce(Rectangle{})
			if err != nil {
				// Protocol errors (a window going away mid-frame, a
				// transient SHM failure) skip the frame; the next tick
				// retries.
				continue
			}
			if img.Width == 0 || img.Height == 0 {
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

func (b *x11Backend) Stop() error {
	if !b.lifecycle.stop() {
		return nil
	}
	close(b.stopCh)
	b.mu.Lock()
	b.releaseShmLocked()
	b.mu.Unlock()
	b.conn.Close()
	return nil
}

func (b *x11Backend) Pause() bool    { return b.lifecycle.pause() }
func (b *x11Backend) Resume() bool   { return b.lifecycle.resume() }
func (b *x11Backend) IsPaused() bool { return b.lifecycle.isPaused() }

func (b *x11Backend) SetRegion(region Rectangle) {
	b.mu.Lock()
	b.region = region
	b.mu.Unlock()
}
