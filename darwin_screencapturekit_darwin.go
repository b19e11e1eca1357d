//go:build darwin

package capture

/*
#cgo darwin CFLAGS: -x objective-c -mmacosx-version-min=12.3
#cgo darwin LDFLAGS: -framework ScreenCaptureKit -framework AVFoundation -framework CoreMedia -framework CoreVideo -framework CoreGraphics -framework Foundation
#include "darwin_screencapturekit_darwin.h"
#include <stdlib.h>

extern void goSampleCallbackBridge(void *userInfo, uint8_t *buffer, uint32_t width, uint32_t height, int64_t presentationTimeNs);
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"

	"runtime/cgo"

	"github.com/vistream/capturekit/pixel"
)

// sckFrameSink is the per-session state the exported bridge callback
// looks up via a cgo.Handle, never through a global or thread-local slot;
// each SCStream session gets its own handle, so two concurrent sessions
// cannot cross-deliver frames.
type sckFrameSink struct {
	mu        sync.Mutex
	region    Rectangle
	lastFrame time.Time
	paused    func() bool
	deliver   FrameCallback
}

//export goSampleCallbackBridge
func goSampleCallbackBridge(userInfo unsafe.Pointer, buffer *C.uint8_t, width, height C.uint32_t, presentationTimeNs C.int64_t) {
	defer C.free_buffer(unsafe.Pointer(buffer))

	h := cgo.Handle(uintptr(userInfo))
	sink, ok := h.Value().(*sckFrameSink)
	if !ok || sink == nil {
		return
	}
	if sink.paused != nil && sink.paused() {
		return
	}

	w, ht := int(width), int(height)
	if w == 0 || ht == 0 {
		return
	}
	raw := C.GoBytes(unsafe.Pointer(buffer), C.int(w*ht*4))

	sink.mu.Lock()
	region := sink.region
	var durationMS float64
	now := time.Unix(0, int64(presentationTimeNs))
	if !sink.lastFrame.IsZero() {
		durationMS = now.Sub(sink.lastFrame).Seconds() * 1000.0
		if durationMS < 0 {
			durationMS = 0
		}
	}
	sink.lastFrame = now
	deliver := sink.deliver
	sink.mu.Unlock()

	full, err := NewImage(w, ht)
	if err != nil {
		return
	}
	pixel.Convert(full.Pix, raw, w*ht)

	img := full
	if region.IsSet() {
		x, y, cw, ch := clampRegion(region, w, ht)
		img = cropRGBA(full.Pix, w, x, y, cw, ch)
	}

	if deliver != nil {
		deliver(&Frame{Image: img, DurationMS: durationMS})
	}
}

// scCaptureSession owns one SCStream and its bridge handle.
type scCaptureSession struct {
	handle  C.sck_session
	sink    *sckFrameSink
	hHandle cgo.Handle
}

func newSCCaptureSession(cfg Config) (*scCaptureSession, error) {
	sink := &sckFrameSink{region: cfg.Region}
	hHandle := cgo.NewHandle(sink)

	var displayID, windowID C.uint32_t
	captureWindow := C.int(0)
	if cfg.Source == SourceWindow {
		windowID = C.uint32_t(cfg.WindowHandle)
		captureWindow = 1
	} else {
		displayID = C.uint32_t(resolveDisplayID(cfg.MonitorID))
	}

	// The stream always covers the full source; the region is applied to
	// each full frame in goSampleCallbackBridge, so setRegion takes effect
	// on a running stream with the same coordinates.
	handle := C.sck_create(displayID, windowID, captureWindow,
		0, 0, 0, 0,
		unsafe.Pointer(uintptr(hHandle)),
		(C.sck_sample_callback)(C.goSampleCallbackBridge))
	if handle == nil {
		hHandle.Delete()
		return nil, errResource("darwin_sck_create", "failed to allocate SCStream session", nil)
	}

	return &scCaptureSession{handle: handle, sink: sink, hHandle: hHandle}, nil
}

func (s *scCaptureSession) start(cb FrameCallback) error {
	s.sink.mu.Lock()
	s.sink.deliver = cb
	s.sink.mu.Unlock()

	if C.sck_start(s.handle) == 0 {
		return errPermission("darwin_sck_start", "ScreenCaptureKit failed to start; screen recording permission may be denied (System Settings > Privacy & Security > Screen Recording)")
	}
	return nil
}

func (s *scCaptureSession) stop() {
	C.sck_stop(s.handle)
	C.sck_destroy(s.handle)
	s.hHandle.Delete()
}

func (s *scCaptureSession) setRegion(region Rectangle) {
	s.sink.mu.Lock()
	s.sink.region = region
	s.sink.mu.Unlock()
}

func (s *scCaptureSession) setPaused(paused func() bool) {
	s.sink.mu.Lock()
	s.sink.paused = paused
	s.sink.mu.Unlock()
}

func hasScreenRecordingPermission() bool {
	return C.sck_has_permission() != 0
}

// resolveDisplayID maps the package's zero-based monitor index to a
// CGDirectDisplayID, since ScreenCaptureKit/CoreGraphics address displays
// by opaque ID rather than enumeration position.
func resolveDisplayID(monitorID int) uint32 {
	ids := activeDisplayIDs()
	if monitorID < 0 || monitorID >= len(ids) {
		return 0
	}
	return ids[monitorID]
}

func activeDisplayIDs() []uint32 {
	const maxDisplays = 64
	buf := make([]C.uint32_t, maxDisplays)
	n := C.sck_active_display_ids((*C.uint32_t)(unsafe.Pointer(&buf[0])), C.int(maxDisplays))
	ids := make([]uint32, int(n))
	for i := range ids {
		ids[i] = uint32(buf[i])
	}
	return ids
}
