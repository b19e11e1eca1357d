//go:build darwin

package capture

/*
#cgo darwin CFLAGS: -x objective-c -mmacosx-version-min=12.3
#cgo darwin LDFLAGS: -framework CoreGraphics -framework Foundation
#include "darwin_screencapturekit_darwin.h"
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"unsafe"
)

// darwinEnumerator lists displays via CGGetActiveDisplayList and windows
// via CGWindowListCopyWindowInfo (on-screen, layer 0, non-empty titles).
type darwinEnumerator struct{}

func newDarwinEnumerator() (*darwinEnumerator, error) { return &darwinEnumerator{}, nil }

func (darwinEnumerator) Monitors() ([]Monitor, error) {
	ids := activeDisplayIDs()
	monitors := make([]Monitor, 0, len(ids))
	for i, id := range ids {
		var x, y, w, h C.double
		C.sck_display_bounds(C.uint32_t(id), &x, &y, &w, &h)

		namePtr := C.sck_display_name(C.uint32_t(id))
		name := C.GoString(namePtr)
		C.free_buffer(unsafe.Pointer(namePtr))

		monitors = append(monitors, Monitor{
			ID:          i,
			Name:        name,
			X:           int(x),
			Y:           int(y),
			Width:       int(w),
			Height:      int(h),
			ScaleFactor: 1.0, // CoreGraphics display bounds are in points; the display's backing scale is not read
		})
	}
	return monitors, nil
}

type darwinWindowEntry struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (darwinEnumerator) Windows() ([]Window, error) {
	cstr := C.sck_window_list_json()
	defer C.free_buffer(unsafe.Pointer(cstr))
	raw := C.GoString(cstr)

	var entries []darwinWindowEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errResource("darwin_window_list", "failed to parse window list", err)
	}

	windows := make([]Window, 0, len(entries))
	for _, e := range entries {
		windows = append(windows, Window{
			Handle: e.ID,
			Name:   e.Name,
			X:      e.X,
			Y:      e.Y,
			Width:  e.Width,
			Height: e.Height,
		})
	}
	return windows, nil
}
