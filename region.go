package capture

// clampRegion intersects region with the source bounds [0,0,srcW,srcH],
// returning integer pixel bounds safe to slice into a captured frame. An
// unset region clamps to the full source. The result is always within
// bounds and has non-negative width/height; a region entirely outside the
// source clamps to a zero-area rectangle at the nearest edge.
func clampRegion(region Rectangle, srcW, srcH int) (x, y, w, h int) {
	if !region.IsSet() {
		return 0, 0, srcW, srcH
	}

	x0 := clampInt(int(region.X), 0, srcW)
	y0 := clampInt(int(region.Y), 0, srcH)
	x1 := clampInt(int(region.X+region.Width), 0, srcW)
	y1 := clampInt(int(region.Y+region.Height), 0, srcH)

	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return x0, y0, x1 - x0, y1 - y0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cropRGBA copies the region [x,y,w,h) out of a full-frame canonical buffer
// of dimensions srcW x srcH into a newly allocated Image. Callers get a
// fresh buffer rather than a view so that queued frames from ring-buffered
// backends remain valid after the backend reuses its source buffer.
func cropRGBA(src []byte, srcW int, x, y, w, h int) Image {
	out := Image{Pix: make([]byte, w*h*4), Width: w, Height: h}
	for row := 0; row < h; row++ {
		srcOff := ((y+row)*srcW + x) * 4
		dstOff := row * w * 4
		copy(out.Pix[dstOff:dstOff+w*4], src[srcOff:srcOff+w*4])
	}
	return out
}
