// Package pixel provides the single canonical conversion path into the
// output pixel order, and the single allocation-size guard, for four-byte-
// per-pixel image buffers. Backends must use these primitives rather than
// reimplementing byte-order conversion or size arithmetic inline.
package pixel

import (
	"errors"
	"fmt"
	"math/bits"
)

// Swap exchanges channels 0 and 2 of every pixel in buf in place, leaving
// channels 1 and 3 untouched. count is the number of four-byte pixels to
// process; a count of zero is a no-op. Applying Swap twice to the same
// buffer restores the original bytes.
func Swap(buf []byte, count int) {
	for i := 0; i < count; i++ {
		o := i * 4
		buf[o], buf[o+2] = buf[o+2], buf[o]
	}
}

// Convert writes dst[0]=src[2], dst[1]=src[1], dst[2]=src[0], dst[3]=src[3]
// for each of count pixels. src and dst must each hold at least count*4
// bytes and may not overlap.
func Convert(dst, src []byte, count int) {
	for i := 0; i < count; i++ {
		o := i * 4
		dst[o] = src[o+2]
		dst[o+1] = src[o+1]
		dst[o+2] = src[o]
		dst[o+3] = src[o+3]
	}
}

// ErrOverflow is wrapped into every error CheckedRGBASize returns, so
// callers can branch with errors.Is without parsing the message.
var ErrOverflow = errors.New("pixel buffer allocation would overflow")

// CheckedRGBASize computes width*height*4 in the native pointer-sized
// unsigned type, failing if either multiplication would overflow. Zero
// width or height returns 0 with no error.
func CheckedRGBASize(width, height int) (uint, error) {
	if width == 0 || height == 0 {
		return 0, nil
	}
	if width < 0 || height < 0 {
		return 0, fmt.Errorf("pixel buffer allocation: negative dimension: %w", ErrOverflow)
	}
	w, h := uint(width), uint(height)

	hiWH, wh := bits.Mul(w, h)
	if hiWH != 0 {
		return 0, fmt.Errorf("pixel buffer allocation: %dx%d: %w", width, height, ErrOverflow)
	}
	hiTotal, total := bits.Mul(wh, 4)
	if hiTotal != 0 {
		return 0, fmt.Errorf("pixel buffer allocation: %dx%d: %w", width, height, ErrOverflow)
	}
	return total, nil
}
