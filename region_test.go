package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampRegionUnsetReturnsFullSource(t *testing.T) {
	x, y, w, h := clampRegion(Rectangle{}, 1920, 1080)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestClampRegionWithinBounds(t *testing.T) {
	x, y, w, h := clampRegion(Rectangle{X: 100, Y: 50, Width: 200, Height: 150}, 1920, 1080)
	assert.Equal(t, 100, x)
	assert.Equal(t, 50, y)
	assert.Equal(t, 200, w)
	assert.Equal(t, 150, h)
}

func TestClampRegionOverhangsEdge(t *testing.T) {
	x, y, w, h := clampRegion(Rectangle{X: 1800, Y: 1000, Width: 500, Height: 500}, 1920, 1080)
	assert.Equal(t, 1800, x)
	assert.Equal(t, 1000, y)
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)
}

func TestClampRegionEntirelyOutsideSourceIsZeroArea(t *testing.T) {
	x, y, w, h := clampRegion(Rectangle{X: 5000, Y: 5000, Width: 100, Height: 100}, 1920, 1080)
	assert.Equal(t, 1920, x)
	assert.Equal(t, 1080, y)
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}

func TestCropRGBAExtractsSubregion(t *testing.T) {
	// 4x4 source, each pixel's R channel == row*4+col for identification.
	src := make([]byte, 4*4*4)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			off := (row*4 + col) * 4
			src[off] = byte(row*4 + col)
			src[off+3] = 255
		}
	}

	out := cropRGBA(src, 4, 1, 1, 2, 2)
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 2, out.Height)
	// Source pixels at (1,1),(2,1),(1,2),(2,2) => values 5,6,9,10.
	assert.Equal(t, byte(5), out.Pix[0])
	assert.Equal(t, byte(6), out.Pix[4])
	assert.Equal(t, byte(9), out.Pix[8])
	assert.Equal(t, byte(10), out.Pix[12])
}
