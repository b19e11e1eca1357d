package pixel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapSinglePixel(t *testing.T) {
	buf := []byte{100, 150, 200, 255}
	Swap(buf, 1)
	assert.Equal(t, []byte{200, 150, 100, 255}, buf)
}

func TestSwapZeroCountIsNoop(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	orig := append([]byte(nil), buf...)
	Swap(buf, 0)
	assert.Equal(t, orig, buf)
}

func TestSwapTwiceIsIdentity(t *testing.T) {
	buf := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	orig := append([]byte(nil), buf...)
	Swap(buf, 2)
	Swap(buf, 2)
	assert.Equal(t, orig, buf)
}

func TestConvertKnownPixel(t *testing.T) {
	src := []byte{0x10, 0x20, 0x30, 0xFF} // B G R A
	dst := make([]byte, 4)
	Convert(dst, src, 1)
	assert.Equal(t, []byte{0x30, 0x20, 0x10, 0xFF}, dst) // R G B A
}

func TestConvertMultiPixelEquivalence(t *testing.T) {
	src := []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}
	batched := make([]byte, 8)
	Convert(batched, src, 2)

	sequential := make([]byte, 8)
	Convert(sequential[0:4], src[0:4], 1)
	Convert(sequential[4:8], src[4:8], 1)

	assert.Equal(t, sequential, batched)
}

func TestCheckedRGBASizeZeroDimension(t *testing.T) {
	n, err := CheckedRGBASize(0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint(0), n)

	n, err = CheckedRGBASize(100, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(0), n)
}

func TestCheckedRGBASizeHappyPath(t *testing.T) {
	n, err := CheckedRGBASize(100, 100)
	require.NoError(t, err)
	assert.Equal(t, uint(40000), n)
}

func TestCheckedRGBASizeOverflow(t *testing.T) {
	width := int(math.MaxUint64/4) + 1
	_, err := CheckedRGBASize(width, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pixel buffer allocation")
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedRGBASizeNegativeDimension(t *testing.T) {
	_, err := CheckedRGBASize(-1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverflow)
}
