package capture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageBufferLengthInvariant(t *testing.T) {
	img, err := NewImage(100, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 100, img.Height)
	assert.Len(t, img.Pix, 100*100*4)
}

func TestNewImageZeroDimensionIsEmpty(t *testing.T) {
	img, err := NewImage(0, 1080)
	require.NoError(t, err)
	assert.Empty(t, img.Pix)

	img, err = NewImage(1920, 0)
	require.NoError(t, err)
	assert.Empty(t, img.Pix)
}

func TestNewImageOverflowFails(t *testing.T) {
	width := int(math.MaxUint64/4) + 1
	_, err := NewImage(width, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pixel buffer allocation")

	var capErr *CaptureError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, ErrResource, capErr.Kind)
}

func TestRectangleIsSet(t *testing.T) {
	assert.False(t, Rectangle{}.IsSet())
	assert.False(t, Rectangle{Width: 100}.IsSet())
	assert.False(t, Rectangle{Width: -1, Height: -1}.IsSet())
	assert.True(t, Rectangle{Width: 1, Height: 1}.IsSet())
}

func TestPermissionStatusStrings(t *testing.T) {
	assert.Equal(t, "ok", PermissionOK.String())
	assert.Equal(t, "warning", PermissionWarning.String())
	assert.Equal(t, "error", PermissionError.String())
}
