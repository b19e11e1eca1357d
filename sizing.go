package capture

import "github.com/vistream/capturekit/pixel"

// checkedRGBASize wraps pixel.CheckedRGBASize, translating its overflow
// sentinel into the CaptureError taxonomy used at the package boundary.
func checkedRGBASize(width, height int) (int, error) {
	n, err := pixel.CheckedRGBASize(width, height)
	if err != nil {
		return 0, errResource("new_image", "pixel buffer allocation would overflow", err)
	}
	return int(n), nil
}
