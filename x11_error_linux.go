//go:build linux

package capture

import (
	"github.com/BurntSushi/xgb/xproto"
)

// classifyX11Error maps xgb's typed protocol errors onto this package's
// error taxonomy so callers never need to import xgb themselves to branch
// on failure kind.
func classifyX11Error(op string, err error) *CaptureError {
	switch err.(type) {
	case xproto.AccessError:
		return errPermission(op, "X server denied access to the requested drawable")
	case xproto.WindowError:
		return errNotFound(op, "window no longer exists")
	case xproto.DrawableError:
		return errNotFound(op, "drawable no longer exists")
	case xproto.MatchError, xproto.ValueError:
		return errProtocol(op, "X server rejected request parameters", err)
	default:
		return errProtocol(op, "X protocol error", err)
	}
}
