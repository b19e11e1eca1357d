package capture

import "fmt"

// ErrorKind distinguishes the broad failure classes a capture can hit.
// Callers can branch on Kind without parsing the message.
type ErrorKind int

const (
	// ErrConfiguration covers missing display servers, missing shared
	// memory, missing portal or media-graph services.
	ErrConfiguration ErrorKind = iota
	// ErrPermission covers screen-recording authorization, portal user
	// cancellation, X11 auth failure.
	ErrPermission
	// ErrResource covers allocation overflow and native object creation
	// failure (device, context, texture, duplication, stream, loop).
	ErrResource
	// ErrNotFound covers an out-of-range monitor index or invalid window
	// handle.
	ErrNotFound
	// ErrProtocol covers runtime protocol failures: portal RPC errors, X
	// protocol errors. Device-access-lost on Windows is handled internally
	// and never surfaces as this kind; a failed recovery surfaces as
	// ErrResource.
	ErrProtocol
	// ErrTimeout covers portal response, screenshot, and user-picker
	// timeouts.
	ErrTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfiguration:
		return "configuration"
	case ErrPermission:
		return "permission"
	case ErrResource:
		return "resource"
	case ErrNotFound:
		return "not_found"
	case ErrProtocol:
		return "protocol"
	case ErrTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CaptureError is the single error type at the API boundary. Its message
// names the failing operation and, where relevant, the remediation.
type CaptureError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// newCaptureError builds a CaptureError, optionally wrapping a cause.
func newCaptureError(kind ErrorKind, op, message string, cause error) *CaptureError {
	return &CaptureError{Kind: kind, Op: op, Message: message, Err: cause}
}

func errConfig(op, message string) *CaptureError {
	return newCaptureError(ErrConfiguration, op, message, nil)
}

func errPermission(op, message string) *CaptureError {
	return newCaptureError(ErrPermission, op, message, nil)
}

func errResource(op, message string, cause error) *CaptureError {
	return newCaptureError(ErrResource, op, message, cause)
}

func errNotFound(op, message string) *CaptureError {
	return newCaptureError(ErrNotFound, op, message, nil)
}

func errProtocol(op, message string, cause error) *CaptureError {
	return newCaptureError(ErrProtocol, op, message, cause)
}

func errTimeout(op, message string) *CaptureError {
	return newCaptureError(ErrTimeout, op, message, nil)
}
