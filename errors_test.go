package capture

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureErrorMessageNamesOperation(t *testing.T) {
	err := errConfig("x11_connect", "cannot connect to X display")
	assert.Equal(t, "x11_connect: cannot connect to X display", err.Error())
}

func TestCaptureErrorWrapsCause(t *testing.T) {
	cause := errors.New("EPERM")
	err := errResource("shm_create", "shmget failed", cause)

	assert.Contains(t, err.Error(), "shm_create")
	assert.Contains(t, err.Error(), "EPERM")
	assert.ErrorIs(t, err, cause)
}

func TestCaptureErrorKindSurvivesWrapping(t *testing.T) {
	inner := errNotFound("monitor_lookup", "monitor index 7 out of range")
	wrapped := fmt.Errorf("constructing backend: %w", inner)

	var capErr *CaptureError
	require.True(t, errors.As(wrapped, &capErr))
	assert.Equal(t, ErrNotFound, capErr.Kind)
}

func TestErrorKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		ErrConfiguration: "configuration",
		ErrPermission:    "permission",
		ErrResource:      "resource",
		ErrNotFound:      "not_found",
		ErrProtocol:      "protocol",
		ErrTimeout:       "timeout",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
