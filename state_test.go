package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleHappyPath(t *testing.T) {
	var l streamLifecycle
	assert.True(t, l.get() == stateIdle)

	assert.True(t, l.start())
	assert.True(t, l.isRunning())

	assert.True(t, l.pause())
	assert.True(t, l.isPaused())

	assert.True(t, l.resume())
	assert.True(t, l.isRunning())

	assert.True(t, l.stop())
	assert.True(t, l.isStopped())
}

func TestLifecycleRejectsInvalidTransitions(t *testing.T) {
	var l streamLifecycle
	assert.False(t, l.pause(), "cannot pause before start")
	assert.False(t, l.resume(), "cannot resume before start")

	require := l.start()
	assert.True(t, require)
	assert.False(t, l.start(), "cannot start twice")
	assert.False(t, l.resume(), "cannot resume while running")
}

func TestLifecycleStopIsIdempotent(t *testing.T) {
	var l streamLifecycle
	l.start()
	assert.True(t, l.stop())
	assert.False(t, l.stop(), "second stop reports no transition")
	assert.True(t, l.isStopped())
}

func TestLifecycleStopFromPaused(t *testing.T) {
	var l streamLifecycle
	l.start()
	l.pause()
	assert.True(t, l.stop())
	assert.True(t, l.isStopped())
}
