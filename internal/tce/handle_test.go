package tce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smaresca/ptmx-resolve/internal/tce"
)

func TestAttachThenDetach(t *testing.T) {
	_, h := spawnStoppable(t)
	assert.False(t, h.Terminal())
	assert.Equal(t, 0, h.LastForkedPID())
}

func TestAttachPid1Fails(t *testing.T) {
	// PID 1 is always running but attaching to it from an unprivileged or
	// containerized test runner is reliably refused either by permissions
	// or because it is outside the test's own pid namespace; either way
	// this should surface as an error, never a panic.
	_, err := tce.Attach(1)
	require.Error(t, err)
}
