package tce_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestForkOpenIoctlTIOCGPTN exercises the full injection pipeline end to
// end: attach, fork a sacrificial child, have the child open /dev/ptmx
// itself via a remote syscall, then run TIOCGPTN on the descriptor it got
// back. This is the same sequence the PTY inspector drives in production,
// just against a process the test controls instead of an arbitrary one.
func TestForkOpenIoctlTIOCGPTN(t *testing.T) {
	_, parent := spawnStoppable(t)

	child, err := parent.ForkTracee()
	if err != nil {
		t.Skipf("fork injection unavailable in this environment: %v", err)
	}
	require.NotNil(t, child)
	require.NotEqual(t, parent.Pid(), child.Pid())
	require.Equal(t, child.Pid(), parent.LastForkedPID())

	fd, err := child.Open("/dev/ptmx")
	require.NoError(t, err)
	require.GreaterOrEqual(t, fd, 0)

	n, err := child.IoctlTIOCGPTN(fd)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 0)

	require.NoError(t, child.Close(fd))
}
