package pty_test

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smaresca/ptmx-resolve/internal/pty"
)

// spawnPtmxHolder starts a real child that keeps /dev/ptmx open as fd 3
// for the duration of the test, giving ptsname_by_fd/ptsname_list_all a
// genuine multiplexer descriptor to discover without needing ptrace
// injection to set it up.
func spawnPtmxHolder(t *testing.T) *exec.Cmd {
	t.Helper()
	f, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		t.Skipf("/dev/ptmx unavailable in this environment: %v", err)
	}

	cmd := exec.Command("sleep", "5")
	cmd.ExtraFiles = []*os.File{f}
	if err := cmd.Start(); err != nil {
		f.Close()
		t.Skipf("could not spawn holder process: %v", err)
	}
	f.Close()

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestPtsnameByFd(t *testing.T) {
	cmd := spawnPtmxHolder(t)

	n, err := pty.PtsnameByFd(cmd.Process.Pid, 3)
	if err != nil {
		t.Skipf("ptrace unavailable in this environment: %v", err)
	}
	require.GreaterOrEqual(t, n, 0)
}

func TestPtsnameByFdRejectsNonPty(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	_, err := pty.PtsnameByFd(cmd.Process.Pid, 0)
	require.Error(t, err)
}

func TestPtsnameListAllFindsHeldDescriptor(t *testing.T) {
	cmd := spawnPtmxHolder(t)

	ids, err := pty.PtsnameListAll(cmd.Process.Pid)
	if err != nil {
		t.Skipf("ptrace unavailable in this environment: %v", err)
	}
	require.NotEmpty(t, ids)
}
