package tce

import (
	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

// ForkTracee injects a fork() call in the target and returns a handle to
// the new child, per spec.md §4.1.1's "sacrificial child" step: the PTY
// Inspector never issues operations against the process under
// investigation directly, only against a throwaway child of it, so a
// mistake in the injection protocol can't corrupt the target's own
// execution state.
//
// This requires PTRACE_O_TRACEFORK to be set first so the fork shows up
// as a PTRACE_EVENT_FORK stop rather than the child simply running free.
func (h *TraceeHandle) ForkTracee() (*TraceeHandle, error) {
	if err := unix.PtraceSetOptions(h.pid, unix.PTRACE_O_TRACEFORK); err != nil {
		return nil, &WaitError{Pid: h.pid, Detail: "setoptions(TRACEFORK)", Err: err}
	}

	outcome, err := h.remoteSyscall(SysFork, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	if outcome.targetExited {
		return nil, &WaitError{Pid: h.pid, Detail: "target exited during fork injection"}
	}
	if outcome.forkedPID == 0 {
		return nil, &WaitError{Pid: h.pid, Detail: "fork syscall completed without a PTRACE_EVENT_FORK stop"}
	}

	child, err := adoptChild(outcome.forkedPID)
	if err != nil {
		return nil, err
	}

	h.lastForkedPID = outcome.forkedPID
	xlog.Debugf("forked sacrificial child pid=%d from parent pid=%d", child.pid, h.pid)
	return child, nil
}
