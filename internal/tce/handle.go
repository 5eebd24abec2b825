// Package tce is the Tracee Control Engine (spec.md §4.1): it attaches to
// an arbitrary running process via the kernel debugging interface,
// hijacks it at a syscall boundary, injects system calls executed by the
// target's own kernel thread, and restores the target so execution
// continues as if nothing happened.
//
// The engine's shape follows the teacher codebase's ptrace.Child
// (pendulm/fileflip's pkg/ptrace): a handle owning one pid, a save/restore
// register pair around each injected call, and a wait loop that classifies
// the kernel's stop notifications. The actual injection protocol —
// resync-by-instruction-bytes, architecture detection from the two bytes
// before the instruction pointer, and the vsyscall back-jump scan — is
// ported from ptmx_resolve's original C engine (mytrace.c), which the
// Go-community teacher never needed because it only ever executed
// syscalls from a freshly attached, already-positioned stub process.
package tce

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

// TraceeHandle represents exclusive debugging ownership of one live
// process (spec.md §3). It is created by Attach, mutated only by engine
// operations on that handle, and destroyed by Detach.
type TraceeHandle struct {
	pid int

	// lastForkedPID is the side channel spec.md §3 describes: the most
	// recently observed child PID produced by a fork operation, zero if
	// none. It is populated from the structured result remoteSyscall
	// returns, not raced independently from inside the event loop.
	lastForkedPID int

	// terminal marks a handle that has seen an exit-style event (EXIT,
	// or EXEC/EXIT consuming the target's process identity). Spec.md
	// §4.1.3 says behavior after that point is undefined; the engine
	// doesn't try to recover, it just refuses further operations.
	terminal bool
}

// Pid returns the target process identifier.
func (h *TraceeHandle) Pid() int { return h.pid }

// LastForkedPID returns the most recently observed child PID produced by
// a fork operation on this handle, or zero if none has occurred.
func (h *TraceeHandle) LastForkedPID() int { return h.lastForkedPID }

// Terminal reports whether the handle has observed an exit-style event
// and further operations are therefore undefined.
func (h *TraceeHandle) Terminal() bool { return h.terminal }

// Attach acquires kernel debugging ownership of pid and waits for it to
// stop. On AttachError the kernel refused ownership outright. On
// WaitError the post-attach wait did not report a stopped target; the
// engine releases ownership before returning in that case, per spec.md
// §4.1.1.
func Attach(pid int) (*TraceeHandle, error) {
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, &AttachError{Pid: pid, Err: err}
	}

	h := &TraceeHandle{pid: pid}
	if err := h.waitStopped("post-attach"); err != nil {
		_ = unix.PtraceDetach(pid)
		return nil, err
	}
	xlog.Debugf("attached to pid=%d", pid)
	return h, nil
}

// Detach releases kernel debugging ownership; the target resumes. This
// always succeeds from the caller's perspective: there is no meaningful
// recovery if the release itself fails at the kernel boundary, so the
// error is only logged.
func (h *TraceeHandle) Detach() {
	if err := unix.PtraceDetach(h.pid); err != nil {
		xlog.Debugf("detach %d: %v (target may have already exited)", h.pid, err)
	}
}

// adoptChild wraps a pid that has already been forked from this handle's
// target (and is expected to be group-stopped) into a new, independently
// -owned TraceeHandle. Used by ForkTracee.
func adoptChild(pid int) (*TraceeHandle, error) {
	h := &TraceeHandle{pid: pid}
	if err := h.waitStopped("fork child initial stop"); err != nil {
		return nil, err
	}
	return h, nil
}

// waitStopped blocks until the target reports a stop and validates that
// it is in fact stopped (as opposed to exited or signaled away).
func (h *TraceeHandle) waitStopped(phase string) error {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(h.pid, &status, 0, nil)
	if err != nil {
		return &WaitError{Pid: h.pid, Detail: phase, Err: err}
	}
	if wpid != h.pid {
		xlog.Debugf("wait4(%d, %s) returned pid %d", h.pid, phase, wpid)
	}
	if !status.Stopped() {
		return &WaitError{Pid: h.pid, Detail: fmt.Sprintf("%s: expected a stop, got %v", phase, status)}
	}
	return nil
}
