package tce

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/regs"
	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

// Instruction-encoding words, matched against the two bytes immediately
// preceding the instruction pointer at a syscall-stop (spec.md §3's
// ArchitectureMode, §4.1.3 step 1-2). Each is read as the low 16 bits of a
// PTRACE_PEEKTEXT at ip-2: on this little-endian architecture that places
// the byte at ip-2 in the low byte and the byte at ip-1 in the high byte,
// so "CD 80" reads back as 0x80cd.
const (
	encInt80     = 0x80cd // CD 80: int $0x80 (legacy 32-bit)
	encVsyscall  = 0xf3eb // EB F3: vsyscall trampoline back-jump
	encSyscall64 = 0x050f // 0F 05: syscall (64-bit)
	encSysenter  = 0x340f // 0F 34: sysenter
)

// engineState is the explicit small state machine spec.md §9's design
// notes ask for, in place of the teacher's single overloaded wait-status
// field. stateSeekingSyscall belongs to resyncToSyscall's loop;
// stateStepping/stateHandlingEvent/stateDone/stateTerminal belong to
// stepUntilSyscallCompletes.
type engineState int

const (
	stateSeekingSyscall engineState = iota
	stateStepping
	stateHandlingEvent
	stateDone
	stateTerminal
)

// syscallOutcome is remoteSyscall's internal result. Per spec.md §9's
// final design note, a fork event's child PID flows back through this
// result rather than only through a mutable side-channel field;
// ForkTracee reads it from here and mirrors it onto the handle.
type syscallOutcome struct {
	value        int64
	errno        int
	forkedPID    int
	targetExited bool

	// skipCapture marks an exec or exit-about-to-happen event: per
	// spec.md §4.1.3 step 5, remoteSyscall must return zero immediately
	// in this case and must not attempt the post-call register capture
	// or restoration, since the target is no longer in a state where
	// either is meaningful.
	skipCapture bool
}

// remoteSyscall causes the target to execute one system call and returns
// its result, following the protocol in spec.md §4.1.3.
func (h *TraceeHandle) remoteSyscall(tag SyscallTag, a1, a2, a3 uint64) (syscallOutcome, error) {
	if !tag.valid() {
		return syscallOutcome{}, &UnknownSyscallError{Tag: tag}
	}
	if h.terminal {
		return syscallOutcome{}, &WaitError{Pid: h.pid, Detail: "handle is terminal; further operations are undefined"}
	}

	xlog.Debugf("remote syscall %s(%#x, %#x, %#x) on pid=%d", tag, a1, a2, a3, h.pid)

	snap, offset, err := h.resyncToSyscall()
	if err != nil {
		return syscallOutcome{}, err
	}

	// The registers observed at resync are exactly what must be restored
	// afterward so execution resumes as if nothing happened.
	saved := snap.Regs

	if xlog.IsDebug() {
		xlog.WithFields(xlog.Fields{
			"pid":    h.pid,
			"mode":   snap.Mode,
			"ip":     fmt.Sprintf("%#x", snap.IP()),
			"sp":     fmt.Sprintf("%#x", snap.SP()),
			"fp":     fmt.Sprintf("%#x", snap.FP()),
			"offset": offset,
		}).Debug("resynced to syscall instruction")
	}

	snap.SetIP(snap.IP() - uint64(offset))
	snap.SetSyscallNumber(abiNumber(snap.Mode, tag))
	snap.SetArgs(a1, a2, a3)

	if err := unix.PtraceSetRegs(h.pid, &snap.Regs); err != nil {
		return syscallOutcome{}, &WaitError{Pid: h.pid, Detail: "set injection regs", Err: err}
	}

	outcome, err := h.stepUntilSyscallCompletes()
	if err != nil {
		return syscallOutcome{}, err
	}
	if outcome.targetExited || outcome.skipCapture {
		return outcome, nil
	}

	var after unix.PtraceRegs
	if err := unix.PtraceGetRegs(h.pid, &after); err != nil {
		return syscallOutcome{}, &WaitError{Pid: h.pid, Detail: "get post-syscall regs", Err: err}
	}

	rv := int64(after.Rax)
	outcome.value = rv

	if rv < 0 {
		outcome.errno = int(-rv)
	} else if err := unix.PtraceSetRegs(h.pid, &saved); err != nil {
		return syscallOutcome{}, &WaitError{Pid: h.pid, Detail: "restore regs", Err: err}
	}

	if xlog.IsDebug() {
		xlog.WithFields(xlog.Fields{
			"pid":   h.pid,
			"ip":    fmt.Sprintf("%#x", after.Rip),
			"sp":    fmt.Sprintf("%#x", after.Rsp),
			"rax":   fmt.Sprintf("%#x", after.Rax),
			"tag":   tag.String(),
			"errno": outcome.errno,
		}).Debug("post-syscall registers")
	}

	xlog.Debugf("remote syscall %s returned %d (errno=%d) on pid=%d", tag, rv, outcome.errno, h.pid)
	return outcome, nil
}

// resyncToSyscall repositions the target at a known syscall-instruction
// boundary. If the target is already stopped immediately after a
// recognized syscall encoding, it returns at once; otherwise it steps the
// target through a syscall-entry/syscall-exit pair and checks again. This
// guarantees the engine only ever rewrites the instruction pointer onto an
// instruction it knows how to re-execute.
func (h *TraceeHandle) resyncToSyscall() (*regs.Snapshot, int, error) {
	state := stateSeekingSyscall
	_ = state // documents which phase of spec.md §9's design note this loop is

	for {
		var raw unix.PtraceRegs
		if err := unix.PtraceGetRegs(h.pid, &raw); err != nil {
			return nil, 0, &WaitError{Pid: h.pid, Detail: "resync getregs", Err: err}
		}

		enc := encodingAt(h.pid, uintptr(raw.Rip)-2)

		switch enc {
		case encSyscall64:
			return &regs.Snapshot{Mode: regs.Mode64, Regs: raw}, 2, nil
		case encInt80:
			return &regs.Snapshot{Mode: regs.Mode32, Regs: raw}, 2, nil
		case encVsyscall:
			snap := &regs.Snapshot{Mode: regs.Mode32, Regs: raw}
			offset, err := h.findSysenterOffset(uintptr(raw.Rip))
			if err != nil {
				return nil, 0, err
			}
			// The vsyscall trampoline convention requires the frame
			// pointer to be overwritten with the stack pointer value
			// here; the rationale is not documented anywhere in the
			// original implementation this is ported from, but the
			// behavior is preserved verbatim per spec.md §9.
			snap.SetFP(snap.SP())
			return snap, offset, nil
		}

		if err := unix.PtraceSyscall(h.pid, 0); err != nil {
			return nil, 0, &WaitError{Pid: h.pid, Detail: "resync syscall-stop (entry)", Err: err}
		}
		if err := h.waitStopped("resync syscall-stop (entry)"); err != nil {
			return nil, 0, err
		}
		if err := unix.PtraceSyscall(h.pid, 0); err != nil {
			return nil, 0, &WaitError{Pid: h.pid, Detail: "resync syscall-stop (exit)", Err: err}
		}
		if err := h.waitStopped("resync syscall-stop (exit)"); err != nil {
			return nil, 0, err
		}
	}
}

// encodingAt reads the 16-bit instruction-encoding word at addr.
// Callers treat a peek failure as "no recognized encoding" and keep
// stepping; resyncToSyscall's own error handling covers any persistent
// failure via the next getregs call.
func encodingAt(pid int, addr uintptr) uint16 {
	base := addr &^ uintptr(wordAlign)
	word, err := peekWord(pid, base)
	if err != nil {
		return 0
	}
	shift := uint(addr&wordAlign) * 8
	enc := uint16(word >> shift)
	if shift == (wordSize-1)*8 {
		// The second byte lives in the next word.
		next, err := peekWord(pid, base+wordSize)
		if err != nil {
			return 0
		}
		enc |= uint16(next&0xff) << 8
	}
	return enc
}

// findSysenterOffset scans backward two bytes at a time from rip until it
// finds the sysenter encoding, as spec.md §4.1.3 step 2 describes for the
// vsyscall back-jump case.
func (h *TraceeHandle) findSysenterOffset(rip uintptr) (int, error) {
	for offset := 2; ; offset += 2 {
		if encodingAt(h.pid, rip-uintptr(offset)) == encSysenter {
			return offset, nil
		}
		if offset > 64 {
			return 0, &WaitError{Pid: h.pid, Detail: "sysenter scan exceeded bound without a match"}
		}
	}
}

// stepUntilSyscallCompletes drives the single-step loop described in
// spec.md §4.1.3 steps 4-5, modeled as the explicit state machine spec.md
// §9 asks for.
func (h *TraceeHandle) stepUntilSyscallCompletes() (syscallOutcome, error) {
	var outcome syscallOutcome
	var status unix.WaitStatus
	state := stateStepping

	for {
		switch state {
		case stateStepping:
			if err := unix.PtraceSingleStep(h.pid); err != nil {
				return outcome, &WaitError{Pid: h.pid, Detail: "single-step", Err: err}
			}
			if _, err := unix.Wait4(h.pid, &status, 0, nil); err != nil {
				return outcome, &WaitError{Pid: h.pid, Detail: "single-step wait", Err: err}
			}
			switch {
			case status.Exited() || status.Signaled():
				state = stateTerminal
			case status.Stopped() && status.StopSignal() == unix.SIGTRAP:
				state = stateHandlingEvent
			default:
				// Unrecognized signal-stop: must not crash the engine;
				// break back to stepping.
				state = stateStepping
			}

		case stateHandlingEvent:
			switch status.TrapCause() {
			case unix.PTRACE_EVENT_FORK:
				child, err := unix.PtraceGetEventMsg(h.pid)
				if err != nil {
					return outcome, &WaitError{Pid: h.pid, Detail: "geteventmsg(fork)", Err: err}
				}
				outcome.forkedPID = int(child)
				xlog.Debugf("pid=%d observed fork event, child=%d", h.pid, child)
				state = stateStepping
			case unix.PTRACE_EVENT_EXIT, unix.PTRACE_EVENT_EXEC:
				state = stateDone
				h.terminal = true
				outcome.skipCapture = true
				return outcome, nil
			default:
				state = stateDone
				return outcome, nil
			}

		case stateTerminal:
			h.terminal = true
			outcome.targetExited = true
			return outcome, nil
		}
	}
}
