package tce

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Permission bits and open flags used by the remote open() implementation,
// carried over unchanged from the original implementation's behavior
// rather than its unused mode parameter (see Open).
const (
	remoteOpenFlags = unix.O_RDWR
	remoteOpenPerm  = 0755
)

// withStagedBytes implements spec.md §9's staging buffer pattern: back up
// the target's stack-region bytes the call is about to use, write data
// there, run fn, and restore the backup on every exit path including an
// error from fn. fn receives the address at which data now lives.
func (h *TraceeHandle) withStagedBytes(data []byte, fn func(addr uintptr) (syscallOutcome, error)) (syscallOutcome, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(h.pid, &regs); err != nil {
		return syscallOutcome{}, &WaitError{Pid: h.pid, Detail: "getregs (stage)", Err: err}
	}
	addr := uintptr(regs.Rsp)

	backup, err := h.ReadTarget(addr, len(data))
	if err != nil {
		return syscallOutcome{}, err
	}
	if err := h.WriteTarget(addr, data); err != nil {
		return syscallOutcome{}, err
	}
	defer func() {
		_ = h.WriteTarget(addr, backup)
	}()

	return fn(addr)
}

// Open stages path (plus its NUL terminator) into the target's stack
// region and injects open(path, O_RDWR, 0755). The permission bits are
// fixed per spec.md §4.1.5, matching the original implementation's actual
// behavior rather than a caller-supplied mode.
func (h *TraceeHandle) Open(path string) (int, error) {
	buf := append([]byte(path), 0)
	outcome, err := h.withStagedBytes(buf, func(addr uintptr) (syscallOutcome, error) {
		return h.remoteSyscall(SysOpen, uint64(addr), remoteOpenFlags, remoteOpenPerm)
	})
	if err != nil {
		return -1, err
	}
	if outcome.errno != 0 {
		return -1, &RemoteErrnoError{Op: "open", Errno: outcome.errno}
	}
	return int(outcome.value), nil
}

// Close injects close(fd).
func (h *TraceeHandle) Close(fd int) error {
	outcome, err := h.remoteSyscall(SysClose, uint64(fd), 0, 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "close", Errno: outcome.errno}
	}
	return nil
}

// Write stages data into the target's stack region and injects
// write(fd, data, len(data)).
func (h *TraceeHandle) Write(fd int, data []byte) (int, error) {
	outcome, err := h.withStagedBytes(data, func(addr uintptr) (syscallOutcome, error) {
		return h.remoteSyscall(SysWrite, uint64(fd), uint64(addr), uint64(len(data)))
	})
	if err != nil {
		return -1, err
	}
	if outcome.errno != 0 {
		return -1, &RemoteErrnoError{Op: "write", Errno: outcome.errno}
	}
	return int(outcome.value), nil
}

// Dup2 injects dup2(oldfd, newfd).
func (h *TraceeHandle) Dup2(oldfd, newfd int) error {
	outcome, err := h.remoteSyscall(SysDup2, uint64(oldfd), uint64(newfd), 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "dup2", Errno: outcome.errno}
	}
	return nil
}

// Setpgid injects setpgid(pid, pgid).
func (h *TraceeHandle) Setpgid(pid, pgid int) error {
	outcome, err := h.remoteSyscall(SysSetpgid, uint64(pid), uint64(pgid), 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "setpgid", Errno: outcome.errno}
	}
	return nil
}

// Setsid injects setsid().
func (h *TraceeHandle) Setsid() error {
	outcome, err := h.remoteSyscall(SysSetsid, 0, 0, 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "setsid", Errno: outcome.errno}
	}
	return nil
}

// Kill injects kill(pid, sig).
func (h *TraceeHandle) Kill(pid, sig int) error {
	outcome, err := h.remoteSyscall(SysKill, uint64(pid), uint64(sig), 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "kill", Errno: outcome.errno}
	}
	return nil
}

// Exit injects exit(status). It first enables exit-event reporting so the
// engine's event loop can recognize the target's self-inflicted
// termination cleanly rather than as an unexpected wait result.
func (h *TraceeHandle) Exit(status int) error {
	if err := unix.PtraceSetOptions(h.pid, unix.PTRACE_O_TRACEEXIT); err != nil {
		return &WaitError{Pid: h.pid, Detail: "setoptions(TRACEEXIT)", Err: err}
	}
	_, err := h.remoteSyscall(SysExit, uint64(status), 0, 0)
	return err
}

// Sctty performs ioctl(fd, TIOCSCTTY, 0) to make fd the target's
// controlling terminal, first enabling exit-event reporting so the engine
// can cleanly observe if the call causes the target to terminate.
func (h *TraceeHandle) Sctty(fd int) error {
	if err := unix.PtraceSetOptions(h.pid, unix.PTRACE_O_TRACEEXIT); err != nil {
		return &WaitError{Pid: h.pid, Detail: "setoptions(TRACEEXIT)", Err: err}
	}
	outcome, err := h.remoteSyscall(SysIoctl, uint64(fd), unix.TIOCSCTTY, 0)
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "sctty", Errno: outcome.errno}
	}
	return nil
}

// IoctlTIOCGPTN injects ioctl(fd, TIOCGPTN, &n) and returns the PTY
// subordinate index the kernel wrote back into the staged integer. The
// out-buffer must be read back before withStagedBytes restores the
// target's original stack bytes, so the readback happens inside the
// staged closure rather than after withStagedBytes returns.
func (h *TraceeHandle) IoctlTIOCGPTN(fd int) (int, error) {
	buf := make([]byte, 4)
	var result int32

	outcome, err := h.withStagedBytes(buf, func(addr uintptr) (syscallOutcome, error) {
		outcome, err := h.remoteSyscall(SysIoctl, uint64(fd), unix.TIOCGPTN, uint64(addr))
		if err != nil || outcome.errno != 0 {
			return outcome, err
		}
		out, err := h.ReadTarget(addr, 4)
		if err != nil {
			return outcome, err
		}
		result = int32(binary.LittleEndian.Uint32(out))
		return outcome, nil
	})
	if err != nil {
		return -1, err
	}
	if outcome.errno != 0 {
		return -1, &RemoteErrnoError{Op: "ioctl(TIOCGPTN)", Errno: outcome.errno}
	}
	return int(result), nil
}

// Tcgets injects ioctl(fd, TCGETS, &termios) and returns the raw
// terminal-attribute record the kernel wrote back. As with
// IoctlTIOCGPTN, the out-buffer is read back inside the staged closure,
// before its bytes are restored.
func (h *TraceeHandle) Tcgets(fd int) (unix.Termios, error) {
	var zero, result unix.Termios
	size := int(unsafeSizeofTermios())
	buf := make([]byte, size)

	outcome, err := h.withStagedBytes(buf, func(addr uintptr) (syscallOutcome, error) {
		outcome, err := h.remoteSyscall(SysIoctl, uint64(fd), unix.TCGETS, uint64(addr))
		if err != nil || outcome.errno != 0 {
			return outcome, err
		}
		out, err := h.ReadTarget(addr, size)
		if err != nil {
			return outcome, err
		}
		result = decodeTermios(out)
		return outcome, nil
	})
	if err != nil {
		return zero, err
	}
	if outcome.errno != 0 {
		return zero, &RemoteErrnoError{Op: "ioctl(TCGETS)", Errno: outcome.errno}
	}
	return result, nil
}

// Tcsets injects ioctl(fd, TCSETS, &termios) using t as the in-buffer.
func (h *TraceeHandle) Tcsets(fd int, t unix.Termios) error {
	buf := encodeTermios(t)
	outcome, err := h.withStagedBytes(buf, func(addr uintptr) (syscallOutcome, error) {
		return h.remoteSyscall(SysIoctl, uint64(fd), unix.TCSETS, uint64(addr))
	})
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "ioctl(TCSETS)", Errno: outcome.errno}
	}
	return nil
}

// Execve lays out the command string, an argv array, the target's own
// verbatim environment block (read from procfs by the engine itself, not
// through the remote syscall path), and an envp array of pointers into
// that block, all in the target's stack region, and injects
// execve(command, argv, envp). Per spec.md §4.1.3 step 5, a successful
// exec is an exit-style event: remoteSyscall returns without restoring
// registers, and the handle is left usable only for observation.
func (h *TraceeHandle) Execve(command string) error {
	if err := unix.PtraceSetOptions(h.pid, unix.PTRACE_O_TRACEEXEC); err != nil {
		return &WaitError{Pid: h.pid, Detail: "setoptions(TRACEEXEC)", Err: err}
	}

	env, err := readTargetEnviron(h.pid)
	if err != nil {
		return &EnvReadError{Pid: h.pid, Err: err}
	}

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(h.pid, &regs); err != nil {
		return &WaitError{Pid: h.pid, Detail: "getregs (exec)", Err: err}
	}

	const ptrWidth = 8
	cursor := uintptr(regs.Rsp)
	commandAddr := cursor

	cmdBytes := append([]byte(command), 0)
	if err := h.WriteTarget(cursor, cmdBytes); err != nil {
		return err
	}
	cursor += uintptr(len(cmdBytes))

	argvAddr := cursor
	if err := h.writePointer(cursor, uint64(commandAddr)); err != nil {
		return err
	}
	cursor += ptrWidth
	if err := h.writePointer(cursor, 0); err != nil {
		return err
	}
	cursor += ptrWidth

	envAddr := cursor
	if err := h.WriteTarget(cursor, env); err != nil {
		return err
	}
	cursor += uintptr(len(env))

	envpAddr := cursor
	for p := 0; p < len(env); {
		entryAddr := envAddr + uintptr(p)
		if err := h.writePointer(cursor, uint64(entryAddr)); err != nil {
			return err
		}
		cursor += ptrWidth
		p += stringLen(env[p:]) + 1
	}
	if err := h.writePointer(cursor, 0); err != nil {
		return err
	}

	outcome, err := h.remoteSyscall(SysExecve, uint64(commandAddr), uint64(argvAddr), uint64(envpAddr))
	if err != nil {
		return err
	}
	if outcome.errno != 0 {
		return &RemoteErrnoError{Op: "execve", Errno: outcome.errno}
	}
	return nil
}

func (h *TraceeHandle) writePointer(addr uintptr, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return h.WriteTarget(addr, buf[:])
}

func stringLen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// readTargetEnviron reads /proc/<pid>/environ from the engine side (not
// via the remote engine), growing the buffer until a short read confirms
// the whole block was captured, mirroring the original implementation's
// resize-and-retry loop.
func readTargetEnviron(pid int) ([]byte, error) {
	path := fmt.Sprintf("/proc/%d/environ", pid)
	size := 16 * 1024
	for {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		n, err := f.Read(buf)
		f.Close()
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n < size {
			return buf[:n], nil
		}
		size *= 2
	}
}

// encodeTermios/decodeTermios view a unix.Termios as the raw byte layout
// the kernel's TCGETS/TCSETS ioctls read and write, the same way the
// original implementation passed a bare struct termios pointer across the
// syscall boundary.
func unsafeSizeofTermios() uintptr {
	return unsafe.Sizeof(unix.Termios{})
}

func encodeTermios(t unix.Termios) []byte {
	b := (*[unsafe.Sizeof(unix.Termios{})]byte)(unsafe.Pointer(&t))
	out := make([]byte, len(b))
	copy(out, b[:])
	return out
}

func decodeTermios(buf []byte) unix.Termios {
	var t unix.Termios
	b := (*[unsafe.Sizeof(unix.Termios{})]byte)(unsafe.Pointer(&t))
	copy(b[:], buf)
	return t
}
