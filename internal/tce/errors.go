package tce

import "fmt"

// AttachError is returned when the kernel refuses to grant debugging
// ownership of a target (permission denied, no such process, already
// traced).
type AttachError struct {
	Pid int
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach %d failed: %v", e.Pid, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

// WaitError is returned when a post-attach or post-step wait does not
// report the stop the engine expected.
type WaitError struct {
	Pid    int
	Detail string
	Err    error
}

func (e *WaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wait on %d failed (%s): %v", e.Pid, e.Detail, e.Err)
	}
	return fmt.Sprintf("wait on %d failed: %s", e.Pid, e.Detail)
}

func (e *WaitError) Unwrap() error { return e.Err }

// PeekError wraps a failed cross-address-space read. The target's memory
// is unmodified on a peek failure.
type PeekError struct {
	Pid  int
	Addr uintptr
	Err  error
}

func (e *PeekError) Error() string {
	return fmt.Sprintf("peek target %d at %#x failed: %v", e.Pid, e.Addr, e.Err)
}

func (e *PeekError) Unwrap() error { return e.Err }

// PokeError wraps a failed cross-address-space write. On failure, the
// range being written may be partially modified; the caller must treat
// it as indeterminate.
type PokeError struct {
	Pid  int
	Addr uintptr
	Err  error
}

func (e *PokeError) Error() string {
	return fmt.Sprintf("poke target %d at %#x failed: %v", e.Pid, e.Addr, e.Err)
}

func (e *PokeError) Unwrap() error { return e.Err }

// UnknownSyscallError is returned when a logical syscall tag is out of
// range; the engine fails fast before touching the target.
type UnknownSyscallError struct {
	Tag SyscallTag
}

func (e *UnknownSyscallError) Error() string {
	return fmt.Sprintf("unknown remote syscall tag %d", int(e.Tag))
}

// RemoteErrnoError is returned when the injected syscall itself returned a
// negative value; Errno is the positive errno the target's kernel
// reported. Op names the high-level operation (e.g. "open",
// "ioctl(TIOCGPTN)") rather than the bare syscall tag, since several
// operations share one tag.
type RemoteErrnoError struct {
	Op    string
	Errno int
}

func (e *RemoteErrnoError) Error() string {
	return fmt.Sprintf("remote %s returned errno %d", e.Op, e.Errno)
}

// EnvReadError is returned when staging an execve call fails to read the
// target's /proc/<pid>/environ.
type EnvReadError struct {
	Pid int
	Err error
}

func (e *EnvReadError) Error() string {
	return fmt.Sprintf("reading environ of %d failed: %v", e.Pid, e.Err)
}

func (e *EnvReadError) Unwrap() error { return e.Err }
