// Package pty is the PTY Inspector (spec.md §4.2): it walks a target
// process's file-descriptor table via procfs, picks out descriptors that
// look like they're open against the PTY multiplexer device, and asks the
// Tracee Control Engine to run TIOCGPTN against each one through a
// forked, disposable child of the target.
//
// Grounded on the original implementation's ptsname_proxy.c, with two of
// its bugs fixed rather than carried forward: the substring filter tested
// backwards (strstr("/dev/ptmx", linkname) searches the fixed path for the
// link text, so it accepts any link text that is a substring of
// "/dev/ptmx", including the empty string, and rejects any longer text), and
// ptsname_list_all's unchecked opendir plus a wrap_up label nothing
// actually jumps to.
package pty

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/tce"
	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

// reap waits on pid without blocking the caller past the kernel's own
// reporting of the detach-induced continue; a detached tracee that has
// already exited is reaped here rather than left a zombie.
func reap(pid int) (unix.WaitStatus, error) {
	var status unix.WaitStatus
	_, err := unix.Wait4(pid, &status, 0, nil)
	return status, err
}

// multiplexerPath is the canonical PTY multiplexer device; a descriptor's
// symlink target must contain this substring to be considered a
// candidate.
const multiplexerPath = "/dev/ptmx"

// maxPTYs bounds ptsname_list_all's scan, matching the kernel's default
// maximum PTY count (the same bound the original implementation used).
const maxPTYs = 4096

// NotAPtyError is returned when the requested descriptor's link text does
// not look like the PTY multiplexer device.
type NotAPtyError struct {
	Pid int
	Fd  int
}

func (e *NotAPtyError) Error() string {
	return fmt.Sprintf("fd %d of pid %d is not a pty multiplexer descriptor", e.Fd, e.Pid)
}

// IoctlFailedError wraps a TIOCGPTN call that the engine reported as
// failed.
type IoctlFailedError struct {
	Pid int
	Fd  int
	Err error
}

func (e *IoctlFailedError) Error() string {
	return fmt.Sprintf("TIOCGPTN on fd %d of pid %d failed: %v", e.Fd, e.Pid, e.Err)
}

func (e *IoctlFailedError) Unwrap() error { return e.Err }

// AttachDeniedError wraps an attach failure surfaced from the engine, or a
// failure to read the target's /proc/<pid>/fd directory.
type AttachDeniedError struct {
	Pid int
	Err error
}

func (e *AttachDeniedError) Error() string {
	return fmt.Sprintf("cannot access process %d: %v", e.Pid, e.Err)
}

func (e *AttachDeniedError) Unwrap() error { return e.Err }

// session bundles one attach+fork+detach lifecycle shared by both entry
// points: attach to the parent, fork the sacrificial child that actually
// performs the TIOCGPTN calls, and always detach the parent (which
// releases the whole group) and reap it on the way out.
type session struct {
	parent *tce.TraceeHandle
	child  *tce.TraceeHandle
}

func openSession(pid int) (*session, error) {
	parent, err := tce.Attach(pid)
	if err != nil {
		return nil, &AttachDeniedError{Pid: pid, Err: err}
	}
	child, err := parent.ForkTracee()
	if err != nil {
		parent.Detach()
		return nil, err
	}
	return &session{parent: parent, child: child}, nil
}

func (s *session) close(pid int) {
	s.parent.Detach()
	if _, err := reap(pid); err != nil {
		xlog.Debugf("reap of pid=%d after inspection: %v", pid, err)
	}
}

// isCandidate reports whether the symlink at /proc/<pid>/fd/<fd> looks
// like an open multiplexer descriptor.
func isCandidate(pid, fd int) (bool, error) {
	link := fmt.Sprintf("/proc/%d/fd/%d", pid, fd)
	target, err := os.Readlink(link)
	if err != nil {
		return false, err
	}
	return len(target) > 0 && strings.Contains(target, multiplexerPath), nil
}

// PtsnameByFd attaches to pid, forks a disposable child tracee, verifies
// fd's link text is consistent with the PTY multiplexer, runs TIOCGPTN on
// fd via the child, and returns the subordinate index.
func PtsnameByFd(pid, fd int) (int, error) {
	s, err := openSession(pid)
	if err != nil {
		return -1, err
	}
	defer s.close(pid)

	ok, err := isCandidate(pid, fd)
	if err != nil || !ok {
		return -1, &NotAPtyError{Pid: pid, Fd: fd}
	}

	n, err := s.child.IoctlTIOCGPTN(fd)
	if err != nil {
		return -1, &IoctlFailedError{Pid: pid, Fd: fd, Err: err}
	}
	return n, nil
}

// PtsnameListAll attaches to pid, forks a disposable child tracee, and
// runs TIOCGPTN against every /proc/<pid>/fd entry whose link text is
// consistent with the PTY multiplexer. A failed ioctl on one candidate is
// logged and skipped rather than aborting the scan. The result is
// returned in reverse discovery order (the last descriptor procfs yielded
// comes first), matching the original implementation's output order; it
// is not sorted by subordinate index.
func PtsnameListAll(pid int) ([]int, error) {
	fdDir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, &AttachDeniedError{Pid: pid, Err: err}
	}

	s, err := openSession(pid)
	if err != nil {
		return nil, err
	}
	defer s.close(pid)

	var ids []int
	for _, entry := range entries {
		if len(ids) >= maxPTYs {
			xlog.Debugf("pid=%d: truncating scan at %d candidates (kernel default PTY bound)", pid, maxPTYs)
			break
		}
		fd, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ok, err := isCandidate(pid, fd)
		if err != nil || !ok {
			continue
		}

		n, err := s.child.IoctlTIOCGPTN(fd)
		if err != nil {
			xlog.Debugf("pid=%d fd=%d: TIOCGPTN failed, skipped: %v", pid, fd, err)
			continue
		}
		ids = append(ids, n)
	}

	reversed := make([]int, len(ids))
	for i, v := range ids {
		reversed[len(ids)-1-i] = v
	}
	return reversed, nil
}
