// Command ptmx-resolve answers one question: given a process ID and
// optionally one of its open file descriptors, which /dev/pts/N
// subordinate device (if any) does that descriptor refer to?
package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/smaresca/ptmx-resolve/internal/exitcode"
	"github.com/smaresca/ptmx-resolve/internal/pty"
	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

const usage = "Usage: ptmx-resolve $PID [<optional> target file descriptor ID]\n"

func main() {
	// ptrace requires every request for a given tracee to originate from
	// the same OS thread that attached to it; the whole program runs on
	// one goroutine, so pinning it here is enough (see debugapi-client's
	// locked request goroutine for the same constraint in a concurrent
	// setting).
	runtime.LockOSThread()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Print(usage)
		return exitcode.Args
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Print(usage)
		return exitcode.Args
	}

	if len(args) >= 2 {
		return resolveSingle(pid, args[1])
	}
	return resolveAll(pid)
}

func resolveSingle(pid int, fdArg string) int {
	fd, err := strconv.Atoi(fdArg)
	if err != nil {
		fmt.Print(usage)
		return exitcode.Args
	}

	ptsID, err := pty.PtsnameByFd(pid, fd)
	if err != nil {
		xlog.Errorf("ptsname_by_fd(%d, %d): %v", pid, fd, err)
		fmt.Printf("target_pid=%d target_fd=%d pts=/dev/pts/%d\n", pid, fd, ptsID)
		return exitcode.FromInspectorResult(-1)
	}

	fmt.Printf("target_pid=%d target_fd=%d pts=/dev/pts/%d\n", pid, fd, ptsID)
	return exitcode.FromInspectorResult(0)
}

func resolveAll(pid int) int {
	ids, err := pty.PtsnameListAll(pid)
	if err != nil {
		xlog.Errorf("ptsname_list_all(%d): %v", pid, err)
		fmt.Printf("There were 0 /dev/pts devices discovered for pid=%d\n", pid)
		return exitcode.FromInspectorResult(-1)
	}

	fmt.Printf("There were %d /dev/pts devices discovered for pid=%d\n", len(ids), pid)
	for _, id := range ids {
		fmt.Printf("target_pid=%d pts=/dev/pts/%d\n", pid, id)
	}
	return exitcode.FromInspectorResult(0)
}
