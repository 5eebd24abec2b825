package tce

import (
	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/regs"
)

// SyscallTag is the small logical syscall tag remote_syscall dispatches on.
// It never crosses into the target; it only selects a row of the ABI
// tables below.
type SyscallTag int

const (
	SysOpen SyscallTag = iota
	SysClose
	SysWrite
	SysDup2
	SysSetpgid
	SysSetsid
	SysKill
	SysFork
	SysExit
	SysExecve
	SysIoctl

	sysTagCount
)

func (t SyscallTag) String() string {
	if t < 0 || t >= sysTagCount {
		return "unknown"
	}
	return syscallNames[t]
}

var syscallNames = [sysTagCount]string{
	SysOpen:    "open",
	SysClose:   "close",
	SysWrite:   "write",
	SysDup2:    "dup2",
	SysSetpgid: "setpgid",
	SysSetsid:  "setsid",
	SysKill:    "kill",
	SysFork:    "fork",
	SysExit:    "exit",
	SysExecve:  "execve",
	SysIoctl:   "ioctl",
}

// abi64 holds the x86_64 syscall numbers, taken from golang.org/x/sys/unix's
// generated SYS_* constants (the same source the rest of the pack uses,
// e.g. nya3jp-cros-bazel's tracer and ks888/tgo's debugapi client).
var abi64 = [sysTagCount]uint64{
	SysOpen:    unix.SYS_OPEN,
	SysClose:   unix.SYS_CLOSE,
	SysWrite:   unix.SYS_WRITE,
	SysDup2:    unix.SYS_DUP2,
	SysSetpgid: unix.SYS_SETPGID,
	SysSetsid:  unix.SYS_SETSID,
	SysKill:    unix.SYS_KILL,
	SysFork:    unix.SYS_FORK,
	SysExit:    unix.SYS_EXIT,
	SysExecve:  unix.SYS_EXECVE,
	SysIoctl:   unix.SYS_IOCTL,
}

// abi32 holds the legacy i386 syscall numbers. unix.SYS_* constants for
// this table only exist when built for GOARCH=386, so these are the
// literal ABI numbers (matching the original ptmx_resolve C
// implementation's hardcoded `syscalls32` table, itself taken from
// unistd_32.h on an amd64 host).
var abi32 = [sysTagCount]uint64{
	SysOpen:    5,
	SysClose:   6,
	SysWrite:   4,
	SysDup2:    63,
	SysSetpgid: 57,
	SysSetsid:  66,
	SysKill:    37,
	SysFork:    2,
	SysExit:    1,
	SysExecve:  11,
	SysIoctl:   54,
}

// abiNumber returns the ABI syscall number for tag under the given mode.
// Callers must validate tag with tag.valid() first.
func abiNumber(mode regs.Mode, tag SyscallTag) uint64 {
	if mode == regs.Mode32 {
		return abi32[tag]
	}
	return abi64[tag]
}

func (t SyscallTag) valid() bool {
	return t >= 0 && t < sysTagCount
}
