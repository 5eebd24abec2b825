// Package regs is the register-abstraction layer spec.md's budget calls
// out separately from the engine proper: a small tagged variant over the
// two supported x86 architecture modes, with accessors that dispatch on
// the tag instead of scattering #ifdef-style branches through the
// engine.
//
// On x86_64, the kernel's ptrace register file (struct user_regs_struct /
// unix.PtraceRegs) is shared by native 64-bit tasks and 32-bit compat
// tasks alike — a 32-bit tracee's legacy registers simply alias the low
// halves of the 64-bit fields (ebx is the low 32 bits of rbx, and so on).
// That means a single underlying snapshot works for both modes; only the
// field each accessor reaches for, and the calling convention used to
// populate arguments, differs. This mirrors how the original C
// implementation (mytrace.c) reused one struct user_regs_struct under
// both its RAX/RBX/... and eax/ebx/... macro sets.
package regs

import "golang.org/x/sys/unix"

// Mode discriminates the two supported architectures.
type Mode int

const (
	// Mode64 is the native x86_64 syscall convention (`syscall`
	// instruction, arguments in rdi/rsi/rdx/...).
	Mode64 Mode = iota
	// Mode32 is the legacy/compat x86 convention (`int $0x80` or the
	// vsyscall `sysenter` trampoline, arguments in ebx/ecx/edx/...).
	Mode32
)

func (m Mode) String() string {
	if m == Mode32 {
		return "x86_32"
	}
	return "x86_64"
}

// Snapshot is an opaque bundle of one stop's worth of general-purpose
// registers, tagged with the architecture mode under which it should be
// interpreted. It is read out of a target, possibly modified, and written
// back; it is never retained across engine-operation boundaries.
type Snapshot struct {
	Mode Mode
	Regs unix.PtraceRegs
}

// IP returns the instruction pointer.
func (s *Snapshot) IP() uint64 { return s.Regs.Rip }

// SetIP sets the instruction pointer.
func (s *Snapshot) SetIP(v uint64) { s.Regs.Rip = v }

// SP returns the stack pointer.
func (s *Snapshot) SP() uint64 { return s.Regs.Rsp }

// FP returns the frame pointer.
func (s *Snapshot) FP() uint64 { return s.Regs.Rbp }

// SetFP sets the frame pointer. Used by the vsyscall back-jump case,
// which overwrites this with the stack pointer value for reasons the
// original implementation never documented; see internal/tce's
// resyncToSyscall for the call site.
func (s *Snapshot) SetFP(v uint64) { s.Regs.Rbp = v }

// ReturnValue returns the syscall return-value register (rax), sign
// -extended the way a negative errno needs to be.
func (s *Snapshot) ReturnValue() int64 { return int64(s.Regs.Rax) }

// SetSyscallNumber sets the register the kernel reads the syscall number
// from at the moment the pending syscall instruction executes. This is
// rax, not orig_rax: orig_rax only reflects the number after entry has
// already happened, but here the engine is about to replay the
// instruction with rax pre-loaded.
func (s *Snapshot) SetSyscallNumber(n uint64) { s.Regs.Rax = n }

// SetArgs loads the first three syscall arguments into the registers the
// snapshot's mode dictates: rdi/rsi/rdx under the 64-bit convention,
// ebx/ecx/edx (aliased onto the low halves of rbx/rcx/rdx) under the
// legacy 32-bit convention.
func (s *Snapshot) SetArgs(a1, a2, a3 uint64) {
	if s.Mode == Mode32 {
		s.Regs.Rbx = a1
		s.Regs.Rcx = a2
		s.Regs.Rdx = a3
		return
	}
	s.Regs.Rdi = a1
	s.Regs.Rsi = a2
	s.Regs.Rdx = a3
}
