package regs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/regs"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "x86_64", regs.Mode64.String())
	assert.Equal(t, "x86_32", regs.Mode32.String())
}

func TestSetArgs64UsesDataRegisters(t *testing.T) {
	s := &regs.Snapshot{Mode: regs.Mode64}
	s.SetArgs(1, 2, 3)
	assert.EqualValues(t, 1, s.Regs.Rdi)
	assert.EqualValues(t, 2, s.Regs.Rsi)
	assert.EqualValues(t, 3, s.Regs.Rdx)
}

func TestSetArgs32UsesLegacyRegisters(t *testing.T) {
	s := &regs.Snapshot{Mode: regs.Mode32}
	s.SetArgs(1, 2, 3)
	assert.EqualValues(t, 1, s.Regs.Rbx)
	assert.EqualValues(t, 2, s.Regs.Rcx)
	assert.EqualValues(t, 3, s.Regs.Rdx)
}

func TestSetSyscallNumberSetsRaxNotOrigRax(t *testing.T) {
	s := &regs.Snapshot{}
	s.Regs.Orig_rax = 0xdeadbeef
	s.SetSyscallNumber(unix.SYS_EXECVE)
	assert.EqualValues(t, unix.SYS_EXECVE, s.Regs.Rax)
	assert.EqualValues(t, 0xdeadbeef, s.Regs.Orig_rax)
}

func TestIPAndSPAccessors(t *testing.T) {
	s := &regs.Snapshot{}
	s.SetIP(0x400000)
	assert.EqualValues(t, 0x400000, s.IP())
	s.Regs.Rsp = 0x7fff0000
	assert.EqualValues(t, 0x7fff0000, s.SP())
}

func TestFPAccessors(t *testing.T) {
	s := &regs.Snapshot{}
	s.SetFP(0x1234)
	assert.EqualValues(t, 0x1234, s.FP())
}

func TestReturnValueSignExtends(t *testing.T) {
	s := &regs.Snapshot{}
	s.Regs.Rax = uint64(^uint64(0)) // -1 in two's complement
	assert.EqualValues(t, -1, s.ReturnValue())
}
