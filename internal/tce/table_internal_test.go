package tce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/smaresca/ptmx-resolve/internal/regs"
)

func TestAbiNumberSelectsByMode(t *testing.T) {
	assert.EqualValues(t, unix.SYS_OPEN, abiNumber(regs.Mode64, SysOpen))
	assert.EqualValues(t, 5, abiNumber(regs.Mode32, SysOpen))
	assert.EqualValues(t, unix.SYS_IOCTL, abiNumber(regs.Mode64, SysIoctl))
	assert.EqualValues(t, 54, abiNumber(regs.Mode32, SysIoctl))
}

func TestSyscallTagValid(t *testing.T) {
	assert.True(t, SysOpen.valid())
	assert.True(t, SysIoctl.valid())
	assert.False(t, SyscallTag(-1).valid())
	assert.False(t, sysTagCount.valid())
}
