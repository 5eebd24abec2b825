package tce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smaresca/ptmx-resolve/internal/tce"
)

func TestSyscallTagString(t *testing.T) {
	assert.Equal(t, "open", tce.SysOpen.String())
	assert.Equal(t, "ioctl", tce.SysIoctl.String())
	assert.Equal(t, "unknown", tce.SyscallTag(-1).String())
	assert.Equal(t, "unknown", tce.SyscallTag(999).String())
}
