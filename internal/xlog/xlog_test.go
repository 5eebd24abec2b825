package xlog_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smaresca/ptmx-resolve/internal/xlog"
)

func TestIsDebugReflectsEnv(t *testing.T) {
	// The logger is constructed once at package init from the environment
	// at that time; this test does not change the variable, so IsDebug must
	// agree with its current value. Flipping the env var mid-test would not
	// be observed without rebuilding the logger.
	assert.Equal(t, os.Getenv("PTMX_RESOLVE_DEBUG") != "", xlog.IsDebug())
}

func TestWithFieldsReturnsUsableEntry(t *testing.T) {
	entry := xlog.WithFields(xlog.Fields{"pid": 123})
	assert.Equal(t, 123, entry.Data["pid"])
}
