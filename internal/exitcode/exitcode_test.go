package exitcode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smaresca/ptmx-resolve/internal/exitcode"
)

func TestFromInspectorResultPassesThrough(t *testing.T) {
	assert.Equal(t, 0, exitcode.FromInspectorResult(0))
	assert.Equal(t, -1, exitcode.FromInspectorResult(-1))
}

func TestExitCodeValues(t *testing.T) {
	assert.Equal(t, 0, exitcode.Ok)
	assert.Equal(t, 1, exitcode.Args)
	assert.Equal(t, 2, exitcode.Err)
	assert.Equal(t, 3, exitcode.Ign)
}
