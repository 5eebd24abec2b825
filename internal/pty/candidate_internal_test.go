package pty

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// A descriptor genuinely open on "/dev/ptmx" must be accepted. isCandidate
// checks that the link text contains "/dev/ptmx", the reverse of the
// original implementation's strstr("/dev/ptmx", linkname), which searched
// the fixed path for the link text.
func TestIsCandidateMatchesRealPtmxLink(t *testing.T) {
	f, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		t.Skipf("/dev/ptmx unavailable in this environment: %v", err)
	}
	defer f.Close()

	ok, err := isCandidate(os.Getpid(), int(f.Fd()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsCandidateRejectsUnrelatedFd(t *testing.T) {
	f, err := os.Open("/dev/null")
	require.NoError(t, err)
	defer f.Close()

	ok, err := isCandidate(os.Getpid(), int(f.Fd()))
	require.NoError(t, err)
	require.False(t, ok)
}
