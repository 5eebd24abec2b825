// Package xlog is the ambient logger for ptmx-resolve. It keeps the same
// debug/error/die shape the teacher codebase (pendulm/fileflip's pkg/log)
// used, but is backed by logrus instead of hand-rolled timestamping, per
// the third-party logging convention the rest of the example pack follows
// (nestybox-sysbox-fs, gvisor's runsc) for this kind of low-level tool.
package xlog

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/smaresca/ptmx-resolve/internal/exitcode"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02T15:04:05.000000000Z07:00",
		DisableTimestamp: false,
	}
	if os.Getenv("PTMX_RESOLVE_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// IsDebug reports whether debug tracing is enabled, for callers that want
// to skip building an expensive debug argument when it would be discarded.
func IsDebug() bool {
	return log.IsLevelEnabled(logrus.DebugLevel)
}

// Debugf logs a trace-level message, gated by PTMX_RESOLVE_DEBUG.
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Errorf logs a non-fatal error.
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Fields is an alias for logrus.Fields, so callers can attach structured
// context (pid, fd, syscall tag, ...) without importing logrus directly.
type Fields = logrus.Fields

// WithFields returns an entry carrying structured context, for the
// register/stack dumps the engine emits at debug level.
func WithFields(fields Fields) *logrus.Entry {
	return log.WithFields(fields)
}

// Die logs a fatal message and exits with exitcode.Err. There is no
// meaningful recovery from the conditions that call this: a failed
// PTRACE_ATTACH/GETREGS/SETREGS call at the top of the call stack leaves
// the caller with nothing useful left to do.
func Die(format string, args ...interface{}) {
	DieWithCode(exitcode.Err, format, args...)
}

// DieWithCode logs a fatal message and exits with the given code. logrus's
// own Fatal* helpers always exit 1, which doesn't fit the exit-code
// taxonomy spec.md §6/§7 require, so the exit call stays explicit here.
func DieWithCode(code int, format string, args ...interface{}) {
	log.Errorf(format, args...)
	os.Exit(code)
}
