package rwlock

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

// SetLogger replaces the logger used for contract-violation reports.
// Passing nil restores logrus.StandardLogger().
//
// Fatal reports go through the logger's ExitFunc, so a logger with a
// non-exiting ExitFunc turns them into panics instead of process exits.
func SetLogger(l *logrus.Logger) {
	logger.Store(l)
}

func getLogger() *logrus.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return logrus.StandardLogger()
}

func (l *RWLock) log() *logrus.Entry {
	return getLogger().WithField("lock", fmt.Sprintf("%p", l))
}

// fatal reports a broken usage contract and terminates. It never returns:
// if the logger's ExitFunc does, it panics so the caller cannot carry on
// with corrupted counters.
func fatal(e *logrus.Entry, msg string) {
	e.Fatal(msg)
	panic(msg)
}
