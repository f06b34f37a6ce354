package qsync

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// defaultLogger is silent unless a caller opts in via SetLogger. Built
// lazily so that a Synchronizer created without ever calling SetLogger
// pays no logger-construction cost.
var (
	defaultLoggerOnce sync.Once
	defaultLogger     *log.Logger
)

func silentLogger() *log.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel + 1})
	})
	return defaultLogger
}

// fatalf logs, at Fatal level, an invariant violation the core itself is
// responsible for upholding. It does not exit: every caller panics with
// ErrQueueCorrupted right after it returns. This path is never reached by
// ordinary cancellation, timeout, or caller misuse — only by a wait-queue
// invariant the algorithm assumes can never break.
func fatalf(l *log.Logger, id interface{ String() string }, format string, args ...any) {
	if l == nil {
		l = silentLogger()
	}
	l.With("id", id.String()).Log(log.FatalLevel, fmt.Sprintf(format, args...))
}
