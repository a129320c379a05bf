// Package log provides a leveled logger. isak writes its resolved device to
// stdout, so loggers are expected to be created on stderr.
package log

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"sync/atomic"
)

// verbose gates Debugf output for every Logger in the process.
var verbose atomic.Bool

// SetVerbose enables or disables debug-level output.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether debug-level output is enabled.
func Verbose() bool {
	return verbose.Load()
}

// New creates a Logger instance.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{
		log.New(
			w,
			prefix+" ",
			log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC|log.Lmsgprefix,
		),
	}
}

// Logger represents a logging object that writes output to an io.Writer. Each
// logging operation makes a single call to the Writer's Write method. Logger
// is thread-safe; it guarantees to serialize access to the Writer.
type Logger struct {
	*log.Logger
}

// Errorf prints an error log-level message.
func (l Logger) Errorf(msg string, args ...interface{}) {
	l.output("ERROR", msg, args...)
}

// Warnf prints a warn log-level message.
func (l Logger) Warnf(msg string, args ...interface{}) {
	l.output("WARN", msg, args...)
}

// Infof prints an info log-level message.
func (l Logger) Infof(msg string, args ...interface{}) {
	l.output("INFO", msg, args...)
}

// Debugf prints a debug log-level message when verbose output is enabled.
func (l Logger) Debugf(msg string, args ...interface{}) {
	if !Verbose() {
		return
	}
	l.output("DEBUG", msg, args...)
}

func (l Logger) output(level, msg string, args ...interface{}) {
	file, line := caller(3)
	l.Printf("[%s] %s:%d --- %s", level, file, line, fmt.Sprintf(msg, args...))
}

func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth)
	parts := strings.Split(file, "/")

	// shorten file if it consists of more than 3 parts
	if len(parts) > 3 {
		file = strings.Join(parts[len(parts)-3:], "/")
	}
	if !ok {
		file = "???"
		line = 0
	}
	return file, line
}
