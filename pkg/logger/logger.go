package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	debugEnabled atomic.Bool
	infoLogger   *log.Logger
	errorLogger  *log.Logger
	debugLogger  *log.Logger
)

func init() {
	SetOutput(os.Stderr)
}

// SetOutput redirects every level to w (tests capture logs this way).
func SetOutput(w io.Writer) {
	infoLogger = log.New(w, "", 0)
	errorLogger = log.New(w, "[ERROR] ", 0)
	debugLogger = log.New(w, "[DEBUG] ", 0)
}

// SetDebug enables or disables debug logging
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// Info logs an informational message
func Info(format string, args ...interface{}) {
	infoLogger.Printf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	errorLogger.Printf(format, args...)
}

// Debug logs a debug message if debug logging is enabled
func Debug(format string, args ...interface{}) {
	if debugEnabled.Load() {
		debugLogger.Printf(format, args...)
	}
}

// Fatal logs an error message and exits with status 1
func Fatal(format string, args ...interface{}) {
	errorLogger.Printf(format, args...)
	os.Exit(1)
}

// Logger prefixes every line with a component name, e.g. "[form/from]".
type Logger struct {
	prefix string
}

// New returns a component logger.
func New(component string) *Logger {
	return &Logger{prefix: fmt.Sprintf("[%s] ", component)}
}

func (l *Logger) Info(format string, args ...interface{}) {
	Info(l.prefix+format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	Error(l.prefix+format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	Debug(l.prefix+format, args...)
}
