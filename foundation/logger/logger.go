// Package logger provides leveled logging on top of the standard library
// log.Logger, following the same prefixed-logger-passed-explicitly shape
// used throughout the teacher apps' main() functions.
package logger

import (
	"fmt"
	"io"
	logstd "log"
)

// Level controls which messages are emitted
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps a standard library *log.Logger with a minimum level filter.
// Policy §7: the engine never fails a cycle for a single station or row,
// it logs at the appropriate level instead.
type Logger struct {
	std *logstd.Logger
	min Level
}

// New builds a Logger writing to w with prefix, matching the flags the
// teacher's apps use (LstdFlags|Lmicroseconds|Lshortfile).
func New(w io.Writer, prefix string, min Level) *Logger {
	std := logstd.New(w, prefix, logstd.LstdFlags|logstd.Lmicroseconds|logstd.Lshortfile)
	return &Logger{std: std, min: min}
}

// Std exposes the underlying *log.Logger for callers that still want the
// teacher's bare logger.Printf style (e.g. config usage dumps).
func (l *Logger) Std() *logstd.Logger {
	return l.std
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.min {
		return
	}
	_ = l.std.Output(3, "["+level.String()+"] "+sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }
