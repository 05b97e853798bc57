// Package logging wraps the standard log package with the leveled helpers
// the rest of xtcore calls into: log straight to stderr at the call site
// rather than building a logging framework around it.
package logging

import (
	"log"
	"os"
)

// Level controls which of Tracef/Infof/Warnf actually print.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelTrace
)

// Logger is a tiny leveled wrapper over *log.Logger. The zero value logs at
// LevelWarn to stderr, matching the quiet-by-default behavior a BIOS boot
// needs (checkpoint trace output is opt-in via LevelTrace).
type Logger struct {
	level Level
	std   *log.Logger
}

// New returns a Logger at the given level writing to stderr.
func New(level Level) *Logger {
	return &Logger{level: level, std: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *Logger) logger() *log.Logger {
	if l == nil || l.std == nil {
		return log.Default()
	}
	return l.std
}

// Warnf always prints: ROM write drops, PIC protocol misuse, patch
// conflicts, unsupported opcodes.
func (l *Logger) Warnf(format string, args ...any) {
	l.logger().Printf("WARN "+format, args...)
}

// Infof prints at LevelInfo and above: ROM set selection, reset events.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.level >= LevelInfo {
		l.logger().Printf("INFO "+format, args...)
	}
}

// Tracef prints at LevelTrace only: checkpoint hits, per-instruction traces.
func (l *Logger) Tracef(format string, args ...any) {
	if l == nil || l.level >= LevelTrace {
		l.logger().Printf("TRACE "+format, args...)
	}
}
