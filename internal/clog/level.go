// Package clog provides leveled operational logging for bastion.
// This is distinct from user-facing output (see internal/term): clog records
// what the runtime did, term shows the user what they asked for.
//
// Log levels:
//   - Debug: stream increments, spawn details, permission decisions
//   - Info: turns started and finished, commands executed
//   - Warn: recoverable problems (reload failures, kill fallbacks)
//   - Error: failures that affect the session
//
// Output destinations:
//   - File: all levels at or above the configured level
//   - Stderr: Warn and Error only, disabled in quiet mode
package clog

import "strings"

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for verbose diagnostic information.
	LevelDebug Level = iota
	// LevelInfo is for normal operational events.
	LevelInfo
	// LevelWarn is for unexpected conditions that don't prevent operation.
	LevelWarn
	// LevelError is for failures that affect functionality.
	LevelError
)

// String returns the uppercase name of the level.
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

// ParseLevel parses a level string (case-insensitive).
// Returns LevelInfo if the string is not recognized.
func ParseLevel(s string) Level {
	l, _ := lookupLevel(s)
	return l
}

// ValidLevel reports whether s names a level ParseLevel understands.
// The empty string is valid and means the default.
func ValidLevel(s string) bool {
	if s == "" {
		return true
	}
	_, ok := lookupLevel(s)
	return ok
}

func lookupLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}
