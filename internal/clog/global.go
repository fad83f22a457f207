package clog

import (
	"io"
	"log"
	"os"
)

// std is the global logger instance used by package-level functions.
var std = NewLogger()

// Configure sets up the global logger.
// If logPath is empty, file logging is disabled.
// If quiet is true, stderr output is disabled.
func Configure(logPath string, level Level, quiet bool) error {
	std.SetLevel(level)
	std.SetQuiet(quiet)

	if logPath != "" {
		f, err := OpenLogFile(logPath)
		if err != nil {
			return err
		}
		std.SetFileOutput(f)
	}

	return nil
}

// SetLevel sets the minimum log level for the global logger.
func SetLevel(level Level) {
	std.SetLevel(level)
}

// SetFileOutput sets the file writer for the global logger.
func SetFileOutput(w io.Writer) {
	std.SetFileOutput(w)
}

// SetErrOutput sets the stderr writer for the global logger.
func SetErrOutput(w io.Writer) {
	std.SetErrOutput(w)
}

// SetQuiet enables or disables quiet mode for the global logger.
func SetQuiet(quiet bool) {
	std.SetQuiet(quiet)
}

// Enabled reports whether the global logger writes messages at level.
func Enabled(level Level) bool {
	return std.Enabled(level)
}

// Debug logs a debug message using the global logger.
func Debug(format string, args ...any) {
	std.Debug(format, args...)
}

// Info logs an informational message using the global logger.
func Info(format string, args ...any) {
	std.Info(format, args...)
}

// Warn logs a warning message using the global logger.
func Warn(format string, args ...any) {
	std.Warn(format, args...)
}

// Error logs an error message using the global logger.
func Error(format string, args ...any) {
	std.Error(format, args...)
}

// Component logs through the global logger with a fixed component prefix.
// The zero value logs without a prefix.
type Component struct {
	name string
}

// For returns a Component logger for the named subsystem.
func For(name string) Component {
	return Component{name: name}
}

func (c Component) Debug(format string, args ...any) { std.log(LevelDebug, c.name, format, args...) }
func (c Component) Info(format string, args ...any)  { std.log(LevelInfo, c.name, format, args...) }
func (c Component) Warn(format string, args ...any)  { std.log(LevelWarn, c.name, format, args...) }
func (c Component) Error(format string, args ...any) { std.log(LevelError, c.name, format, args...) }

// Close closes the file writer if it implements io.Closer.
// This should be called during shutdown to ensure logs are flushed.
func Close() error {
	std.mu.Lock()
	defer std.mu.Unlock()

	if closer, ok := std.fileWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Reset resets the global logger to default state.
// This is primarily useful for testing.
func Reset() {
	std = NewLogger()
}

// Discard configures the global logger to discard all output.
// This is useful for silencing logs in tests.
func Discard() {
	std.SetFileOutput(io.Discard)
	std.SetErrOutput(io.Discard)
}

// TestLogger returns a logger that writes to the provided writer.
// Useful for capturing log output in tests.
func TestLogger(w io.Writer) *Logger {
	l := NewLogger()
	l.SetFileOutput(w)
	l.SetErrOutput(nil)
	l.SetLevel(LevelDebug)
	return l
}

// ReplaceGlobal replaces the global logger and returns the previous one.
// Useful for testing. Caller should restore the original logger after test.
func ReplaceGlobal(l *Logger) *Logger {
	old := std
	std = l
	return old
}

// RedirectStdLog sends output of the standard library log package to clog
// at the given level. Some dependencies log through it.
func RedirectStdLog(level Level) {
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(Writer(level))
}

// Writer returns an io.Writer that writes to clog at the specified level.
// This is useful for integrating with libraries that expect an io.Writer.
func Writer(level Level) io.Writer {
	return &levelWriter{level: level}
}

type levelWriter struct {
	level Level
}

func (w *levelWriter) Write(p []byte) (n int, err error) {
	msg := string(p)
	// Trim trailing newline since log functions add their own
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	std.log(w.level, "", "%s", msg)
	return len(p), nil
}

func init() {
	// By default, only write to stderr (no file logging until Configure is called)
	std.SetErrOutput(os.Stderr)
}
