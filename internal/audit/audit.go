// Package audit records shell permission decisions and executions.
// Log entries follow a key=value format suitable for parsing and analysis.
package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of shell audit event.
type EventType string

// Event types for the shell command lifecycle.
const (
	EventRequest  EventType = "REQUEST"
	EventAllow    EventType = "ALLOW"
	EventConfirm  EventType = "CONFIRM"
	EventApprove  EventType = "APPROVE"
	EventReject   EventType = "REJECT"
	EventDeny     EventType = "DENY"
	EventComplete EventType = "COMPLETE"
	EventAbort    EventType = "ABORT"
)

// Event represents a shell audit log entry.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Type is the event type (REQUEST, ALLOW, etc.)
	Type EventType

	// Session is the agent session id, empty outside a session.
	Session string

	// Source is where the command came from (template, tool, exec).
	Source string

	// Cmd is the command line.
	Cmd string

	// Mode is the permission mode (for ALLOW events).
	Mode string

	// Commands are the roots awaiting or granted approval
	// (for CONFIRM and APPROVE events).
	Commands []string

	// Scope is the approval scope, "once" or "session" (for APPROVE events).
	Scope string

	// Reason is the denial reason (for DENY events).
	Reason string

	// ExitCode is the exit status (for COMPLETE events); nil when signalled.
	ExitCode *int

	// Signal is the terminating signal (for COMPLETE and ABORT events).
	Signal string

	// Duration is the execution time (for COMPLETE and ABORT events).
	Duration time.Duration
}

// Format returns the log entry as a formatted string.
// Format: 2024-01-15T14:32:05Z SHELL REQUEST session=4f1c source=tool cmd="..."
func (e *Event) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" SHELL ")
	b.WriteString(string(e.Type))

	writeOptionalField(&b, "session", e.Session)
	b.WriteString(" source=")
	b.WriteString(e.Source)
	if e.Cmd != "" {
		b.WriteString(" cmd=")
		b.WriteString(quoteValue(e.Cmd))
	}

	e.formatTypeSpecificFields(&b)

	return b.String()
}

// formatTypeSpecificFields appends type-specific key=value pairs to the builder.
func (e *Event) formatTypeSpecificFields(b *strings.Builder) {
	switch e.Type {
	case EventAllow:
		writeOptionalField(b, "mode", e.Mode)
	case EventConfirm:
		writeOptionalField(b, "commands", strings.Join(e.Commands, ","))
	case EventApprove:
		writeOptionalField(b, "commands", strings.Join(e.Commands, ","))
		writeOptionalField(b, "scope", e.Scope)
	case EventDeny:
		writeOptionalField(b, "reason", e.Reason)
	case EventComplete:
		b.WriteString(" exit=")
		if e.ExitCode != nil {
			b.WriteString(strconv.Itoa(*e.ExitCode))
		} else {
			b.WriteString("none")
		}
		writeOptionalField(b, "signal", e.Signal)
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	case EventAbort:
		writeOptionalField(b, "signal", e.Signal)
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	}
}

// writeOptionalField appends " key=quoted_value" to the builder if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue returns a quoted string value.
// Values are always quoted for consistency and to handle spaces/special chars.
func quoteValue(s string) string {
	return fmt.Sprintf("%q", s)
}

// formatDuration formats a duration as a human-readable string (e.g., "2.3s", "1m30s").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Logger writes audit events to an io.Writer.
// A nil *Logger discards events.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	session string
	now     func() time.Time
}

// NewLogger creates a new audit logger that writes to the given writer.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// SetSession stamps subsequent events with a session id.
func (l *Logger) SetSession(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = id
}

// Log writes an event to the audit log. Timestamp and Session are filled
// in when zero.
func (l *Logger) Log(e *Event) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.Session == "" {
		e.Session = l.session
	}

	line := e.Format() + "\n"
	_, err := l.w.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogRequest logs a SHELL REQUEST event.
func (l *Logger) LogRequest(source, cmd string) error {
	return l.Log(&Event{Type: EventRequest, Source: source, Cmd: cmd})
}

// LogAllow logs a SHELL ALLOW event for a command permitted by policy.
func (l *Logger) LogAllow(source, cmd, mode string) error {
	return l.Log(&Event{Type: EventAllow, Source: source, Cmd: cmd, Mode: mode})
}

// LogConfirm logs a SHELL CONFIRM event for commands awaiting approval.
func (l *Logger) LogConfirm(source, cmd string, commands []string) error {
	return l.Log(&Event{Type: EventConfirm, Source: source, Cmd: cmd, Commands: commands})
}

// LogApprove logs a SHELL APPROVE event.
func (l *Logger) LogApprove(source string, commands []string, scope string) error {
	return l.Log(&Event{Type: EventApprove, Source: source, Commands: commands, Scope: scope})
}

// LogReject logs a SHELL REJECT event for a confirmation the user declined.
func (l *Logger) LogReject(source, cmd string) error {
	return l.Log(&Event{Type: EventReject, Source: source, Cmd: cmd})
}

// LogDeny logs a SHELL DENY event for a hard policy denial.
func (l *Logger) LogDeny(source, cmd, reason string) error {
	return l.Log(&Event{Type: EventDeny, Source: source, Cmd: cmd, Reason: reason})
}

// LogComplete logs a SHELL COMPLETE event.
func (l *Logger) LogComplete(source, cmd string, exitCode *int, signal string, duration time.Duration) error {
	return l.Log(&Event{
		Type:     EventComplete,
		Source:   source,
		Cmd:      cmd,
		ExitCode: exitCode,
		Signal:   signal,
		Duration: duration,
	})
}

// LogAbort logs a SHELL ABORT event for a cancelled command.
func (l *Logger) LogAbort(source, cmd, signal string, duration time.Duration) error {
	return l.Log(&Event{Type: EventAbort, Source: source, Cmd: cmd, Signal: signal, Duration: duration})
}
