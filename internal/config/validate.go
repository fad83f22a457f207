package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/shellparse"
)

// ValidateGlobalConfig validates a parsed GlobalConfig, checking that all
// fields contain valid values. It validates:
//   - Policy entries are non-empty and free of command substitution
//   - shell.grace_window parses as a positive duration
//   - Sniff limits and session bounds are not negative (max_turns may be -1)
//   - log.level is one of: debug, info, warn, error (if non-empty)
//
// Returns nil if the config is valid, or an error with a clear message
// indicating which field is invalid.
func ValidateGlobalConfig(cfg *GlobalConfig) error {
	if err := validateEntries(cfg.Tools.Allow, "tools.allow"); err != nil {
		return err
	}
	if err := validateEntries(cfg.Tools.Deny, "tools.deny"); err != nil {
		return err
	}

	if cfg.Shell.GraceWindow != "" {
		if err := validateDuration(cfg.Shell.GraceWindow, "shell.grace_window"); err != nil {
			return err
		}
	}
	if len(cfg.Shell.Args) > 0 && cfg.Shell.Program == "" {
		return fmt.Errorf("shell.args: requires shell.program")
	}
	if cfg.Shell.SniffLimit < 0 {
		return fmt.Errorf("shell.sniff_limit: must be non-negative, got %d", cfg.Shell.SniffLimit)
	}
	if cfg.Shell.SniffChunks < 0 {
		return fmt.Errorf("shell.sniff_chunks: must be non-negative, got %d", cfg.Shell.SniffChunks)
	}

	if cfg.Session.MaxTurns < -1 {
		return fmt.Errorf("session.max_turns: must be -1 (unlimited) or non-negative, got %d", cfg.Session.MaxTurns)
	}
	if cfg.Session.LoopThreshold < 0 {
		return fmt.Errorf("session.loop_threshold: must be non-negative, got %d", cfg.Session.LoopThreshold)
	}

	for i, d := range cfg.Commands.Dirs {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("commands.dirs[%d]: empty path", i)
		}
	}

	if cfg.Log.Level != "" && !clog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level: invalid value %q, must be one of: debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// ValidateProjectConfig validates a parsed ProjectConfig.
func ValidateProjectConfig(cfg *ProjectConfig) error {
	if err := validateEntries(cfg.Tools.Allow, "tools.allow"); err != nil {
		return err
	}
	return validateEntries(cfg.Tools.Deny, "tools.deny")
}

// validateEntries rejects blank policy entries and entries that contain
// command substitution, which could never match a permitted command.
func validateEntries(entries []string, field string) error {
	for i, e := range entries {
		if shellparse.Normalize(e) == "" {
			return fmt.Errorf("%s[%d]: empty entry", field, i)
		}
		if shellparse.DetectCommandSubstitution(e) {
			return fmt.Errorf("%s[%d]: command substitution not allowed in %q", field, i, e)
		}
	}
	return nil
}

// validateDuration validates that a string is a parseable, positive
// time.Duration.
func validateDuration(s, field string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive, got %q", field, s)
	}
	return nil
}
