package config

import (
	"strings"
	"testing"
)

func TestValidateGlobalConfig_Empty(t *testing.T) {
	if err := ValidateGlobalConfig(&GlobalConfig{}); err != nil {
		t.Errorf("ValidateGlobalConfig(empty) error = %v", err)
	}
}

func TestValidateGlobalConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  GlobalConfig
		want string
	}{
		{
			name: "blank allow entry",
			cfg:  GlobalConfig{Tools: ToolsConfig{Allow: []string{"git", "  "}}},
			want: "tools.allow[1]: empty entry",
		},
		{
			name: "substitution in deny entry",
			cfg:  GlobalConfig{Tools: ToolsConfig{Deny: []string{"echo $(id)"}}},
			want: "tools.deny[0]: command substitution",
		},
		{
			name: "bad duration",
			cfg:  GlobalConfig{Shell: ShellConfig{GraceWindow: "soon"}},
			want: "shell.grace_window: invalid duration",
		},
		{
			name: "zero duration",
			cfg:  GlobalConfig{Shell: ShellConfig{GraceWindow: "0s"}},
			want: "shell.grace_window: must be positive",
		},
		{
			name: "args without program",
			cfg:  GlobalConfig{Shell: ShellConfig{Args: []string{"-c"}}},
			want: "shell.args: requires shell.program",
		},
		{
			name: "negative sniff limit",
			cfg:  GlobalConfig{Shell: ShellConfig{SniffLimit: -1}},
			want: "shell.sniff_limit",
		},
		{
			name: "negative sniff chunks",
			cfg:  GlobalConfig{Shell: ShellConfig{SniffChunks: -5}},
			want: "shell.sniff_chunks",
		},
		{
			name: "max turns below unlimited",
			cfg:  GlobalConfig{Session: SessionConfig{MaxTurns: -2}},
			want: "session.max_turns",
		},
		{
			name: "negative loop threshold",
			cfg:  GlobalConfig{Session: SessionConfig{LoopThreshold: -1}},
			want: "session.loop_threshold",
		},
		{
			name: "blank command dir",
			cfg:  GlobalConfig{Commands: CommandsConfig{Dirs: []string{""}}},
			want: "commands.dirs[0]",
		},
		{
			name: "bad log level",
			cfg:  GlobalConfig{Log: LogConfig{Level: "verbose"}},
			want: "log.level: invalid value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGlobalConfig(&tt.cfg)
			if err == nil {
				t.Fatal("ValidateGlobalConfig() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestValidateGlobalConfig_ValidValues(t *testing.T) {
	cfg := &GlobalConfig{
		Tools:   ToolsConfig{Allow: []string{"run_shell_command(git push)"}},
		Shell:   ShellConfig{Program: "/bin/sh", Args: []string{"-c"}, GraceWindow: "1m30s"},
		Session: SessionConfig{MaxTurns: -1},
	}
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		cfg.Log.Level = level
		if err := ValidateGlobalConfig(cfg); err != nil {
			t.Errorf("level %q: ValidateGlobalConfig() error = %v", level, err)
		}
	}
}

func TestValidateProjectConfig(t *testing.T) {
	if err := ValidateProjectConfig(&ProjectConfig{Tools: ProjectToolsConfig{Allow: []string{"make"}}}); err != nil {
		t.Errorf("ValidateProjectConfig() error = %v", err)
	}
	err := ValidateProjectConfig(&ProjectConfig{Tools: ProjectToolsConfig{Deny: []string{"`id`"}}})
	if err == nil || !strings.Contains(err.Error(), "tools.deny[0]") {
		t.Errorf("ValidateProjectConfig() error = %v, want tools.deny[0] error", err)
	}
}
