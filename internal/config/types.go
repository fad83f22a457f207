// Package config provides configuration types for bastion global and
// per-project settings. These types map to YAML configuration files.
package config

// GlobalConfig represents the top-level global configuration for bastion.
// It is typically stored at ~/.config/bastion/config.yaml.
type GlobalConfig struct {
	Tools       ToolsConfig       `yaml:"tools,omitempty"`
	Shell       ShellConfig       `yaml:"shell,omitempty"`
	Model       ModelConfig       `yaml:"model,omitempty"`
	Session     SessionConfig     `yaml:"session,omitempty"`
	Commands    CommandsConfig    `yaml:"commands,omitempty"`
	History     HistoryConfig     `yaml:"history,omitempty"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics,omitempty"`
	Log         LogConfig         `yaml:"log,omitempty"`
	Audit       AuditConfig       `yaml:"audit,omitempty"`
}

// ToolsConfig is the shell command policy. Allow and Deny entries are
// command prefixes such as "git" or "run_shell_command(git push)".
type ToolsConfig struct {
	Allow         []string `yaml:"allow,omitempty"`
	Deny          []string `yaml:"deny,omitempty"`
	Strict        bool     `yaml:"strict,omitempty"`
	ShellDisabled bool     `yaml:"shell_disabled,omitempty"`
}

// ShellConfig controls how commands are spawned.
type ShellConfig struct {
	// Program replaces the platform shell (bash or cmd.exe). Args are placed
	// between the program and the command string.
	Program     string   `yaml:"program,omitempty"`
	Args        []string `yaml:"args,omitempty"`
	GraceWindow string   `yaml:"grace_window,omitempty"`
	SniffLimit  int      `yaml:"sniff_limit,omitempty"`
	SniffChunks int      `yaml:"sniff_chunks,omitempty"`
}

// ModelConfig selects the Gemini model and its credentials.
type ModelConfig struct {
	Name            string `yaml:"name,omitempty"`
	APIKeyEnv       string `yaml:"api_key_env,omitempty"`
	IncludeThoughts bool   `yaml:"include_thoughts,omitempty"`
}

// SessionConfig bounds the agent loop. MaxTurns of -1 removes the limit.
type SessionConfig struct {
	MaxTurns      int `yaml:"max_turns,omitempty"`
	LoopThreshold int `yaml:"loop_threshold,omitempty"`
}

// CommandsConfig lists extra custom command directories. They are searched
// after the user directory and before the project directory.
type CommandsConfig struct {
	Dirs []string `yaml:"dirs,omitempty"`
}

// HistoryConfig controls the execution history database.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// IsEnabled reports whether history is recorded. Unset means enabled.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// DiagnosticsConfig controls where error reports are written.
type DiagnosticsConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// AuditConfig contains the shell audit log settings. An empty File disables
// the audit log.
type AuditConfig struct {
	File string `yaml:"file,omitempty"`
}

// ProjectConfig represents per-project configuration.
// It is stored at <project>/.bastion/config.yaml and its tool entries are
// added to the global ones.
type ProjectConfig struct {
	Tools ProjectToolsConfig `yaml:"tools,omitempty"`
}

// ProjectToolsConfig contains project-specific policy entries.
type ProjectToolsConfig struct {
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}
