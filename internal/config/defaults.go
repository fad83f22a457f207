package config

// boolPtr returns a pointer to a bool value.
func boolPtr(b bool) *bool {
	return &b
}

// DefaultGlobalConfig returns a GlobalConfig with all defaults populated.
//
// The tool policy starts empty: model requested commands run unless denied,
// and commands embedded in custom command templates always need
// confirmation. The deny list carries commands that are destructive enough
// that no prompt should be able to run them.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Tools: ToolsConfig{
			Deny: []string{
				"rm -rf /",
				"mkfs",
				"dd",
				"shutdown",
				"reboot",
			},
		},
		Shell: ShellConfig{
			GraceWindow: "200ms",
			SniffLimit:  4096,
			SniffChunks: 20,
		},
		Model: ModelConfig{
			Name:            "gemini-2.5-flash",
			APIKeyEnv:       "GEMINI_API_KEY",
			IncludeThoughts: true,
		},
		Session: SessionConfig{
			MaxTurns:      100,
			LoopThreshold: 5,
		},
		History: HistoryConfig{
			Enabled: boolPtr(true),
		},
		Log: LogConfig{
			File:  "~/.local/state/bastion/bastion.log",
			Level: "info",
		},
		Audit: AuditConfig{
			File: "~/.local/state/bastion/audit.log",
		},
	}
}

// DefaultProjectConfig returns an empty ProjectConfig. A project without a
// .bastion/config.yaml contributes nothing to the policy.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{}
}

// defaultConfigTemplate is written by WriteDefaultConfig. It must parse to
// the same values as DefaultGlobalConfig.
const defaultConfigTemplate = `# bastion global configuration
#
# Changes to the tools section are picked up by running sessions.

tools:
  # Commands the model may run without asking. When non-empty, anything
  # else needs confirmation. Entries are command prefixes matched on word
  # boundaries, e.g. "git" or "run_shell_command(npm test)".
  # allow:
  #   - git status
  #   - ls
  # Commands that never run, even after confirmation.
  deny:
    - rm -rf /
    - mkfs
    - dd
    - shutdown
    - reboot
  # Require confirmation for every model requested command that is not in
  # the allow list.
  # strict: true
  # Refuse every shell command.
  # shell_disabled: true

shell:
  # program: /bin/zsh
  # args: ["-c"]
  grace_window: 200ms
  sniff_limit: 4096
  sniff_chunks: 20

model:
  name: gemini-2.5-flash
  api_key_env: GEMINI_API_KEY
  include_thoughts: true

session:
  # -1 removes the turn limit.
  max_turns: 100
  loop_threshold: 5

commands:
  # Extra directories of .toml custom commands.
  # dirs:
  #   - ~/src/team-commands

history:
  enabled: true
  # path: ~/.local/state/bastion/history.db

diagnostics:
  # Error reports are written to the system temp directory by default.
  # dir: ~/.local/state/bastion/reports

log:
  file: ~/.local/state/bastion/bastion.log
  level: info

audit:
  file: ~/.local/state/bastion/audit.log
`
