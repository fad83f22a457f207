package config

import (
	"fmt"
	"time"

	"github.com/xdg/bastion/internal/shellexec"
)

// ShellOptions converts the shell section into execution options. Zero
// values are left for shellexec to default.
func ShellOptions(cfg ShellConfig) (shellexec.Options, error) {
	var opts shellexec.Options
	if cfg.Program != "" {
		opts.Shell = append([]string{cfg.Program}, cfg.Args...)
	}
	if cfg.GraceWindow != "" {
		d, err := time.ParseDuration(cfg.GraceWindow)
		if err != nil {
			return shellexec.Options{}, fmt.Errorf("shell.grace_window: %w", err)
		}
		opts.GraceWindow = d
	}
	opts.SniffLimit = cfg.SniffLimit
	opts.SniffChunks = cfg.SniffChunks
	return opts, nil
}
