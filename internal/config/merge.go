package config

import (
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellparse"
)

// MergeLists combines global and project policy entries.
// Project entries ADD to global (don't replace).
// Entries are deduplicated after whitespace normalization, keeping the
// first spelling seen.
func MergeLists(lists ...[]string) []string {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}

	seen := make(map[string]bool, n)
	result := make([]string, 0, n)
	for _, l := range lists {
		for _, entry := range l {
			key := shellparse.Normalize(entry)
			if !seen[key] {
				seen[key] = true
				result = append(result, entry)
			}
		}
	}
	return result
}

// Policy builds the effective shell policy. Project and decision entries
// extend the global lists; strict and shell_disabled come from the global
// config only. project and decisions may be nil.
func Policy(global *GlobalConfig, project *ProjectConfig, decisions *Decisions) permission.Policy {
	if project == nil {
		project = DefaultProjectConfig()
	}
	if decisions == nil {
		decisions = &Decisions{}
	}
	return permission.Policy{
		Allow:         MergeLists(global.Tools.Allow, project.Tools.Allow, decisions.Allow),
		Deny:          MergeLists(global.Tools.Deny, project.Tools.Deny, decisions.Deny),
		Strict:        global.Tools.Strict,
		ShellDisabled: global.Tools.ShellDisabled,
	}
}

// LoadPolicy loads the global config from globalPath, the project config
// under root and the saved decisions, and returns the merged policy. It is
// the reload function for a permission.PolicyWatcher on globalPath.
func LoadPolicy(globalPath, root string) (permission.Policy, error) {
	global, err := LoadGlobalConfigFrom(globalPath)
	if err != nil {
		return permission.Policy{}, err
	}
	var project *ProjectConfig
	if root != "" {
		if project, err = LoadProjectConfig(root); err != nil {
			return permission.Policy{}, err
		}
	}
	decisions, err := LoadDecisions()
	if err != nil {
		return permission.Policy{}, err
	}
	return Policy(global, project, decisions), nil
}
