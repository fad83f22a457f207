package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/xdg/bastion/internal/shellparse"
)

// Decisions holds policy entries saved with "bastion policy allow|deny".
// They are merged into every session's policy alongside the config file.
type Decisions struct {
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

// DecisionsPath returns the full path to the saved decisions file.
func DecisionsPath() string {
	return Dir() + "decisions.yaml"
}

// Add appends entry to the allow or deny list, removing it from the other.
// It reports whether the decisions changed.
func (d *Decisions) Add(entry string, allow bool) bool {
	entry = shellparse.Normalize(entry)
	if entry == "" {
		return false
	}
	target, other := &d.Allow, &d.Deny
	if !allow {
		target, other = &d.Deny, &d.Allow
	}
	removed := removeEntry(other, entry)
	if slices.Contains(*target, entry) {
		return removed
	}
	*target = append(*target, entry)
	return true
}

// Remove deletes entry from both lists and reports whether it was present.
func (d *Decisions) Remove(entry string) bool {
	entry = shellparse.Normalize(entry)
	a := removeEntry(&d.Allow, entry)
	b := removeEntry(&d.Deny, entry)
	return a || b
}

func removeEntry(list *[]string, entry string) bool {
	n := len(*list)
	*list = slices.DeleteFunc(*list, func(s string) bool { return shellparse.Normalize(s) == entry })
	return len(*list) != n
}

// LoadDecisions loads the saved decisions from DecisionsPath().
// If the file doesn't exist, it returns an empty Decisions (not an error).
// If the file exists but has invalid YAML, it returns an error.
func LoadDecisions() (*Decisions, error) {
	return loadDecisions(DecisionsPath())
}

func loadDecisions(path string) (*Decisions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Decisions{}, nil
		}
		return nil, fmt.Errorf("read decisions %q: %w", path, err)
	}

	var decisions Decisions
	if err := strictUnmarshal(data, &decisions); err != nil {
		return nil, fmt.Errorf("parse decisions %q: %w", path, err)
	}
	if err := validateEntries(decisions.Allow, "allow"); err != nil {
		return nil, fmt.Errorf("decisions %q: %w", path, err)
	}
	if err := validateEntries(decisions.Deny, "deny"); err != nil {
		return nil, fmt.Errorf("decisions %q: %w", path, err)
	}
	return &decisions, nil
}

// WriteDecisions writes decisions atomically to DecisionsPath().
// The config directory is created with 0700 permissions if it doesn't exist.
func WriteDecisions(decisions *Decisions) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	return writeDecisionsAtomic(DecisionsPath(), decisions)
}

func writeDecisionsAtomic(path string, decisions *Decisions) error {
	data, err := yaml.Marshal(decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}

	// Write to a temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".decisions-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
