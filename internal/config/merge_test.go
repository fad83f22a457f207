package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xdg/bastion/internal/permission"
)

func TestMergeLists(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{"empty", nil, nil},
		{"all empty", [][]string{nil, {}}, nil},
		{"global only", [][]string{{"git", "ls"}}, []string{"git", "ls"}},
		{"project adds", [][]string{{"git"}, {"make"}}, []string{"git", "make"}},
		{"dedup keeps first", [][]string{{"git  status"}, {"git status", "ls"}}, []string{"git  status", "ls"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, MergeLists(tt.lists...)); diff != "" {
				t.Errorf("MergeLists() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	global := &GlobalConfig{Tools: ToolsConfig{
		Allow:  []string{"git"},
		Deny:   []string{"rm"},
		Strict: true,
	}}
	project := &ProjectConfig{Tools: ProjectToolsConfig{Allow: []string{"make", "git"}, Deny: []string{"curl"}}}
	decisions := &Decisions{Allow: []string{"ls"}}

	got := Policy(global, project, decisions)
	want := permission.Policy{
		Allow:  []string{"git", "make", "ls"},
		Deny:   []string{"rm", "curl"},
		Strict: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Policy() mismatch (-want +got):\n%s", diff)
	}

	if got := Policy(global, nil, nil); !cmp.Equal(got.Allow, []string{"git"}) {
		t.Errorf("Policy() with nil project = %+v", got)
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	writeFile(t, GlobalConfigPath(), "tools:\n  allow: [git]\n  shell_disabled: true\n")
	writeFile(t, ProjectConfigPath(root), "tools:\n  allow: [make]\n")
	if err := WriteDecisions(&Decisions{Deny: []string{"curl"}}); err != nil {
		t.Fatalf("WriteDecisions() error = %v", err)
	}

	got, err := LoadPolicy(GlobalConfigPath(), root)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	want := permission.Policy{
		Allow:         []string{"git", "make"},
		Deny:          []string{"curl"},
		ShellDisabled: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadPolicy() mismatch (-want +got):\n%s", diff)
	}

	writeFile(t, ProjectConfigPath(root), "tools: {allow: [\"$(id)\"]}\n")
	if _, err := LoadPolicy(GlobalConfigPath(), root); err == nil {
		t.Error("LoadPolicy() expected error for invalid project config")
	}
}
