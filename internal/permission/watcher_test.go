package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xdg/bastion/internal/clog"
)

// fileLoader returns a LoadFunc treating each non-empty line of path as an
// allow entry. A line "!fail" makes the load fail.
func fileLoader(path string) LoadFunc {
	return func() (Policy, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, err
		}
		var p Policy
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "!fail" {
				return Policy{}, errors.New("bad policy")
			}
			if line != "" {
				p.Allow = append(p.Allow, line)
			}
		}
		return p, nil
	}
}

func TestPolicyWatcher_CurrentIsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy")
	if err := os.WriteFile(path, []byte("git\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewPolicyWatcher(path, fileLoader(path))
	if err != nil {
		t.Fatalf("NewPolicyWatcher() error = %v", err)
	}

	p := w.Current()
	p.Allow[0] = "rm"
	if got := w.Current().Allow[0]; got != "git" {
		t.Errorf("Current() shares storage: Allow[0] = %q after mutation", got)
	}
}

func TestPolicyWatcher_InitialLoadError(t *testing.T) {
	_, err := NewPolicyWatcher("/nonexistent/policy", fileLoader("/nonexistent/policy"))
	if err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

func TestPolicyWatcher_ReloadKeepsPreviousOnError(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	path := filepath.Join(t.TempDir(), "policy")
	if err := os.WriteFile(path, []byte("git\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := NewPolicyWatcher(path, fileLoader(path))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("!fail\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("Reload() expected error")
	}
	if got := w.Current().Allow; len(got) != 1 || got[0] != "git" {
		t.Errorf("policy after failed reload = %v, want [git]", got)
	}
}

func TestPolicyWatcher_ReloadsOnChange(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	path := filepath.Join(t.TempDir(), "policy")
	if err := os.WriteFile(path, []byte("git\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan Policy, 16)
	w, err := NewPolicyWatcher(path, fileLoader(path),
		WithDebounce(20*time.Millisecond),
		WithReloadHook(func(p Policy) {
			select {
			case reloaded <- p:
			default:
			}
		}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	for _, content := range []string{"git\nls\n", "git\nls\nmake\n"} {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	// Writes may be observed mid-way; wait for the final content.
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case p := <-reloaded:
			done = len(p.Allow) == 3
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}

	if got := w.Current().Allow; len(got) != 3 {
		t.Errorf("Current().Allow = %v, want 3 entries", got)
	}
}

func TestPolicyWatcher_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy")
	if err := os.WriteFile(path, []byte("git\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := NewPolicyWatcher(path, fileLoader(path))
	if err != nil {
		t.Fatal(err)
	}

	w.Stop() // not started
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
}
