package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xdg/bastion/internal/shellexec"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(i int) *int { return &i }

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, cmd := range []string{"git status", "go test ./...", "ls"} {
		e := Entry{
			SessionID: "s1",
			Source:    SourceTool,
			Command:   cmd,
			Cwd:       "/work",
			ExitCode:  intPtr(i),
			StartedAt: started.Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
		}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record %q: %v", cmd, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Command != "ls" || got[1].Command != "go test ./..." {
		t.Errorf("order = %q, %q; want newest first", got[0].Command, got[1].Command)
	}
	if got[0].ExitCode == nil || *got[0].ExitCode != 2 {
		t.Errorf("exit code = %v, want 2", got[0].ExitCode)
	}
	if got[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %s, want 1.5s", got[0].Duration)
	}
	if !got[0].StartedAt.Equal(started.Add(2 * time.Minute)) {
		t.Errorf("started = %s", got[0].StartedAt)
	}
}

func TestRecordSignalledAndSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := SessionRecorder{Recorder: s, SessionID: "abc"}
	if err := rec.Record(ctx, Entry{Source: SourceTemplate, Command: "sleep 9", Signal: "SIGTERM", Aborted: true, StartedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, Entry{SessionID: "other", Source: SourceExec, Command: "true", StartedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Session(ctx, "abc")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	e := got[0]
	if e.ExitCode != nil || e.Signal != "SIGTERM" || !e.Aborted || e.Source != SourceTemplate {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestSessionRecorderNil(t *testing.T) {
	if err := (SessionRecorder{}).Record(context.Background(), Entry{}); err != nil {
		t.Errorf("nil recorder: %v", err)
	}
}

func TestFromResult(t *testing.T) {
	started := time.Now().Add(-time.Second)
	res := &shellexec.Result{
		ExitCode:  intPtr(1),
		RawOutput: []byte("12345"),
		Err:       errors.New("boom"),
	}
	e := FromResult(SourceExec, "make", "/src", started, res)

	if e.Source != SourceExec || e.Command != "make" || e.Cwd != "/src" {
		t.Errorf("unexpected identity fields %+v", e)
	}
	if e.OutputBytes != 5 || e.Error != "boom" || *e.ExitCode != 1 {
		t.Errorf("unexpected result fields %+v", e)
	}
	if e.Duration < time.Second {
		t.Errorf("duration = %s, want >= 1s", e.Duration)
	}
}

func TestOpenFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Record(context.Background(), Entry{Source: SourceExec, Command: "pwd", StartedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Command != "pwd" {
		t.Errorf("after reopen got %+v", got)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	if got, want := DefaultPath(), filepath.Join("/state", "bastion", "history.db"); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}
