// Package shellexec runs shell commands as child processes, streaming their
// output as events while collecting a final Result.
//
// Each command runs in its own process group so that cancellation can
// terminate the whole tree. Output is decoded incrementally, stripped of
// ANSI escape sequences, and switched to byte-count progress events once
// binary content is detected.
package shellexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("shellexec")

// EnvMarker is set to "1" in the environment of every spawned command.
const EnvMarker = "BASTION"

// Default limits.
const (
	DefaultGraceWindow = 200 * time.Millisecond
	DefaultSniffLimit  = 4096
	DefaultSniffChunks = 20
	readBufferSize     = 4096
)

// ErrNilService is returned by Execute on a nil *Service.
var ErrNilService = errors.New("shellexec: nil service")

// Options configures a Service. Zero fields take their defaults.
type Options struct {
	// Shell is the program and leading arguments; the command string is
	// appended as the final argument. Defaults to bash -c on POSIX and
	// cmd.exe /d /s /c on Windows.
	Shell []string
	// GraceWindow is the time between SIGTERM and SIGKILL on abort, and how
	// long output is drained after exit when a descendant keeps the pipes open.
	GraceWindow time.Duration
	// SniffLimit stops binary detection once this many bytes were sniffed.
	SniffLimit int
	// SniffChunks is the number of leading chunks inspected for binary content.
	SniffChunks int
	// Env is appended to the inherited environment.
	Env []string
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Shell:       slices.Clone(defaultShell),
		GraceWindow: DefaultGraceWindow,
		SniffLimit:  DefaultSniffLimit,
		SniffChunks: DefaultSniffChunks,
	}
}

// Service spawns commands. It holds no per-command state and is safe for
// concurrent use.
type Service struct {
	opts Options
}

// NewService creates a Service, filling zero option fields with defaults.
// The zero Service behaves like NewService(Options{}).
func NewService(opts Options) *Service {
	return &Service{opts: opts.withDefaults()}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if len(o.Shell) == 0 {
		o.Shell = def.Shell
	}
	if o.GraceWindow <= 0 {
		o.GraceWindow = def.GraceWindow
	}
	if o.SniffLimit <= 0 {
		o.SniffLimit = def.SniffLimit
	}
	if o.SniffChunks <= 0 {
		o.SniffChunks = def.SniffChunks
	}
	return o
}

// Options returns the effective options.
func (s *Service) Options() Options {
	o := s.opts.withDefaults()
	o.Shell = slices.Clone(o.Shell)
	o.Env = slices.Clone(o.Env)
	return o
}

// Execute starts command through the configured shell in cwd and returns
// once the process has been started. onEvent, if non-nil, receives output
// events from a single goroutine; the last call returns before the Handle
// resolves.
//
// Cancelling ctx before the process exits terminates its process group and
// marks the Result as aborted. A process that cannot be started does not
// produce an error here: the returned Handle is already resolved with
// Result.Err set.
func (s *Service) Execute(ctx context.Context, command, cwd string, onEvent func(OutputEvent)) (*Handle, error) {
	if s == nil {
		return nil, ErrNilService
	}
	opts := s.opts.withDefaults()

	args := append(slices.Clone(opts.Shell[1:]), command)
	cmd := exec.Command(opts.Shell[0], args...)
	cmd.Dir = cwd
	cmd.Env = append(append(os.Environ(), opts.Env...), EnvMarker+"=1")
	configureCmd(cmd, opts.Shell, command)

	h := newHandle()

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		h.resolve(spawnFailure(fmt.Errorf("create stdout pipe: %w", err)))
		return h, nil
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		h.resolve(spawnFailure(fmt.Errorf("create stderr pipe: %w", err)))
		return h, nil
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		log.Debug("spawn %q failed: %v", command, err)
		h.resolve(spawnFailure(fmt.Errorf("start %s: %w", opts.Shell[0], err)))
		return h, nil
	}
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	h.Pid = cmd.Process.Pid
	log.Debug("started pid %d in %q: %s", h.Pid, cwd, command)

	go run(ctx, opts, cmd, h, stdoutR, stderrR, onEvent)
	return h, nil
}

// Collect runs command without a listener and waits for its Result.
func Collect(ctx context.Context, svc *Service, command, cwd string) *Result {
	h, err := svc.Execute(ctx, command, cwd, nil)
	if err != nil {
		return spawnFailure(err)
	}
	return h.Wait()
}

// chunk is one read from a pipe.
type chunk struct {
	stream Stream
	data   []byte
}

func run(ctx context.Context, opts Options, cmd *exec.Cmd, h *Handle, stdoutR, stderrR *os.File, onEvent func(OutputEvent)) {
	state := newOutputState(opts, onEvent)

	chunks := make(chan chunk, 16)
	var readers sync.WaitGroup
	readers.Add(2)
	go readPipe(stdoutR, StreamStdout, chunks, &readers)
	go readPipe(stderrR, StreamStderr, chunks, &readers)

	// All events are delivered from this goroutine, in arrival order.
	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for c := range chunks {
			state.handle(c)
		}
	}()

	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-ctx.Done():
		log.Info("aborting pid %d: %v", h.Pid, context.Cause(ctx))
		terminate(cmd.Process, opts.GraceWindow, exited)
		<-exited
	}

	// A backgrounded descendant may keep the pipes open after the shell
	// exits. Give it the grace window, then stop reading.
	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(opts.GraceWindow):
		log.Debug("pid %d exited with output still open; closing pipes", h.Pid)
	}
	closeAll(stdoutR, stderrR)
	<-drained
	close(chunks)
	<-handled

	res := state.result()
	res.Pid = h.Pid
	res.ExitCode, res.Signal = exitStatus(cmd.ProcessState)
	res.Aborted = ctx.Err() != nil
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			res.Err = waitErr
		}
	}
	log.Debug("pid %d finished: exit=%s signal=%q aborted=%v bytes=%d",
		h.Pid, formatExitCode(res.ExitCode), res.Signal, res.Aborted, len(res.RawOutput))
	h.resolve(res)
}

func readPipe(r *os.File, stream Stream, out chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- chunk{stream: stream, data: bytes.Clone(buf[:n])}
		}
		if err != nil {
			return
		}
	}
}

func spawnFailure(err error) *Result {
	code := 1
	return &Result{ExitCode: &code, Err: err}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func formatExitCode(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprint(*code)
}
