package shellexec

import "sync"

// Result is the outcome of one command. It is created once when the
// command finishes and never modified afterwards.
type Result struct {
	// ExitCode is nil when the process was terminated by a signal.
	ExitCode *int
	// Signal names the terminating signal, e.g. "SIGTERM".
	Signal string
	// Stdout and Stderr are the decoded, ANSI-stripped streams.
	Stdout string
	Stderr string
	// Output is Stdout followed by a newline and Stderr when Stderr is non-empty.
	Output string
	// RawOutput holds every byte read from both pipes in arrival order.
	RawOutput []byte
	// Aborted is true when the context was cancelled.
	Aborted bool
	// Err is set when the process could not be started or waited on.
	// A non-zero exit is not an error.
	Err error
	Pid int
}

// Succeeded reports whether the command exited normally with status 0.
func (r *Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode != nil && *r.ExitCode == 0
}

// Handle tracks a started command.
type Handle struct {
	// Pid is the process id, or 0 if the process was never started.
	Pid int

	once   sync.Once
	done   chan struct{}
	result *Result
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Completed returns a Handle already resolved with res. It lets Executor
// implementations that do not spawn processes, such as test fakes, return
// results through the same type.
func Completed(res *Result) *Handle {
	h := newHandle()
	h.Pid = res.Pid
	h.resolve(res)
	return h
}

// resolve publishes r. Only the first call has any effect.
func (h *Handle) resolve(r *Result) {
	h.once.Do(func() {
		h.result = r
		close(h.done)
	})
}

// Done returns a channel closed when the Result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the command has finished and returns its Result.
func (h *Handle) Wait() *Result {
	<-h.done
	return h.result
}

// Result returns the Result if the command has finished.
func (h *Handle) Result() (*Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return nil, false
	}
}
