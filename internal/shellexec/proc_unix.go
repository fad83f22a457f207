//go:build !windows

package shellexec

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var defaultShell = []string{"bash", "-c"}

// configureCmd starts the child as the leader of a new process group.
func configureCmd(cmd *exec.Cmd, _ []string, _ string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group, then SIGKILL if the process
// has not exited within grace. If the group cannot be signalled only the
// process itself is killed.
func terminate(p *os.Process, grace time.Duration, exited <-chan struct{}) {
	pid := p.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return
		}
		log.Warn("SIGTERM to process group %d: %v; killing process only", pid, err)
		_ = p.Kill()
		return
	}

	select {
	case <-exited:
		return
	case <-time.After(grace):
	}

	log.Debug("process group %d still running after %s; sending SIGKILL", pid, grace)
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Warn("SIGKILL to process group %d: %v; killing process only", pid, err)
		_ = p.Kill()
	}
}

// exitStatus extracts the exit code, or the signal name when the process
// was killed by a signal.
func exitStatus(ps *os.ProcessState) (*int, string) {
	if ps == nil {
		return nil, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return nil, unix.SignalName(ws.Signal())
	}
	code := ps.ExitCode()
	return &code, ""
}
