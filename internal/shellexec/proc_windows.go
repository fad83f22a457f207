//go:build windows

package shellexec

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var defaultShell = []string{"cmd.exe", "/d", "/s", "/c"}

// configureCmd passes the command line through verbatim. cmd.exe does its
// own parsing and does not understand the escaping os/exec applies.
func configureCmd(cmd *exec.Cmd, shell []string, command string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: strings.Join(shell, " ") + ` "` + command + `"`,
	}
}

// terminate kills the process tree with taskkill. Windows has no process
// groups to signal and no graceful stop, so grace is unused.
func terminate(p *os.Process, _ time.Duration, _ <-chan struct{}) {
	out, err := exec.Command("taskkill", "/pid", strconv.Itoa(p.Pid), "/f", "/t").CombinedOutput()
	if err != nil {
		log.Warn("taskkill %d: %v: %s; killing process only", p.Pid, err, strings.TrimSpace(string(out)))
		_ = p.Kill()
	}
}

func exitStatus(ps *os.ProcessState) (*int, string) {
	if ps == nil {
		return nil, ""
	}
	code := ps.ExitCode()
	return &code, ""
}
