// Package project locates the project a command runs in. The project root
// holds the .bastion directory with project policy and custom commands.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("project")

// MarkerDir is the directory that marks a project root.
const MarkerDir = ".bastion"

// ErrNotGitRepo indicates the path is not within a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrGitNotInstalled indicates git is not installed or not in PATH.
var ErrGitNotInstalled = errors.New("git is not installed or not in PATH")

// GitError represents a failed git command with stderr output.
type GitError struct {
	Command string
	Args    []string
	Stderr  string
	Err     error
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s failed: %v\nstderr: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("git %s failed: %v", e.Command, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// runGit executes a git command in dir and returns its trimmed stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", ErrGitNotInstalled
		}
		stderrStr := stderr.String()
		if strings.Contains(stderrStr, "not a git repository") {
			return "", ErrNotGitRepo
		}
		cmdName := ""
		if len(args) > 0 {
			cmdName = args[0]
		}
		return "", &GitError{Command: cmdName, Args: args, Stderr: stderrStr, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// DetectGitRoot returns the absolute root of the git repository containing
// path.
func DetectGitRoot(ctx context.Context, path string) (string, error) {
	out, err := runGit(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return filepath.Clean(absPath), nil
}

// DetectBranch returns the current branch of the repository at gitRoot, or
// the short commit hash on a detached HEAD.
func DetectBranch(ctx context.Context, gitRoot string) (string, error) {
	out, err := runGit(ctx, gitRoot, "symbolic-ref", "--short", "HEAD")
	if err == nil {
		return out, nil
	}
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return runGit(ctx, gitRoot, "rev-parse", "--short", "HEAD")
	}
	return "", err
}

// remoteURLPattern extracts the repository name from remote URLs such as
// git@github.com:user/repo.git or https://github.com/user/repo.
var remoteURLPattern = regexp.MustCompile(`[/:]([^/:]+?)(?:\.git)?$`)

// extractProjectName returns the repository name in remoteURL, or "".
func extractProjectName(remoteURL string) string {
	matches := remoteURLPattern.FindStringSubmatch(remoteURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// Info describes the project around a working directory.
type Info struct {
	// Root is where .bastion is looked up. See Detect.
	Root string
	// Name is the origin repository name, else the base name of Root.
	Name string
	// GitRoot is the repository root, empty outside git.
	GitRoot string
	// Branch is the current branch or commit, empty outside git.
	Branch string
}

// Detect finds the project containing dir. The nearest ancestor of dir
// (dir included) holding a .bastion directory is the root, as long as it
// is not above the git repository root. Without a marker the git root is
// used, and outside git dir itself.
//
// Git failures are not errors: the project is then described by dir alone.
func Detect(ctx context.Context, dir string) (*Info, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	info := &Info{Root: dir}

	gitRoot, err := DetectGitRoot(ctx, dir)
	switch {
	case err == nil:
		info.GitRoot = gitRoot
		info.Root = gitRoot
		if branch, err := DetectBranch(ctx, gitRoot); err == nil {
			info.Branch = branch
		}
	case errors.Is(err, ErrNotGitRepo), errors.Is(err, ErrGitNotInstalled):
	default:
		log.Debug("git root of %s: %v", dir, err)
	}

	if marked, ok := findMarker(dir, info.GitRoot); ok {
		info.Root = marked
	}

	info.Name = filepath.Base(info.Root)
	if info.GitRoot != "" {
		if remote, err := runGit(ctx, info.GitRoot, "config", "--get", "remote.origin.url"); err == nil {
			if name := extractProjectName(remote); name != "" {
				info.Name = name
			}
		}
	}
	log.Debug("project %q at %s (git root %q, branch %q)", info.Name, info.Root, info.GitRoot, info.Branch)
	return info, nil
}

// findMarker walks up from dir looking for MarkerDir, stopping after stop
// when it is non-empty.
func findMarker(dir, stop string) (string, bool) {
	for {
		if fi, err := os.Stat(filepath.Join(dir, MarkerDir)); err == nil && fi.IsDir() {
			return dir, true
		}
		if dir == stop {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
