// Package commands loads custom commands: prompt templates stored as .toml
// files that users invoke by name, optionally with arguments.
//
// A file at <dir>/git/commit.toml defines the command "git:commit":
//
//	description = "Write a commit message"
//	prompt = """
//	Write a commit message for this diff:
//	!{git diff --staged}
//	"""
package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/processor"
)

var log = clog.For("commands")

// Ext is the file extension of command files.
const Ext = ".toml"

// ErrNotFound is returned by Find for unknown commands.
var ErrNotFound = errors.New("command not found")

// Command is a loaded custom command.
type Command struct {
	Name        string
	Description string
	Prompt      string
	// Path is the file the command was loaded from.
	Path string
}

// definition is the on-disk format.
type definition struct {
	Prompt      *string `toml:"prompt"`
	Description string  `toml:"description"`
}

// Pipeline returns the processors that expand the command's prompt.
// Arguments are never executed. When the prompt has shell injections, the
// shell processor inserts {{args}} into the template text itself so that
// command output containing {{args}} is left alone.
func (c *Command) Pipeline() processor.Pipeline {
	shell := strings.Contains(c.Prompt, processor.ShellInjectionTrigger)
	shorthand := strings.Contains(c.Prompt, processor.ShorthandArgsInjection)

	var p processor.Pipeline
	if shell {
		p = append(p, &processor.ShellProcessor{CommandName: c.Name, ExpandArgs: shorthand})
	}
	switch {
	case shorthand && !shell:
		p = append(p, processor.ShorthandArgumentProcessor{})
	case !shorthand:
		p = append(p, processor.DefaultArgumentProcessor{})
	}
	return p
}

// Expand runs the command's pipeline over its prompt.
func (c *Command) Expand(ctx context.Context, pc *processor.Context) (string, error) {
	return c.Pipeline().Process(ctx, c.Prompt, pc)
}

// Loader reads commands from directories. Later directories take
// precedence: with Dirs = [user, project], a project command replaces a
// user command of the same name.
type Loader struct {
	Dirs []string
}

// NewLoader creates a Loader over dirs, lowest precedence first.
func NewLoader(dirs ...string) *Loader {
	return &Loader{Dirs: dirs}
}

// Load returns every valid command, sorted by name. Missing directories
// are skipped; invalid files are logged and skipped.
func (l *Loader) Load() ([]*Command, error) {
	byName := make(map[string]*Command)
	for _, dir := range l.Dirs {
		if err := loadDir(dir, byName); err != nil {
			return nil, err
		}
	}

	cmds := make([]*Command, 0, len(byName))
	for _, c := range byName {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds, nil
}

// Find loads the commands and returns the named one.
func (l *Loader) Find(name string) (*Command, error) {
	cmds, err := l.Load()
	if err != nil {
		return nil, err
	}
	name = strings.TrimPrefix(name, "/")
	for _, c := range cmds {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func loadDir(dir string, into map[string]*Command) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != Ext {
			return nil
		}
		cmd, err := ParseFile(dir, path)
		if err != nil {
			log.Warn("skipping invalid command file: %v", err)
			return nil
		}
		if prev, ok := into[cmd.Name]; ok {
			log.Debug("command %s from %s overrides %s", cmd.Name, cmd.Path, prev.Path)
		}
		into[cmd.Name] = cmd
		return nil
	})
}

// ParseFile reads the command file at path. The command name is derived
// from path relative to baseDir.
func ParseFile(baseDir, path string) (*Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(NameFromPath(baseDir, path), path, data)
}

// Parse decodes a command definition.
func Parse(name, path string, data []byte) (*Command, error) {
	var def definition
	if err := toml.Unmarshal(data, &def); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("parse %s:%d:%d: %s", path, row, col, derr.Error())
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if def.Prompt == nil {
		return nil, fmt.Errorf("%s: missing required field \"prompt\"", path)
	}
	desc := def.Description
	if desc == "" {
		desc = "Custom command from " + filepath.Base(path)
	}
	return &Command{Name: name, Description: desc, Prompt: *def.Prompt, Path: path}, nil
}

// NameFromPath derives a command name from its file path: the path
// relative to baseDir without the extension, with separators replaced
// by ":".
func NameFromPath(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, Ext)
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", ":")
}

// ParseInvocation splits raw input such as "/git:commit fix tests" into
// the command name and its arguments.
func ParseInvocation(raw string) processor.Invocation {
	trimmed := strings.TrimSpace(raw)
	name, args, _ := strings.Cut(strings.TrimPrefix(trimmed, "/"), " ")
	return processor.Invocation{
		Raw:  trimmed,
		Name: name,
		Args: strings.TrimSpace(args),
	}
}
