package local

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"

	"mvdan.cc/sh/v3/shell"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
)

//go:generate mockgen -destination=./mocks/builder.go -package=mocks . Builder

// DefaultBuildCommand builds a Go plugin into the output folder.
const DefaultBuildCommand = "go build -buildmode=plugin -o $OUTPUT_DIR/$ASSEMBLY_NAME.so ."

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	// OutputDir holds the built module and everything it ships with.
	OutputDir string
	// Output is the combined stdout and stderr of the build.
	Output string
}

// Builder compiles one project.
type Builder interface {
	Build(ctx context.Context, project *Project) (*BuildResult, error)
}

// Toolchain prepares the build environment the first time a build needs it.
type Toolchain struct {
	extra   map[string]string
	environ func() []string
	paths   sync.Map
}

// NewToolchain creates a Toolchain adding extra to the process environment.
func NewToolchain(extra map[string]string) *Toolchain {
	t := &Toolchain{extra: extra}
	t.environ = sync.OnceValue(func() []string {
		env := os.Environ()
		for k, v := range t.extra {
			env = append(env, k+"="+v)
		}
		logger.Debug("Build toolchain initialized", logger.Fields{"variables": len(env)})
		return env
	})
	return t
}

// Environ returns the build environment.
func (t *Toolchain) Environ() []string {
	return t.environ()
}

// Getenv looks name up in the build environment.
func (t *Toolchain) Getenv(name string) string {
	if v, ok := t.extra[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// LookPath resolves a build tool once and remembers the answer.
func (t *Toolchain) LookPath(name string) (string, error) {
	if p, ok := t.paths.Load(name); ok {
		return p.(string), nil
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(errors.ErrBuildToolNotFound, "%s", name)
	}
	t.paths.Store(name, p)
	return p, nil
}

// CommandBuilder runs a shell-style build command in the project folder.
type CommandBuilder struct {
	command   string
	toolchain *Toolchain
}

// NewCommandBuilder creates a CommandBuilder. An empty command selects
// DefaultBuildCommand; projects may override it.
func NewCommandBuilder(command string, toolchain *Toolchain) *CommandBuilder {
	if command == "" {
		command = DefaultBuildCommand
	}
	if toolchain == nil {
		toolchain = NewToolchain(nil)
	}
	return &CommandBuilder{command: command, toolchain: toolchain}
}

// syncBuffer serializes writes from the stdout and stderr copiers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Build expands the command, runs it with the project folder as working
// directory and captures both output streams into one buffer.
func (b *CommandBuilder) Build(ctx context.Context, project *Project) (*BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vars := buildVars(project)
	command := b.command
	if project.Build.Command != "" {
		command = project.Build.Command
	}
	fields, err := shell.Fields(command, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return b.toolchain.Getenv(name)
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProjectParse, "build command %q: %v", command, err)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(errors.ErrProjectParse, "empty build command for %s", project.File)
	}

	tool, err := b.toolchain.LookPath(fields[0])
	if err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(project.OutputDir()); err != nil {
		return nil, err
	}

	var out syncBuffer
	cmd := exec.CommandContext(ctx, tool, fields[1:]...)
	cmd.Dir = project.Dir
	cmd.Env = b.toolchain.Environ()
	for k, v := range vars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Info("Building local extension", logger.Fields{"project": project.File, "command": command})
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.ErrBuildFailedWithOutput(project.File, exitErr.ExitCode(), out.String())
		}
		return nil, errors.Wrapf(errors.ErrBuildFailed, "%s: %v\n%s", project.File, err, out.String())
	}
	logger.Debug("Build finished", logger.Fields{"project": project.File, "output": project.OutputDir()})

	return &BuildResult{OutputDir: project.OutputDir(), Output: out.String()}, nil
}

func buildVars(p *Project) map[string]string {
	return map[string]string{
		"PROJECT_DIR":     p.Dir,
		"PROJECT_FILE":    p.File,
		"OUTPUT_DIR":      p.OutputDir(),
		"ASSEMBLY_NAME":   p.Assembly(),
		"PACKAGE_ID":      p.PackageID(),
		"PACKAGE_VERSION": p.PackageVersion(),
	}
}
