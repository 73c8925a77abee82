package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Op tells how an invocation failed.
type Op int

const (
	NonZeroExit Op = iota + 1
	LaunchFailed
)

// Error reports a failed compiler invocation.
type Error struct {
	Op     Op
	Driver string
	Code   int   // exit code, NonZeroExit only
	Err    error // underlying cause
}

func (e *Error) Error() string {
	if e.Op == NonZeroExit {
		return fmt.Sprintf("%s exited with code %d", e.Driver, e.Code)
	}
	return fmt.Sprintf("failed to launch %s: %v", e.Driver, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Runner executes one rendered invocation.
type Runner interface {
	// Run runs the driver of id with argv in the working directory dir.
	Run(ctx context.Context, dir string, argv []string, id Identity) error
}

// Invoker runs the compiler driver as a child process and waits for it.
type Invoker struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
}

var _ Runner = (*Invoker)(nil)

// NewInvoker creates an Invoker writing to the standard streams.
func NewInvoker(cfg Config) *Invoker {
	return &Invoker{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    cfg.Env,
	}
}

// Run launches id.Path with argv in dir. A non-zero exit maps to NonZeroExit with
// the exit code, any failure to start the process to LaunchFailed. When Run
// fails the artifact may be missing or partial.
func (inv *Invoker) Run(ctx context.Context, dir string, argv []string, id Identity) error {
	cmd := exec.CommandContext(ctx, id.Path, argv...)
	cmd.Dir = dir
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	if len(inv.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), inv.Env)
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Error{Op: NonZeroExit, Driver: id.Path, Code: exitErr.ExitCode(), Err: err}
		}
		return &Error{Op: LaunchFailed, Driver: id.Path, Err: err}
	}
	return nil
}

// Printer is a Runner that writes each invocation as a command line instead
// of running it.
type Printer struct {
	W io.Writer
}

var _ Runner = (*Printer)(nil)

func (p *Printer) Run(ctx context.Context, dir string, argv []string, id Identity) error {
	line := CommandLine(id, argv)
	if dir != "" {
		line = "cd " + quote(dir) + " && " + line
	}
	_, err := fmt.Fprintln(p.W, line)
	return err
}

// CommandLine formats an invocation for display, quoting arguments that
// contain spaces.
func CommandLine(id Identity, argv []string) string {
	parts := make([]string, 0, len(argv)+1)
	for _, a := range append([]string{id.Path}, argv...) {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(a string) string {
	if strings.ContainsAny(a, " \t") {
		return `"` + a + `"`
	}
	return a
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
