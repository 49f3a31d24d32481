// Package runner executes external commands and reduces every way they can
// fail to a single Result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/tridyme/tridyme-cli/internal/logging"
)

// FailureReason classifies why a command did not succeed.
type FailureReason int

const (
	// ReasonNone means the command exited with status 0.
	ReasonNone FailureReason = iota
	// ReasonNotFound means the binary could not be located.
	ReasonNotFound
	// ReasonExitStatus means the process ran and exited non-zero.
	ReasonExitStatus
	// ReasonSpawn means the process could not be started or waited on.
	ReasonSpawn
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonNotFound:
		return "not found"
	case ReasonExitStatus:
		return "exit status"
	case ReasonSpawn:
		return "spawn failed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Command describes one external process invocation.
type Command struct {
	// Name is the binary to run.
	Name string
	// Args are passed as literal tokens, never through a shell, unless Shell is set.
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Shell runs Name and Args joined by spaces through the platform shell.
	// Only intended for launching helper terminals; configuration values must
	// never reach a command with Shell set.
	Shell bool
	// Quiet sends the child's output to the debug log instead of the console.
	Quiet bool
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of running a Command.
type Result struct {
	Command  Command
	Reason   FailureReason
	ExitCode int
	Err      error
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool { return r.Reason == ReasonNone }

// Error converts a failed Result into an *Error, or nil on success.
func (r Result) Error() error {
	if r.OK() {
		return nil
	}
	return &Error{Result: r}
}

// Error is the error form of a failed Result.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	r := e.Result
	switch r.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("%s: executable not found in PATH", r.Command.Name)
	case ReasonExitStatus:
		return fmt.Sprintf("%q exited with status %d", r.Command.String(), r.ExitCode)
	default:
		return fmt.Sprintf("%q could not be run: %v", r.Command.String(), r.Err)
	}
}

func (e *Error) Unwrap() error { return e.Result.Err }

// Runner runs external commands. Implementations never panic and never return
// an error out of band: everything is in the Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// Exec runs commands as child processes of the current one.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	lookPath func(string) (string, error)
}

// NewExec returns an Exec wired to the process console.
func NewExec(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exec{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Run executes cmd and blocks until it exits.
func (e *Exec) Run(ctx context.Context, cmd Command) Result {
	res := Result{Command: cmd}
	name, args := cmd.Name, cmd.Args
	if cmd.Shell {
		name, args = shellInvocation(cmd)
	}

	lookPath := e.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(name)
	if err != nil {
		res.Reason = ReasonNotFound
		res.ExitCode = -1
		res.Err = err
		e.log(res)
		return res
	}

	c := exec.CommandContext(ctx, path, args...)
	c.Dir = cmd.Dir

	var quiet *logging.Writer
	if cmd.Quiet {
		quiet = logging.NewWriter(e.Logger, cmd.Name)
		c.Stdout, c.Stderr = quiet, quiet
	} else {
		c.Stdout, c.Stderr = e.Stdout, e.Stderr
	}

	e.Logger.Debug("running command", "cmd", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)
	err = c.Run()
	if quiet != nil {
		quiet.Flush()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Reason = ReasonNone
	case errors.As(err, &exitErr):
		res.Reason = ReasonExitStatus
		res.ExitCode = exitErr.ExitCode()
		res.Err = err
	default:
		res.Reason = ReasonSpawn
		res.ExitCode = -1
		res.Err = err
	}
	e.log(res)
	if quiet != nil && !res.OK() {
		if tail := quiet.Tail(); len(tail) > 0 {
			e.Logger.Warn("output of failed command", "cmd", cmd.Name, "output", strings.Join(tail, "\n"))
		}
	}
	return res
}

func (e *Exec) log(res Result) {
	if res.OK() {
		return
	}
	e.Logger.Debug("command failed", "cmd", res.Command.Name, "reason", res.Reason.String(), "exit_code", res.ExitCode, "error", res.Err)
}

func shellInvocation(cmd Command) (string, []string) {
	line := cmd.String()
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", line}
	}
	return "sh", []string{"-c", line}
}
