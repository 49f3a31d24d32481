// Package runnertest provides a recording runner.Runner for tests.
package runnertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tridyme/tridyme-cli/internal/runner"
)

// Recorder records every command it is asked to run and returns scripted results.
type Recorder struct {
	mu       sync.Mutex
	commands []runner.Command

	// FailAt makes the Nth call (1-based) fail with FailReason. Zero disables.
	FailAt     int
	FailReason runner.FailureReason
	// FailOn fails every command whose rendered string has this prefix.
	FailOn string
	// OnRun, when set, is invoked for each command before the result is decided.
	OnRun func(cmd runner.Command)
}

// Run records cmd and returns a successful Result unless a failure is scripted.
func (r *Recorder) Run(_ context.Context, cmd runner.Command) runner.Result {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	n := len(r.commands)
	hook := r.OnRun
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}

	res := runner.Result{Command: cmd}
	if (r.FailAt > 0 && n == r.FailAt) || (r.FailOn != "" && strings.HasPrefix(cmd.String(), r.FailOn)) {
		reason := r.FailReason
		if reason == runner.ReasonNone {
			reason = runner.ReasonExitStatus
		}
		res.Reason = reason
		res.ExitCode = 1
		if reason != runner.ReasonExitStatus {
			res.ExitCode = -1
		}
		res.Err = errors.New("scripted failure")
	}
	return res
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runner.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Lines returns the recorded commands rendered as "name arg1 arg2".
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.String())
	}
	return out
}
