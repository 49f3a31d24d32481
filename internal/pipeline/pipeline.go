// Package pipeline runs an ordered list of steps, stopping at the first
// failure, followed by cleanup steps that always run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Step is one named unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepOutcome records how a step ended.
type StepOutcome struct {
	Name      string
	Succeeded bool
	// Detail is the failure message, empty on success.
	Detail  string
	Cleanup bool
	Err     error
}

// Result is the outcome of a pipeline run.
type Result struct {
	Pipeline   string
	Steps      []StepOutcome
	Completed  bool
	FailedStep string
}

// Failed reports whether a regular step failed.
func (r Result) Failed() bool { return !r.Completed }

// Err returns a *StepError for the failing regular step, or nil.
func (r Result) Err() error {
	if r.Completed {
		return nil
	}
	for _, s := range r.Steps {
		if s.Name == r.FailedStep && !s.Cleanup {
			return &StepError{Pipeline: r.Pipeline, Step: s.Name, Err: s.Err}
		}
	}
	return &StepError{Pipeline: r.Pipeline, Step: r.FailedStep}
}

// CleanupErrors returns the errors of failed cleanup steps.
func (r Result) CleanupErrors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Cleanup && !s.Succeeded {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errs
}

// StepError names the step that aborted a pipeline.
type StepError struct {
	Pipeline string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: step %s failed", e.Pipeline, e.Step)
	}
	return fmt.Sprintf("%s: step %s failed: %v", e.Pipeline, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Reporter is notified as steps progress.
type Reporter interface {
	StepStarted(name string)
	StepFinished(outcome StepOutcome)
	Finished(result Result)
}

// Pipeline is a linear state machine over steps.
type Pipeline struct {
	name     string
	steps    []Step
	cleanup  []Step
	reporter Reporter
}

// New returns an empty pipeline. reporter may be nil.
func New(name string, reporter Reporter) *Pipeline {
	return &Pipeline{name: name, reporter: reporter}
}

// Then appends regular steps.
func (p *Pipeline) Then(steps ...Step) *Pipeline {
	p.steps = append(p.steps, steps...)
	return p
}

// Finally appends steps that run after the regular steps whatever their outcome.
func (p *Pipeline) Finally(steps ...Step) *Pipeline {
	p.cleanup = append(p.cleanup, steps...)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Run executes the regular steps in order until one fails, then every
// cleanup step. A cancelled context fails the next regular step; cleanup
// steps still run.
func (p *Pipeline) Run(ctx context.Context) Result {
	res := Result{Pipeline: p.name, Completed: true}

	for _, step := range p.steps {
		var outcome StepOutcome
		if err := ctx.Err(); err != nil {
			outcome = StepOutcome{Name: step.Name, Err: err, Detail: err.Error()}
			p.started(step.Name)
		} else {
			outcome = p.runStep(ctx, step, false)
		}
		res.Steps = append(res.Steps, outcome)
		p.finished(outcome)
		if !outcome.Succeeded {
			res.Completed = false
			res.FailedStep = step.Name
			break
		}
	}

	// Cleanup must not be skipped because the run was cancelled.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, step := range p.cleanup {
		outcome := p.runStep(cleanupCtx, step, true)
		res.Steps = append(res.Steps, outcome)
		p.finished(outcome)
	}

	if p.reporter != nil {
		p.reporter.Finished(res)
	}
	return res
}

func (p *Pipeline) runStep(ctx context.Context, step Step, cleanup bool) (outcome StepOutcome) {
	outcome = StepOutcome{Name: step.Name, Cleanup: cleanup}
	p.started(step.Name)

	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r, Stack: debug.Stack()}
			outcome.Succeeded = false
			outcome.Err = err
			outcome.Detail = err.Error()
		}
	}()

	if step.Run == nil {
		outcome.Succeeded = true
		return outcome
	}
	if err := step.Run(ctx); err != nil {
		outcome.Err = err
		outcome.Detail = err.Error()
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}

func (p *Pipeline) started(name string) {
	if p.reporter != nil {
		p.reporter.StepStarted(name)
	}
}

func (p *Pipeline) finished(o StepOutcome) {
	if p.reporter != nil {
		p.reporter.StepFinished(o)
	}
}

// PanicError is the failure recorded for a step that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var p *PanicError
	return errors.As(err, &p)
}
