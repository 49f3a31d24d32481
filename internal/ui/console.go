// Package ui prints human-readable progress for pipeline runs.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/tridyme/tridyme-cli/internal/pipeline"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
	bold     = color.New(color.Bold).SprintFunc()
)

// Console writes step status lines and a final summary to Out.
type Console struct {
	Out io.Writer
	// Color enables ANSI colors.
	Color bool
}

// NewConsole returns a Console writing to w, colored when w is a terminal.
func NewConsole(w io.Writer) *Console {
	return &Console{Out: w, Color: isTerminalWriter(w) && !color.NoColor}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// StepStarted implements pipeline.Reporter.
func (c *Console) StepStarted(name string) {
	c.printf("%s %s...\n", c.paint(dimText, "→"), name)
}

// StepFinished implements pipeline.Reporter.
func (c *Console) StepFinished(o pipeline.StepOutcome) {
	if o.Succeeded {
		c.printf("%s %s\n", c.paint(okMark, "✓"), o.Name)
		return
	}
	c.printf("%s %s: %s\n", c.paint(failMark, "✗"), o.Name, o.Detail)
}

// Finished implements pipeline.Reporter.
func (c *Console) Finished(res pipeline.Result) {
	c.printf("\n")
	if res.Completed {
		c.printf("%s %s\n", c.paint(okMark, "Deployment succeeded"), c.paint(dimText, "("+res.Pipeline+")"))
	} else {
		c.printf("%s at step %s %s\n", c.paint(failMark, "Deployment failed"), c.paint(bold, res.FailedStep), c.paint(dimText, "("+res.Pipeline+")"))
	}
	if errs := res.CleanupErrors(); len(errs) > 0 {
		lines := make([]string, 0, len(errs))
		for _, err := range errs {
			lines = append(lines, "  - "+err.Error())
		}
		c.printf("cleanup problems:\n%s\n", strings.Join(lines, "\n"))
	}
}

// Info prints a plain line.
func (c *Console) Info(format string, args ...any) {
	c.printf(format+"\n", args...)
}

// KeyValue prints an aligned "key: value" line.
func (c *Console) KeyValue(key, value string) {
	if value == "" {
		value = c.paint(dimText, "(not set)")
	}
	c.printf("%-20s %s\n", key+":", value)
}

func (c *Console) paint(f func(a ...any) string, s string) string {
	if !c.Color {
		return s
	}
	return f(s)
}

func (c *Console) printf(format string, args ...any) {
	if c.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(c.Out, format, args...)
}
