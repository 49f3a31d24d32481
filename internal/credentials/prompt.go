package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator for a value.
type Prompter interface {
	// Prompt shows label and returns the trimmed answer. When def is non-empty it
	// is shown and returned for an empty answer. Secret answers are not echoed
	// when the input is a terminal.
	Prompt(ctx context.Context, label string, secret bool, def string) (string, error)
}

// TerminalPrompter reads answers from In and writes prompts to Out.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminalPrompter returns a prompter bound to the process stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// Prompt implements Prompter.
func (p *TerminalPrompter) Prompt(ctx context.Context, label string, secret bool, def string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := label
	if def != "" && !secret {
		text = fmt.Sprintf("%s [%s]", label, def)
	}
	_, _ = fmt.Fprintf(p.Out, "%s: ", text)

	var (
		value string
		err   error
	)
	if file, ok := p.In.(*os.File); ok && secret && term.IsTerminal(int(file.Fd())) {
		var raw []byte
		raw, err = term.ReadPassword(int(file.Fd()))
		_, _ = fmt.Fprintln(p.Out)
		value = string(raw)
	} else {
		value, err = p.readLine()
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		value = def
	}
	return value, nil
}

func (p *TerminalPrompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}
