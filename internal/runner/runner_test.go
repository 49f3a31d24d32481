package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tridyme/tridyme-cli/internal/logging"
)

func newTestExec() (*Exec, *bytes.Buffer) {
	var out bytes.Buffer
	return &Exec{Stdout: &out, Stderr: &out, Logger: logging.Discard()}, &out
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExec_NotFound(t *testing.T) {
	e, _ := newTestExec()
	res := e.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-tridyme"})

	assert.False(t, res.OK())
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.Equal(t, -1, res.ExitCode)

	var runErr *Error
	require.True(t, errors.As(res.Error(), &runErr))
	assert.Contains(t, runErr.Error(), "not found")
}

func TestExec_Success(t *testing.T) {
	skipWithoutShell(t)
	e, out := newTestExec()

	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello"}})
	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Nil(t, res.Error())
	assert.Equal(t, "hello\n", out.String())
}

func TestExec_ExitStatus(t *testing.T) {
	skipWithoutShell(t)
	e, _ := newTestExec()

	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	assert.Equal(t, ReasonExitStatus, res.Reason)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Error().Error(), "status 3")
}

func TestExec_ArgumentsAreLiteral(t *testing.T) {
	skipWithoutShell(t)
	e, out := newTestExec()

	// $HOME must reach the child unexpanded.
	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", `printf '%s' "$1"`, "sh", "$HOME; rm -rf /"}})
	require.True(t, res.OK())
	assert.Equal(t, "$HOME; rm -rf /", out.String())
}

func TestExec_WorkingDirectory(t *testing.T) {
	skipWithoutShell(t)
	e, out := newTestExec()
	dir := t.TempDir()

	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "pwd"}, Dir: dir})
	require.True(t, res.OK())
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out.String()), dir) || strings.Contains(out.String(), dir))
}

func TestExec_ShellMode(t *testing.T) {
	skipWithoutShell(t)
	e, out := newTestExec()

	res := e.Run(context.Background(), Command{Name: "echo", Args: []string{"a", "&&", "echo", "b"}, Shell: true})
	require.True(t, res.OK())
	assert.Equal(t, "a\nb\n", out.String())
}

func TestExec_QuietSendsOutputToLog(t *testing.T) {
	skipWithoutShell(t)
	var logs, console bytes.Buffer
	e := &Exec{Stdout: &console, Stderr: &console, Logger: logging.NewLogger(&logs, logging.LevelDebug)}

	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo quiet-line"}, Quiet: true})
	require.True(t, res.OK())
	assert.Empty(t, console.String())
	assert.Contains(t, logs.String(), "quiet-line")
}

func TestExec_QuietFailureSurfacesOutput(t *testing.T) {
	skipWithoutShell(t)
	var logs, console bytes.Buffer
	e := &Exec{Stdout: &console, Stderr: &console, Logger: logging.NewLogger(&logs, logging.LevelWarn)}

	res := e.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo permission denied >&2; exit 3"}, Quiet: true})
	require.False(t, res.OK())
	assert.Equal(t, 3, res.ExitCode)
	assert.Empty(t, console.String())
	assert.Contains(t, logs.String(), "output of failed command")
	assert.Contains(t, logs.String(), "permission denied")
}

func TestExec_CancelledContext(t *testing.T) {
	skipWithoutShell(t)
	e, _ := newTestExec()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	assert.False(t, res.OK())
	assert.NotEqual(t, ReasonNotFound, res.Reason)
}

func TestExec_StubbedLookPath(t *testing.T) {
	e, _ := newTestExec()
	e.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	res := e.Run(context.Background(), Command{Name: "docker", Args: []string{"build"}})
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.ErrorIs(t, res.Error(), exec.ErrNotFound)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "docker push img:latest", Command{Name: "docker", Args: []string{"push", "img:latest"}}.String())
	assert.Equal(t, "kubectl", Command{Name: "kubectl"}.String())
}

func TestFailureReasonString(t *testing.T) {
	assert.Equal(t, "ok", ReasonNone.String())
	assert.Equal(t, "not found", ReasonNotFound.String())
	assert.Equal(t, "exit status", ReasonExitStatus.String())
	assert.Equal(t, "spawn failed", ReasonSpawn.String())
}
