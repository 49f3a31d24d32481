// Package toolchain wraps the external CLIs a deployment shells out to.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tridyme/tridyme-cli/internal/runner"
)

// Tool names.
const (
	GCloud  = "gcloud"
	Kubectl = "kubectl"
	Docker  = "docker"
	NPM     = "npm"
)

// ErrToolchainMissing is wrapped by MissingError.
var ErrToolchainMissing = errors.New("required tools are missing")

var hints = map[string]string{
	GCloud:  "install the Google Cloud SDK: https://cloud.google.com/sdk/docs/install",
	Kubectl: "install kubectl: gcloud components install kubectl",
	Docker:  "install Docker: https://docs.docker.com/get-docker/",
	NPM:     "install Node.js and npm: https://nodejs.org/",
}

// Hint returns the remediation text for tool.
func Hint(tool string) string {
	if h, ok := hints[tool]; ok {
		return h
	}
	return "install " + tool + " and make sure it is on PATH"
}

// MissingError lists tools that are not on PATH.
type MissingError struct {
	Tools []string
}

func (e *MissingError) Error() string {
	lines := make([]string, 0, len(e.Tools))
	for _, t := range e.Tools {
		lines = append(lines, fmt.Sprintf("%s (%s)", t, Hint(t)))
	}
	return fmt.Sprintf("%s: %s", ErrToolchainMissing, strings.Join(lines, "; "))
}

func (e *MissingError) Unwrap() error { return ErrToolchainMissing }

// LookPath is the lookup used by Check.
type LookPath func(string) (string, error)

// Check verifies that every tool is on PATH. It returns a *MissingError naming
// all missing tools, not just the first one.
func Check(logger *slog.Logger, look LookPath, tools ...string) error {
	if look == nil {
		look = exec.LookPath
	}
	var missing []string
	for _, tool := range tools {
		path, err := look(tool)
		if err != nil {
			if logger != nil {
				logger.Error("toolchain check failed: missing required tool", "tool", tool, "hint", Hint(tool))
			}
			missing = append(missing, tool)
			continue
		}
		if logger != nil {
			logger.Debug("toolchain check ok", "tool", tool, "path", path)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Tools: missing}
	}
	return nil
}

// Toolchain issues typed commands through a runner.Runner.
type Toolchain struct {
	Runner runner.Runner
	// Dir is the project directory commands run in.
	Dir string
}

// New returns a Toolchain running commands in dir.
func New(r runner.Runner, dir string) *Toolchain {
	return &Toolchain{Runner: r, Dir: dir}
}

func (t *Toolchain) run(ctx context.Context, name string, args ...string) error {
	return t.Runner.Run(ctx, runner.Command{Name: name, Args: args, Dir: t.Dir}).Error()
}

// runQuiet is run with the child's chatter sent to the debug log.
func (t *Toolchain) runQuiet(ctx context.Context, name string, args ...string) error {
	return t.Runner.Run(ctx, runner.Command{Name: name, Args: args, Dir: t.Dir, Quiet: true}).Error()
}

// GetClusterCredentials points kubectl at the GKE cluster.
func (t *Toolchain) GetClusterCredentials(ctx context.Context, cluster, region, project string) error {
	return t.runQuiet(ctx, GCloud, "container", "clusters", "get-credentials", cluster, "--region", region, "--project", project)
}

// ConfigureDocker registers gcloud as the docker credential helper for host.
func (t *Toolchain) ConfigureDocker(ctx context.Context, host string) error {
	return t.runQuiet(ctx, GCloud, "auth", "configure-docker", host, "--quiet")
}

// DockerBuild builds the Dockerfile in the project directory and tags it image.
func (t *Toolchain) DockerBuild(ctx context.Context, image string) error {
	return t.run(ctx, Docker, "build", "-t", image, ".")
}

// DockerPush pushes image.
func (t *Toolchain) DockerPush(ctx context.Context, image string) error {
	return t.run(ctx, Docker, "push", image)
}

// KubectlApply applies the manifest file at path.
func (t *Toolchain) KubectlApply(ctx context.Context, path string) error {
	return t.run(ctx, Kubectl, "apply", "-f", path)
}

// Exec runs an arbitrary tokenised command, such as the frontend build, in
// subdir of the project directory.
func (t *Toolchain) Exec(ctx context.Context, subdir string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	dir := t.Dir
	if subdir != "" {
		dir = filepath.Join(t.Dir, subdir)
	}
	return t.Runner.Run(ctx, runner.Command{Name: argv[0], Args: argv[1:], Dir: dir}).Error()
}
