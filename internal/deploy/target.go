// Package deploy implements the deployment targets: a GKE cluster and the
// Render managed platform. Each target is a fixed pipeline of steps.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/env"
	"github.com/tridyme/tridyme-cli/internal/logging"
	"github.com/tridyme/tridyme-cli/internal/pipeline"
	"github.com/tridyme/tridyme-cli/internal/runner"
	"github.com/tridyme/tridyme-cli/internal/secrets"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// Target names accepted by Select.
const (
	TargetCluster  = "gke"
	TargetPlatform = "render"
)

var (
	// ErrUnknownTarget is returned by Select for an unsupported target name.
	ErrUnknownTarget = errors.New("unknown deployment target")
	// ErrPrecondition is returned when the configuration cannot produce a valid deployment.
	ErrPrecondition = errors.New("deployment precondition not met")
)

// Target deploys a project.
type Target interface {
	Name() string
	Execute(ctx context.Context, cfg *config.ProjectConfig) pipeline.Result
}

// Deps are the collaborators shared by both targets.
type Deps struct {
	Store    *config.Store
	Secrets  secrets.Store
	Env      env.Vars
	Prompter credentials.Prompter
	Runner   runner.Runner
	Settings *config.Settings
	Reporter pipeline.Reporter
	Logger   *slog.Logger

	// LookPath replaces exec.LookPath in the toolchain check.
	LookPath toolchain.LookPath
	// HTTPClient replaces the Render client's transport.
	HTTPClient *http.Client
	// Domain is attached to the Render service and remembered when non-empty.
	Domain string
}

// Names lists the supported targets, default first.
func Names() []string { return []string{TargetCluster, TargetPlatform} }

// Select returns the target called name. An empty name selects the cluster target.
func Select(name string, deps Deps) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TargetCluster:
		return &Cluster{deps: deps}, nil
	case TargetPlatform:
		return &Platform{deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w %q (expected one of %s)", ErrUnknownTarget, name, strings.Join(Names(), ", "))
	}
}

func (d Deps) dir() string {
	if d.Store == nil {
		return "."
	}
	return d.Store.Dir()
}

func (d Deps) logger(target string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = logging.Discard()
	}
	return l.With("run_id", uuid.NewString(), "target", target)
}

func (d Deps) settings() *config.Settings {
	if d.Settings != nil {
		return d.Settings
	}
	s, err := config.LoadSettings("")
	if err != nil {
		return &config.Settings{}
	}
	return s
}

func (d Deps) resolver(cfg *config.ProjectConfig, logger *slog.Logger) *credentials.Resolver {
	return &credentials.Resolver{
		Config:   cfg,
		Store:    d.Store,
		Secrets:  d.Secrets,
		Env:      d.Env,
		Prompter: d.Prompter,
		Logger:   logger,
	}
}

// projectPath resolves a settings path relative to the project directory.
func (d Deps) projectPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.dir(), name)
}

func requireProjectName(cfg *config.ProjectConfig) error {
	if strings.TrimSpace(cfg.ProjectName()) == "" {
		return fmt.Errorf("%w: project_name is empty (run `tridyme configure --project-name NAME`)", ErrPrecondition)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
