package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tridyme/tridyme-cli/internal/archive"
	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/manifest"
	"github.com/tridyme/tridyme-cli/internal/pipeline"
	"github.com/tridyme/tridyme-cli/internal/render"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// Platform step names.
const (
	StepResolvePlatformCredentials = "ResolvePlatformCredentials"
	StepBuildFrontendArtifact      = "BuildFrontendArtifact"
	StepGenerateServiceDefinition  = "GenerateServiceDefinition"
	StepPackageProjectArchive      = "PackageProjectArchive"
	StepSubmitToPlatformAPI        = "SubmitToPlatformAPI"
	StepCleanup                    = "Cleanup"
)

var (
	tokenRequest = credentials.Request{Key: config.KeyRenderToken, Prompt: "Render API token", Secret: true}
	ownerRequest = credentials.Request{Key: config.KeyRenderOrgID, Prompt: "Render owner (organization) ID"}
)

// Platform deploys the project to Render by uploading an archive and a
// service definition.
type Platform struct {
	deps Deps
}

// Name implements Target.
func (p *Platform) Name() string { return TargetPlatform }

// Execute implements Target. The archive, its staging directory and the
// generated service definition are removed whatever the outcome. A
// service definition the project already had is put back as it was.
func (p *Platform) Execute(ctx context.Context, cfg *config.ProjectConfig) pipeline.Result {
	logger := p.deps.logger(p.Name())
	settings := p.deps.settings()
	resolver := p.deps.resolver(cfg, logger)
	tc := toolchain.New(p.deps.Runner, p.deps.dir())

	blueprintFile := settings.Platform.BlueprintFile
	if blueprintFile == "" {
		blueprintFile = "render.yaml"
	}

	var (
		token, ownerID, domain string
		blueprint              manifest.Blueprint
		blueprintPath          string
		userBlueprint          []byte
		hadBlueprint           bool
		workDir                string
		archivePath            string
	)

	pl := pipeline.New(p.Name(), p.deps.Reporter).Then(
		pipeline.Step{Name: StepResolvePlatformCredentials, Run: func(ctx context.Context) error {
			if err := requireProjectName(cfg); err != nil {
				return err
			}
			var err error
			if token, err = resolver.Resolve(ctx, tokenRequest); err != nil {
				return err
			}
			if ownerID, err = resolver.Resolve(ctx, ownerRequest); err != nil {
				return err
			}
			domain = strings.TrimSpace(p.deps.Domain)
			if domain != "" && domain != cfg.Get(config.KeyRenderDomain) {
				cfg.Set(config.KeyRenderDomain, domain)
				if err := p.save(cfg); err != nil {
					return err
				}
			}
			if domain == "" {
				domain = cfg.Get(config.KeyRenderDomain)
			}
			return nil
		}},
		pipeline.Step{Name: StepBuildFrontendArtifact, Run: func(ctx context.Context) error {
			argv, err := settings.FrontendBuildArgs()
			if err != nil {
				return err
			}
			return tc.Exec(ctx, settings.Frontend.Dir, argv)
		}},
		pipeline.Step{Name: StepGenerateServiceDefinition, Run: func(context.Context) error {
			blueprint = manifest.Platform(cfg, domain)
			data, err := blueprint.YAML()
			if err != nil {
				return err
			}
			path := p.deps.projectPath(blueprintFile)
			existing, err := os.ReadFile(path)
			switch {
			case err == nil:
				userBlueprint, hadBlueprint = existing, true
			case !errors.Is(err, os.ErrNotExist):
				return fmt.Errorf("read %s: %w", path, err)
			}
			blueprintPath = path
			return writeFile(path, data)
		}},
		pipeline.Step{Name: StepPackageProjectArchive, Run: func(context.Context) error {
			dir, err := os.MkdirTemp("", "tridyme-deploy-*")
			if err != nil {
				return fmt.Errorf("create work directory: %w", err)
			}
			workDir = dir
			res, err := archive.Package(archive.Options{
				Source:  p.deps.dir(),
				WorkDir: workDir,
				Name:    cfg.ProjectName(),
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			archivePath = res.Path
			logger.Debug("project packaged", "archive", res.Path, "files", res.Files)
			return nil
		}},
		pipeline.Step{Name: StepSubmitToPlatformAPI, Run: func(ctx context.Context) error {
			payload, err := blueprint.JSON()
			if err != nil {
				return err
			}
			client := render.NewClient(render.Config{
				BaseURL:      settings.Render.APIURL,
				DashboardURL: settings.Render.DashboardURL,
				Token:        token,
				Timeout:      settings.Render.Timeout,
				HTTPClient:   p.deps.HTTPClient,
			}, logger)
			svc, err := client.CreateService(ctx, render.CreateServiceRequest{
				OwnerID:     ownerID,
				Blueprint:   payload,
				ArchivePath: archivePath,
			})
			if err != nil {
				var apiErr *render.APIError
				if errors.As(err, &apiErr) {
					logger.Error("render rejected the service", "status", apiErr.StatusCode, "body", apiErr.Body)
				}
				return err
			}
			cfg.Set(config.KeyRenderServiceID, svc.ID)
			cfg.Set(config.KeyRenderServiceURL, svc.ServiceURL)
			if err := p.save(cfg); err != nil {
				return err
			}
			logger.Info("render service created", "service_id", svc.ID, "url", svc.ServiceURL)
			return nil
		}},
	).Finally(
		pipeline.Step{Name: StepCleanup, Run: func(context.Context) error {
			var errs []error
			if workDir != "" {
				if err := os.RemoveAll(workDir); err != nil {
					errs = append(errs, fmt.Errorf("remove work directory: %w", err))
				}
			}
			switch {
			case blueprintPath == "":
			case hadBlueprint:
				// The project's own blueprint was only replaced for the upload.
				if err := writeFile(blueprintPath, userBlueprint); err != nil {
					errs = append(errs, fmt.Errorf("restore %s: %w", blueprintFile, err))
				}
			default:
				if err := os.Remove(blueprintPath); err != nil && !errors.Is(err, os.ErrNotExist) {
					errs = append(errs, fmt.Errorf("remove %s: %w", blueprintFile, err))
				}
			}
			return errors.Join(errs...)
		}},
	)

	return pl.Run(ctx)
}

func (p *Platform) save(cfg *config.ProjectConfig) error {
	if p.deps.Store == nil {
		return nil
	}
	return p.deps.Store.Save(cfg)
}
