package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/deploy"
	"github.com/tridyme/tridyme-cli/internal/ghoutput"
	"github.com/tridyme/tridyme-cli/internal/pipeline"
	"github.com/tridyme/tridyme-cli/internal/ui"
)

// envFileName is the optional project file consulted for credential overrides.
const envFileName = ".env"

// newDeployCommand creates the "deploy" subcommand that runs a deployment pipeline.
func newDeployCommand(opts *Options, rtFn func() *externals) *cobra.Command {
	var (
		platform string
		domain   string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the project to GKE or Render",
		Long: "Deploy the project. The gke target builds and pushes a container image and applies " +
			"a Kubernetes manifest; the render target uploads the project and a service definition.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			rt := rtFn()

			proj, err := loadProject(opts, logger)
			if err != nil {
				return err
			}
			vars, err := credentials.ProjectEnv(filepath.Join(opts.Dir, envFileName))
			if err != nil {
				return err
			}

			target, err := deploy.Select(platform, deploy.Deps{
				Store:      proj.store,
				Secrets:    proj.secrets,
				Env:        vars,
				Prompter:   rt.prompter,
				Runner:     rt.runner,
				Settings:   opts.Settings,
				Reporter:   ui.NewConsole(cmd.OutOrStdout()),
				Logger:     logger,
				LookPath:   rt.lookPath,
				HTTPClient: rt.httpClient,
				Domain:     domain,
			})
			if err != nil {
				return err
			}

			logger.Debug("starting deployment", "target", target.Name(), "dir", proj.store.Dir())
			res := target.Execute(cmd.Context(), proj.cfg)

			if err := ghoutput.Write(ghoutput.Path(vars), deployOutputs(target.Name(), proj.cfg, res)); err != nil {
				logger.Warn("could not publish step outputs", "error", err)
			}
			return res.Err()
		},
	}

	cmd.Flags().StringVar(&platform, "platform", deploy.TargetCluster,
		fmt.Sprintf("Deployment target (%s)", strings.Join(deploy.Names(), ", ")))
	cmd.Flags().StringVar(&domain, "domain", "", "Custom domain for the Render service (remembered)")

	return cmd
}

// deployOutputs are the values published to GitHub Actions after a run.
func deployOutputs(target string, cfg *config.ProjectConfig, res pipeline.Result) map[string]string {
	out := map[string]string{
		"target":       target,
		"project_name": cfg.ProjectName(),
		"status":       "succeeded",
	}
	if res.Failed() {
		out["status"] = "failed"
		out["failed_step"] = res.FailedStep
	}
	if target == deploy.TargetPlatform {
		out["service_id"] = cfg.Get(config.KeyRenderServiceID)
		out["service_url"] = cfg.Get(config.KeyRenderServiceURL)
	}
	return out
}
