package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/render"
	"github.com/tridyme/tridyme-cli/internal/ui"
)

// statusKeys are printed by "status" in this order.
var statusKeys = []string{
	config.KeyProjectName,
	config.KeyGCPProject,
	config.KeyGCPRegion,
	config.KeyGCPCluster,
	config.KeyGCPRepository,
	config.KeyRenderOrgID,
	config.KeyRenderDomain,
	config.KeyRenderServiceID,
	config.KeyRenderServiceURL,
}

var renderTokenRequest = credentials.Request{Key: config.KeyRenderToken, Prompt: "Render API token", Secret: true}

// newStatusCommand creates the "status" subcommand that shows the last known deployment.
func newStatusCommand(opts *Options, rtFn func() *externals) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project configuration and the latest Render deploy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings := settingsOrDefault(opts)
			rt := rtFn()

			proj, err := loadProject(opts, logger)
			if err != nil {
				return err
			}

			console := ui.NewConsole(cmd.OutOrStdout())
			for _, key := range statusKeys {
				console.KeyValue(key, proj.cfg.Get(key))
			}

			serviceID := proj.cfg.Get(config.KeyRenderServiceID)
			if serviceID == "" {
				if wait {
					return fmt.Errorf("no Render service recorded for this project")
				}
				return nil
			}

			vars, err := credentials.ProjectEnv(filepath.Join(opts.Dir, envFileName))
			if err != nil {
				return err
			}
			resolver := &credentials.Resolver{
				Config:  proj.cfg,
				Store:   proj.store,
				Secrets: proj.secrets,
				Env:     vars,
				Logger:  logger,
			}
			token, err := resolver.Resolve(cmd.Context(), renderTokenRequest)
			if err != nil {
				if wait {
					return err
				}
				logger.Warn("skipping deploy lookup", "error", err)
				return nil
			}

			client := render.NewClient(render.Config{
				BaseURL:      settings.Render.APIURL,
				DashboardURL: settings.Render.DashboardURL,
				Token:        token,
				Timeout:      settings.Render.Timeout,
				HTTPClient:   rt.httpClient,
			}, logger)

			if !wait {
				d, err := client.LatestDeploy(cmd.Context(), serviceID)
				if err != nil {
					return err
				}
				printDeploy(console, d)
				return nil
			}

			d, err := client.WaitForLive(cmd.Context(), serviceID, settings.Render.PollInterval, settings.Render.PollAttempts, func(d *render.Deploy) {
				console.Info("deploy %s: %s", d.ID, d.Status)
			})
			if d != nil {
				printDeploy(console, d)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the latest deploy is live or has failed")

	return cmd
}

func printDeploy(console *ui.Console, d *render.Deploy) {
	console.KeyValue("deploy_id", d.ID)
	console.KeyValue("deploy_status", d.Status)
	if !d.FinishedAt.IsZero() {
		console.KeyValue("deploy_finished_at", d.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
