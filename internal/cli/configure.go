package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/env"
	"github.com/tridyme/tridyme-cli/internal/ui"
)

// configureField binds a command flag to a project configuration key.
type configureField struct {
	flag   string
	key    string
	prompt string
	usage  string
}

var configureFields = []configureField{
	{flag: "project-name", key: config.KeyProjectName, prompt: "Project name", usage: "Project name, used for the image, the service and the URL path"},
	{flag: "gcp-project", key: config.KeyGCPProject, prompt: "GCP project ID", usage: "Google Cloud project ID"},
	{flag: "gcp-region", key: config.KeyGCPRegion, prompt: "GCP region", usage: "Google Cloud region"},
	{flag: "gcp-cluster", key: config.KeyGCPCluster, prompt: "GKE cluster name", usage: "GKE cluster name"},
	{flag: "gcp-repository", key: config.KeyGCPRepository, prompt: "Artifact Registry repository", usage: "Artifact Registry repository"},
}

// newConfigureCommand creates the "configure" subcommand that edits the project configuration.
func newConfigureCommand(opts *Options, rtFn func() *externals) *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set project configuration values",
		Long: "Set project configuration values. Without flags every value is asked for " +
			"interactively, with the current value offered as the default.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			proj, err := loadProject(opts, logger)
			if err != nil {
				return err
			}

			values := make(map[string]string)
			for _, f := range configureFields {
				if cmd.Flags().Changed(f.flag) {
					v, _ := cmd.Flags().GetString(f.flag)
					values[f.key] = v
				}
			}
			inline, err := env.ParseInlineVars(set)
			if err != nil {
				return err
			}
			maps.Copy(values, inline)

			if len(values) == 0 {
				prompter := rtFn().prompter
				if prompter == nil {
					return fmt.Errorf("no values given and no terminal to prompt on")
				}
				for _, f := range configureFields {
					v, err := prompter.Prompt(cmd.Context(), f.prompt, false, proj.cfg.Get(f.key))
					if err != nil {
						return err
					}
					values[f.key] = v
				}
			}

			for _, key := range slices.Sorted(maps.Keys(values)) {
				if key == config.KeyRenderToken {
					if err := proj.secrets.Set(key, values[key]); err != nil {
						return fmt.Errorf("store %s: %w", key, err)
					}
					proj.cfg.Delete(key)
					continue
				}
				proj.cfg.Set(key, values[key])
			}
			if err := proj.store.Save(proj.cfg); err != nil {
				return err
			}
			logger.Info("project configuration saved", "path", proj.store.Path(), "keys", len(values))

			console := ui.NewConsole(cmd.OutOrStdout())
			for _, f := range configureFields {
				console.KeyValue(f.key, proj.cfg.Get(f.key))
			}
			return nil
		},
	}

	for _, f := range configureFields {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringVar(&set, "set", "", "Additional values in k=v,k2=v2 format (render_token is kept in the secret store)")

	return cmd
}
