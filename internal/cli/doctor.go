package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/deploy"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
	"github.com/tridyme/tridyme-cli/internal/ui"
)

// newDoctorCommand creates the "doctor" subcommand that checks the local toolchain for both targets.
func newDoctorCommand(opts *Options, rtFn func() *externals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the tools needed by each deployment target are installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings := settingsOrDefault(opts)
			look := rtFn().lookPath

			frontendTool := toolchain.NPM
			if argv, err := settings.FrontendBuildArgs(); err == nil {
				frontendTool = argv[0]
			}
			targets := map[string][]string{
				deploy.TargetCluster:  deploy.ClusterTools,
				deploy.TargetPlatform: {frontendTool},
			}

			console := ui.NewConsole(cmd.OutOrStdout())
			var all []string
			for _, name := range deploy.Names() {
				console.Info("%s:", name)
				for _, tool := range targets[name] {
					if err := toolchain.Check(nil, look, tool); err != nil {
						console.KeyValue("  "+tool, "missing, "+toolchain.Hint(tool))
					} else {
						console.KeyValue("  "+tool, "ok")
					}
					if !slices.Contains(all, tool) {
						all = append(all, tool)
					}
				}
			}

			if err := toolchain.Check(logger, look, all...); err != nil {
				return err
			}
			logger.Info("doctor checks completed successfully")
			return nil
		},
	}

	return cmd
}
