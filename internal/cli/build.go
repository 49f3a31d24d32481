package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/manifest"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// newBuildCommand creates the "build" subcommand that produces the production artifacts.
func newBuildCommand(opts *Options, rtFn func() *externals) *cobra.Command {
	var (
		docker bool
		tag    string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the frontend and, optionally, the container image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings := settingsOrDefault(opts)
			rt := rtFn()

			argv, err := settings.FrontendBuildArgs()
			if err != nil {
				return err
			}
			tools := []string{argv[0]}
			if docker {
				tools = append(tools, toolchain.Docker)
			}
			if err := toolchain.Check(logger, rt.lookPath, tools...); err != nil {
				return err
			}

			image := tag
			if docker && image == "" {
				proj, err := loadProject(opts, logger)
				if err != nil {
					return err
				}
				name := strings.TrimSpace(proj.cfg.ProjectName())
				if name == "" {
					return fmt.Errorf("project_name is empty: pass --tag or run `tridyme configure --project-name NAME`")
				}
				image = name + ":latest"
			}
			if docker {
				if err := manifest.ValidateImageRef(image); err != nil {
					return err
				}
			}

			tc := toolchain.New(rt.runner, opts.Dir)
			logger.Info("building frontend", "dir", settings.Frontend.Dir, "command", strings.Join(argv, " "))
			if err := tc.Exec(cmd.Context(), settings.Frontend.Dir, argv); err != nil {
				return fmt.Errorf("frontend build: %w", err)
			}
			if !docker {
				return nil
			}
			logger.Info("building image", "image", image)
			if err := tc.DockerBuild(cmd.Context(), image); err != nil {
				return fmt.Errorf("image build: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&docker, "docker", false, "Also build the container image")
	cmd.Flags().StringVar(&tag, "tag", "", "Image tag for --docker (default {project_name}:latest)")

	return cmd
}
