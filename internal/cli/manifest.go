package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/deploy"
	"github.com/tridyme/tridyme-cli/internal/manifest"
)

// newManifestCommand creates the "manifest" subcommand that prints the generated manifest.
func newManifestCommand(opts *Options) *cobra.Command {
	var (
		platform string
		domain   string
		diff     bool
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the manifest a deployment would generate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings := settingsOrDefault(opts)

			proj, err := loadProject(opts, logger)
			if err != nil {
				return err
			}
			if strings.TrimSpace(proj.cfg.ProjectName()) == "" {
				logger.Warn("project_name is empty; a deployment would refuse this configuration")
			}

			var (
				data []byte
				file string
			)
			switch strings.ToLower(strings.TrimSpace(platform)) {
			case "", deploy.TargetCluster:
				file = settings.Cluster.ManifestFile
				data, err = manifest.Cluster(proj.cfg, manifest.ImageRef(proj.cfg))
			case deploy.TargetPlatform:
				file = settings.Platform.BlueprintFile
				if domain == "" {
					domain = proj.cfg.Get(config.KeyRenderDomain)
				}
				data, err = manifest.Platform(proj.cfg, domain).YAML()
			default:
				return fmt.Errorf("%w %q (expected one of %s)", deploy.ErrUnknownTarget, platform, strings.Join(deploy.Names(), ", "))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !diff {
				_, err := out.Write(data)
				return err
			}

			path := file
			if !filepath.IsAbs(path) {
				path = filepath.Join(opts.Dir, file)
			}
			current, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("read %s: %w", path, err)
			}
			text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(current)),
				B:        difflib.SplitLines(string(data)),
				FromFile: file,
				ToFile:   file + " (generated)",
				Context:  3,
			})
			if err != nil {
				return fmt.Errorf("diff %s: %w", file, err)
			}
			if text == "" {
				logger.Info("manifest is up to date", "path", path)
				return nil
			}
			_, err = fmt.Fprint(out, text)
			return err
		},
	}

	cmd.Flags().StringVar(&platform, "platform", deploy.TargetCluster,
		fmt.Sprintf("Deployment target (%s)", strings.Join(deploy.Names(), ", ")))
	cmd.Flags().StringVar(&domain, "domain", "", "Custom domain for the Render service definition")
	cmd.Flags().BoolVar(&diff, "diff", false, "Show a unified diff against the file on disk instead")

	return cmd
}
