// Package cli defines the command-line interface for tridyme.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/logging"
	"github.com/tridyme/tridyme-cli/internal/runner"
	"github.com/tridyme/tridyme-cli/internal/secrets"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Dir        string
	LogLevel   logging.Level
	Settings   *config.Settings
}

// externals holds the collaborators commands use to reach the outside world.
type externals struct {
	runner     runner.Runner
	lookPath   toolchain.LookPath
	prompter   credentials.Prompter
	httpClient *http.Client
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(&Options{}, logger, nil)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
// rt may be nil, in which case the real process runner and terminal prompter are used.
func newRootCommand(opts *Options, logger *slog.Logger, rt *externals) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tridyme",
		Short:         "tridyme manages TriDyme SDK applications",
		Long:          "tridyme configures, builds and deploys TriDyme SDK web applications to a GKE cluster or to Render.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settingsPath := opts.ConfigPath
			if settingsPath == "" {
				if p, err := config.DefaultSettingsPath(); err == nil {
					settingsPath = p
				}
			}
			settings, err := config.LoadSettings(settingsPath)
			if err != nil {
				return err
			}
			opts.Settings = settings

			levelValue := settings.Log.Level
			if f := cmd.Flag("log-level"); f != nil && f.Changed {
				levelValue = f.Value.String()
			}
			level := logging.ParseLevel(levelValue)
			opts.LogLevel = level
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)

			if rt == nil {
				rt = &externals{
					runner:   runner.NewExec(logger),
					prompter: credentials.NewTerminalPrompter(),
				}
			}

			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level, "settings", settingsPath)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the tridyme settings file (default ~/.tridyme/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	rtFn := func() *externals { return rt }
	cmd.AddCommand(
		newConfigureCommand(opts, rtFn),
		newBuildCommand(opts, rtFn),
		newDeployCommand(opts, rtFn),
		newStatusCommand(opts, rtFn),
		newManifestCommand(opts),
		newDoctorCommand(opts, rtFn),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

// project bundles what most commands need about the project directory.
type project struct {
	store   *config.Store
	cfg     *config.ProjectConfig
	secrets secrets.Store
}

// loadProject opens the project configuration. A corrupt file is fatal.
func loadProject(opts *Options, logger *slog.Logger) (*project, error) {
	store := config.NewStore(opts.Dir)
	cfg, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load project configuration: %w", err)
	}
	backend := "keyring"
	if opts.Settings != nil {
		backend = opts.Settings.Secrets.Backend
	}
	return &project{
		store:   store,
		cfg:     cfg,
		secrets: secrets.Open(backend, store.Dir(), logger),
	}, nil
}

func settingsOrDefault(opts *Options) *config.Settings {
	if opts.Settings != nil {
		return opts.Settings
	}
	s, err := config.LoadSettings("")
	if err != nil {
		return &config.Settings{}
	}
	return s
}
