package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides of Settings.
const EnvPrefix = "TRIDYME"

// Settings holds tool-wide behavior that is not specific to one project.
type Settings struct {
	Log      LogSettings      `mapstructure:"log"`
	Render   RenderSettings   `mapstructure:"render"`
	Frontend FrontendSettings `mapstructure:"frontend"`
	Cluster  ClusterSettings  `mapstructure:"cluster"`
	Platform PlatformSettings `mapstructure:"platform"`
	Secrets  SecretsSettings  `mapstructure:"secrets"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// RenderSettings configures the Render API client.
type RenderSettings struct {
	APIURL       string `mapstructure:"api_url"`
	DashboardURL string `mapstructure:"dashboard_url"`
	// Timeout bounds each API call. Zero means no timeout.
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollAttempts int           `mapstructure:"poll_attempts"`
}

// FrontendSettings describes how the frontend artifact is built.
type FrontendSettings struct {
	Dir          string `mapstructure:"dir"`
	BuildCommand string `mapstructure:"build_command"`
}

// ClusterSettings configures the GKE target.
type ClusterSettings struct {
	ManifestFile string `mapstructure:"manifest_file"`
}

// PlatformSettings configures the Render target.
type PlatformSettings struct {
	BlueprintFile string `mapstructure:"blueprint_file"`
}

// SecretsSettings selects where secrets are persisted.
type SecretsSettings struct {
	// Backend is "keyring" (with file fallback) or "file".
	Backend string `mapstructure:"backend"`
}

// DefaultSettingsPath returns ~/.tridyme/config.yaml.
func DefaultSettingsPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tridyme", "config.yaml"), nil
}

// LoadSettings loads Settings from path (optional) and TRIDYME_* environment
// variables. A missing file is fine; an unparsable one is not.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("render.api_url", "https://api.render.com/v1")
	v.SetDefault("render.dashboard_url", "https://dashboard.render.com")
	v.SetDefault("render.timeout", "0s")
	v.SetDefault("render.poll_interval", "5s")
	v.SetDefault("render.poll_attempts", 30)
	v.SetDefault("frontend.dir", "frontend")
	v.SetDefault("frontend.build_command", "npm run build")
	v.SetDefault("cluster.manifest_file", "kubernetes-deploy.yaml")
	v.SetDefault("platform.blueprint_file", "render.yaml")
	v.SetDefault("secrets.backend", "keyring")

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand settings path %q: %w", path, err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("parse settings file %s: %w", expanded, err)
			}
			// Missing file: defaults and environment only.
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// FrontendBuildArgs splits the frontend build command into literal tokens.
// The command is never handed to a shell.
func (s *Settings) FrontendBuildArgs() ([]string, error) {
	args, err := shellwords.Parse(s.Frontend.BuildCommand)
	if err != nil {
		return nil, fmt.Errorf("parse frontend.build_command %q: %w", s.Frontend.BuildCommand, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("frontend.build_command is empty")
	}
	return args, nil
}
