// Package credentials obtains the values a deployment needs from the
// environment, from what was persisted by an earlier run, or from the operator.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/env"
	"github.com/tridyme/tridyme-cli/internal/logging"
	"github.com/tridyme/tridyme-cli/internal/secrets"
)

// ErrEmptyCredential is returned when the operator answers a prompt with nothing.
var ErrEmptyCredential = errors.New("credential is empty")

// Source tells where a resolved value came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceEnv     Source = "environment"
	SourceConfig  Source = "config"
	SourceSecrets Source = "secret store"
	SourcePrompt  Source = "prompt"
)

// Request names one value to resolve.
type Request struct {
	// Key is the configuration key; the environment variable is its upper-case form.
	Key string
	// Prompt is the label shown when the operator has to be asked.
	Prompt string
	// Secret values live in the secret store and are read without echo.
	Secret bool
}

// EnvVar returns the environment variable consulted for key.
func EnvVar(key string) string {
	return strings.ToUpper(key)
}

// Resolver looks values up in order: environment, persisted state, prompt.
// Prompted values are persisted before Resolve returns.
type Resolver struct {
	Config   *config.ProjectConfig
	Store    *config.Store
	Secrets  secrets.Store
	Env      env.Vars
	Prompter Prompter
	Logger   *slog.Logger

	cache map[string]string
}

// Resolve returns the value for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, error) {
	value, source, err := r.resolve(ctx, req)
	if err != nil {
		return "", err
	}
	r.logger().Debug("credential resolved", "key", req.Key, "source", string(source))
	return value, nil
}

func (r *Resolver) resolve(ctx context.Context, req Request) (string, Source, error) {
	if v, ok := r.cache[req.Key]; ok {
		return v, SourceCache, nil
	}

	if v, ok := r.Env.Lookup(EnvVar(req.Key)); ok {
		r.remember(req.Key, v)
		return v, SourceEnv, nil
	}

	if req.Secret {
		v, err := r.persistedSecret(req.Key)
		if err != nil {
			return "", "", err
		}
		if v != "" {
			r.remember(req.Key, v)
			return v, SourceSecrets, nil
		}
	} else if r.Config.Has(req.Key) {
		v := r.Config.Get(req.Key)
		r.remember(req.Key, v)
		return v, SourceConfig, nil
	}

	if r.Prompter == nil {
		return "", "", fmt.Errorf("%s is not set and no prompt is available (set %s)", req.Key, EnvVar(req.Key))
	}
	label := req.Prompt
	if label == "" {
		label = req.Key
	}
	v, err := r.Prompter.Prompt(ctx, label, req.Secret, "")
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", "", fmt.Errorf("%s: %w", req.Key, ErrEmptyCredential)
	}
	if err := r.persist(req, v); err != nil {
		return "", "", err
	}
	r.remember(req.Key, v)
	return v, SourcePrompt, nil
}

// persistedSecret reads key from the secret store, first moving a plaintext
// copy out of the project configuration if one is there.
func (r *Resolver) persistedSecret(key string) (string, error) {
	if r.Config.Has(key) {
		legacy := r.Config.Get(key)
		if r.Secrets != nil {
			if err := r.Secrets.Set(key, legacy); err != nil {
				return "", fmt.Errorf("migrate %s to secret store: %w", key, err)
			}
		}
		r.Config.Delete(key)
		if r.Store != nil {
			if err := r.Store.Save(r.Config); err != nil {
				return "", err
			}
		}
		r.logger().Info("moved plaintext secret out of project configuration", "key", key)
		return legacy, nil
	}

	if r.Secrets == nil {
		return "", nil
	}
	v, err := r.Secrets.Get(key)
	if errors.Is(err, secrets.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s from secret store: %w", key, err)
	}
	return v, nil
}

func (r *Resolver) persist(req Request, value string) error {
	if req.Secret {
		if r.Secrets == nil {
			return nil
		}
		if err := r.Secrets.Set(req.Key, value); err != nil {
			return fmt.Errorf("store %s: %w", req.Key, err)
		}
		return nil
	}
	r.Config.Set(req.Key, value)
	if r.Store == nil {
		return nil
	}
	return r.Store.Save(r.Config)
}

func (r *Resolver) remember(key, value string) {
	if r.cache == nil {
		r.cache = make(map[string]string)
	}
	r.cache[key] = value
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

// ProjectEnv returns the process environment merged over the project .env file.
func ProjectEnv(envFile string) (env.Vars, error) {
	fileVars, err := env.LoadOptionalEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	return env.Merge(fileVars, env.FromOS()), nil
}
