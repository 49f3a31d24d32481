package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/env"
	"github.com/tridyme/tridyme-cli/internal/secrets"
)

// scriptedPrompter answers prompts from a fixed list and counts calls.
type scriptedPrompter struct {
	answers []string
	labels  []string
	secret  []bool
}

func (p *scriptedPrompter) Prompt(_ context.Context, label string, secret bool, _ string) (string, error) {
	p.labels = append(p.labels, label)
	p.secret = append(p.secret, secret)
	if len(p.answers) == 0 {
		return "", errors.New("unexpected prompt")
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func newResolver(t *testing.T, prompter Prompter, vars env.Vars) (*Resolver, *config.Store) {
	t.Helper()
	dir := t.TempDir()
	store := config.NewStore(dir)
	cfg, err := store.Load()
	require.NoError(t, err)
	return &Resolver{
		Config:   cfg,
		Store:    store,
		Secrets:  secrets.NewFile(dir),
		Env:      vars,
		Prompter: prompter,
	}, store
}

func TestResolve_EnvironmentWins(t *testing.T) {
	p := &scriptedPrompter{}
	r, store := newResolver(t, p, env.Vars{"GCP_PROJECT": "from-env"})
	r.Config.Set(config.KeyGCPProject, "from-config")

	v, err := r.Resolve(context.Background(), Request{Key: config.KeyGCPProject})
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
	assert.Empty(t, p.labels)
	assert.False(t, store.Exists(), "environment values are not persisted")
}

func TestResolve_BlankEnvironmentIsIgnored(t *testing.T) {
	r, _ := newResolver(t, &scriptedPrompter{}, env.Vars{"GCP_PROJECT": "  "})
	r.Config.Set(config.KeyGCPProject, "from-config")

	v, err := r.Resolve(context.Background(), Request{Key: config.KeyGCPProject})
	require.NoError(t, err)
	assert.Equal(t, "from-config", v)
}

func TestResolve_PromptPersistsImmediately(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"my-cluster"}}
	r, store := newResolver(t, p, env.Vars{})

	v, err := r.Resolve(context.Background(), Request{Key: config.KeyGCPCluster, Prompt: "GKE cluster name"})
	require.NoError(t, err)
	assert.Equal(t, "my-cluster", v)
	assert.Equal(t, []string{"GKE cluster name"}, p.labels)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "my-cluster", reloaded.GCPCluster())
}

func TestResolve_NeverPromptsTwice(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"rnd_token"}}
	r, _ := newResolver(t, p, env.Vars{})
	req := Request{Key: config.KeyRenderToken, Prompt: "Render API token", Secret: true}

	first, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "rnd_token", first)
	assert.Equal(t, first, second)
	assert.Len(t, p.labels, 1)
	assert.Equal(t, []bool{true}, p.secret)
}

func TestResolve_SecretGoesToSecretStoreNotConfig(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"rnd_token"}}
	r, store := newResolver(t, p, env.Vars{})

	_, err := r.Resolve(context.Background(), Request{Key: config.KeyRenderToken, Secret: true})
	require.NoError(t, err)

	stored, err := r.Secrets.Get(config.KeyRenderToken)
	require.NoError(t, err)
	assert.Equal(t, "rnd_token", stored)

	if store.Exists() {
		raw, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "rnd_token")
	}
}

func TestResolve_MigratesLegacyPlaintextSecret(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"project_name": "demo", "render_token": "old-plaintext"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(legacy), 0o644))

	store := config.NewStore(dir)
	cfg, err := store.Load()
	require.NoError(t, err)
	r := &Resolver{Config: cfg, Store: store, Secrets: secrets.NewFile(dir), Env: env.Vars{}}

	v, err := r.Resolve(context.Background(), Request{Key: config.KeyRenderToken, Secret: true})
	require.NoError(t, err)
	assert.Equal(t, "old-plaintext", v)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "render_token"))
	assert.Contains(t, string(raw), `"project_name": "demo"`)

	stored, err := r.Secrets.Get(config.KeyRenderToken)
	require.NoError(t, err)
	assert.Equal(t, "old-plaintext", stored)
}

func TestResolve_EmptyAnswer(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"   "}}
	r, store := newResolver(t, p, env.Vars{})

	_, err := r.Resolve(context.Background(), Request{Key: config.KeyRenderOrgID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCredential)
	assert.False(t, store.Exists())
}

func TestResolve_NoPrompter(t *testing.T) {
	r, _ := newResolver(t, nil, env.Vars{})
	r.Prompter = nil

	_, err := r.Resolve(context.Background(), Request{Key: config.KeyRenderOrgID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RENDER_ORG_ID")
}

func TestProjectEnv_OSOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RENDER_ORG_ID=from-file\nGCP_CLUSTER=file-cluster\n"), 0o644))
	t.Setenv("RENDER_ORG_ID", "from-os")

	vars, err := ProjectEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "from-os", vars["RENDER_ORG_ID"])
	assert.Equal(t, "file-cluster", vars["GCP_CLUSTER"])
}

func TestProjectEnv_MissingFile(t *testing.T) {
	vars, err := ProjectEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.NotNil(t, vars)
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "RENDER_TOKEN", EnvVar(config.KeyRenderToken))
}
