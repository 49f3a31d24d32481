package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/deploy"
	"github.com/tridyme/tridyme-cli/internal/logging"
	"github.com/tridyme/tridyme-cli/internal/runner/runnertest"
	"github.com/tridyme/tridyme-cli/internal/secrets"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// scriptedPrompter answers prompts by label and records the defaults it was offered.
type scriptedPrompter struct {
	answers  map[string]string
	defaults map[string]string
}

func (p *scriptedPrompter) Prompt(_ context.Context, label string, _ bool, def string) (string, error) {
	if p.defaults == nil {
		p.defaults = map[string]string{}
	}
	p.defaults[label] = def
	v, ok := p.answers[label]
	if !ok {
		return "", errors.New("unexpected prompt: " + label)
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

func allTools(string) (string, error) { return "/usr/bin/tool", nil }

type harness struct {
	dir      string
	outputs  string
	recorder *runnertest.Recorder
	prompter *scriptedPrompter
	rt       *externals
	stdout   bytes.Buffer
	stderr   bytes.Buffer
}

func newHarness(t *testing.T, values map[string]string) *harness {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())
	t.Setenv("TRIDYME_SECRETS_BACKEND", "file")
	for _, key := range []string{"GCP_PROJECT", "GCP_REGION", "GCP_CLUSTER", "GCP_REPOSITORY", "PROJECT_NAME", "RENDER_TOKEN", "RENDER_ORG_ID"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	dir := t.TempDir()
	if values != nil {
		cfg := config.NewProjectConfig()
		for k, v := range values {
			cfg.Set(k, v)
		}
		require.NoError(t, config.NewStore(dir).Save(cfg))
	}

	outputs := filepath.Join(t.TempDir(), "github-output")
	t.Setenv("GITHUB_OUTPUT", outputs)

	h := &harness{
		dir:      dir,
		outputs:  outputs,
		recorder: &runnertest.Recorder{},
		prompter: &scriptedPrompter{answers: map[string]string{}},
	}
	h.rt = &externals{
		runner:   h.recorder,
		lookPath: allTools,
		prompter: h.prompter,
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	cmd := newRootCommand(&Options{}, logging.Discard(), h.rt)
	cmd.SetOut(&h.stdout)
	cmd.SetErr(&h.stderr)
	base := []string{"--config", filepath.Join(h.dir, "missing-settings.yaml"), "--dir", h.dir}
	cmd.SetArgs(append(base, args...))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) config(t *testing.T) *config.ProjectConfig {
	t.Helper()
	cfg, err := config.NewStore(h.dir).Load()
	require.NoError(t, err)
	return cfg
}

var clusterValues = map[string]string{
	config.KeyProjectName:   "structure-app",
	config.KeyGCPProject:    "p1",
	config.KeyGCPCluster:    "c1",
	config.KeyGCPRepository: "repo",
}

func TestConfigureFlagsPersistValues(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.run(t, "configure", "--project-name", "beam", "--gcp-region", "us-east1"))

	cfg := h.config(t)
	assert.Equal(t, "beam", cfg.ProjectName())
	assert.Equal(t, "us-east1", cfg.GCPRegion())
	assert.Empty(t, h.prompter.defaults)
	assert.Contains(t, h.stdout.String(), "project_name:")
	assert.Contains(t, h.stdout.String(), "beam")
}

func TestConfigurePromptsWithCurrentValues(t *testing.T) {
	h := newHarness(t, map[string]string{config.KeyProjectName: "old"})
	h.prompter.answers = map[string]string{
		"Project name":                 "new",
		"GCP project ID":               "p1",
		"GCP region":                   "",
		"GKE cluster name":             "c1",
		"Artifact Registry repository": "repo",
	}

	require.NoError(t, h.run(t, "configure"))

	assert.Equal(t, "old", h.prompter.defaults["Project name"])
	assert.Equal(t, config.DefaultRegion, h.prompter.defaults["GCP region"])
	cfg := h.config(t)
	assert.Equal(t, "new", cfg.ProjectName())
	assert.Equal(t, config.DefaultRegion, cfg.GCPRegion())
	assert.Equal(t, "repo", cfg.GCPRepository())
}

func TestConfigureSetKeepsTokenOutOfConfig(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.run(t, "configure", "--set", "render_token=tok,render_org_id=own"))

	raw, err := os.ReadFile(filepath.Join(h.dir, config.FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok")
	assert.Equal(t, "own", h.config(t).Get(config.KeyRenderOrgID))

	v, err := secrets.NewFile(h.dir).Get(config.KeyRenderToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}

func TestConfigureRejectsMalformedSet(t *testing.T) {
	h := newHarness(t, nil)
	require.Error(t, h.run(t, "configure", "--set", "novalue"))
}

func TestDeployClusterRunsPipeline(t *testing.T) {
	h := newHarness(t, clusterValues)

	require.NoError(t, h.run(t, "deploy"))

	image := "europe-west1-docker.pkg.dev/p1/repo/structure-app:latest"
	assert.Equal(t, []string{
		"gcloud container clusters get-credentials c1 --region europe-west1 --project p1",
		"docker build -t " + image + " .",
		"gcloud auth configure-docker europe-west1-docker.pkg.dev --quiet",
		"docker push " + image,
		"kubectl apply -f kubernetes-deploy.yaml",
	}, h.recorder.Lines())
	assert.FileExists(t, filepath.Join(h.dir, "kubernetes-deploy.yaml"))
	assert.Contains(t, h.stdout.String(), "Deployment succeeded")

	raw, err := os.ReadFile(h.outputs)
	require.NoError(t, err)
	assert.Equal(t, "project_name=structure-app\nstatus=succeeded\ntarget=gke\n", string(raw))
}

func TestDeployFailureReturnsStepError(t *testing.T) {
	h := newHarness(t, clusterValues)
	h.recorder.FailOn = "docker push"

	err := h.run(t, "deploy", "--platform", "gke")

	require.Error(t, err)
	assert.Contains(t, err.Error(), deploy.StepPushImage)
	assert.Len(t, h.recorder.Lines(), 4)
	assert.Contains(t, h.stdout.String(), "Deployment failed at step "+deploy.StepPushImage)

	raw, readErr := os.ReadFile(h.outputs)
	require.NoError(t, readErr)
	assert.Contains(t, string(raw), "failed_step="+deploy.StepPushImage+"\n")
	assert.Contains(t, string(raw), "status=failed\n")
}

func TestDeployUnknownPlatform(t *testing.T) {
	h := newHarness(t, clusterValues)

	err := h.run(t, "deploy", "--platform", "heroku")

	require.ErrorIs(t, err, deploy.ErrUnknownTarget)
	assert.Empty(t, h.recorder.Lines())
}

func TestDeployCorruptConfigAbortsBeforeAnyStep(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, config.FileName), []byte("{not json"), 0o644))

	err := h.run(t, "deploy")

	require.ErrorIs(t, err, config.ErrConfigCorrupt)
	assert.Empty(t, h.recorder.Lines())
	assert.Empty(t, h.stdout.String())
}

func TestBuildRunsFrontendThenDocker(t *testing.T) {
	h := newHarness(t, clusterValues)

	require.NoError(t, h.run(t, "build", "--docker"))

	cmds := h.recorder.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "npm run build", cmds[0].String())
	assert.Equal(t, filepath.Join(h.dir, "frontend"), cmds[0].Dir)
	assert.Equal(t, "docker build -t structure-app:latest .", cmds[1].String())
}

func TestBuildStopsWhenFrontendFails(t *testing.T) {
	h := newHarness(t, clusterValues)
	h.recorder.FailOn = "npm"

	require.Error(t, h.run(t, "build", "--docker", "--tag", "custom:1"))
	assert.Equal(t, []string{"npm run build"}, h.recorder.Lines())
}

func TestBuildDockerNeedsName(t *testing.T) {
	h := newHarness(t, nil)

	require.Error(t, h.run(t, "build", "--docker"))
	assert.Empty(t, h.recorder.Lines())
}

func TestManifestPrintsClusterStream(t *testing.T) {
	h := newHarness(t, clusterValues)

	require.NoError(t, h.run(t, "manifest"))

	out := h.stdout.String()
	assert.Equal(t, 3, strings.Count(out, "kind: "))
	assert.Contains(t, out, "image: europe-west1-docker.pkg.dev/p1/repo/structure-app:latest")
	assert.NoFileExists(t, filepath.Join(h.dir, "kubernetes-deploy.yaml"))
}

func TestManifestDiff(t *testing.T) {
	h := newHarness(t, clusterValues)
	require.NoError(t, h.run(t, "manifest"))
	generated := h.stdout.String()
	path := filepath.Join(h.dir, "kubernetes-deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(generated), 0o644))

	require.NoError(t, h.run(t, "manifest", "--diff"))
	assert.Empty(t, h.stdout.String())

	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(generated, "replicas: 1", "replicas: 3", 1)), 0o644))
	require.NoError(t, h.run(t, "manifest", "--diff"))
	assert.Contains(t, h.stdout.String(), "-  replicas: 3")
	assert.Contains(t, h.stdout.String(), "+  replicas: 1")
}

func TestManifestPlatformUsesSavedDomain(t *testing.T) {
	h := newHarness(t, map[string]string{
		config.KeyProjectName:  "structure-app",
		config.KeyRenderDomain: "app.example.com",
	})

	require.NoError(t, h.run(t, "manifest", "--platform", "render"))

	assert.Contains(t, h.stdout.String(), "app.example.com")
	assert.Contains(t, h.stdout.String(), "name: structure-app")
}

func TestDoctorReportsMissingTools(t *testing.T) {
	h := newHarness(t, nil)
	h.rt.lookPath = func(name string) (string, error) {
		if name == toolchain.Kubectl {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	err := h.run(t, "doctor")

	require.ErrorIs(t, err, toolchain.ErrToolchainMissing)
	var missing *toolchain.MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{toolchain.Kubectl}, missing.Tools)
	assert.Contains(t, h.stdout.String(), "missing")
}

func TestDoctorAllPresent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(t, "doctor"))
	assert.Contains(t, h.stdout.String(), "gke:")
	assert.Contains(t, h.stdout.String(), "render:")
}

func TestStatusWithoutServiceShowsConfig(t *testing.T) {
	h := newHarness(t, clusterValues)

	require.NoError(t, h.run(t, "status"))

	assert.Contains(t, h.stdout.String(), "structure-app")
	assert.Contains(t, h.stdout.String(), "(not set)")
	assert.NotContains(t, h.stdout.String(), "deploy_status")
}

func TestStatusShowsLatestDeploy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/srv_1/deploys/latest" || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unexpected", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "dep_1", "status": "live"})
	}))
	defer srv.Close()

	h := newHarness(t, map[string]string{
		config.KeyProjectName:      "structure-app",
		config.KeyRenderServiceID:  "srv_1",
		config.KeyRenderServiceURL: "https://structure-app.onrender.com",
	})
	require.NoError(t, secrets.NewFile(h.dir).Set(config.KeyRenderToken, "tok"))
	t.Setenv("TRIDYME_RENDER_API_URL", srv.URL)

	require.NoError(t, h.run(t, "status"))

	out := h.stdout.String()
	assert.Contains(t, out, "https://structure-app.onrender.com")
	assert.Contains(t, out, "dep_1")
	assert.Contains(t, out, "live")
}

func TestStatusWaitRequiresService(t *testing.T) {
	h := newHarness(t, clusterValues)
	require.Error(t, h.run(t, "status", "--wait"))
}
