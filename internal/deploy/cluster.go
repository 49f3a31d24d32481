package deploy

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/tridyme/tridyme-cli/internal/config"
	"github.com/tridyme/tridyme-cli/internal/credentials"
	"github.com/tridyme/tridyme-cli/internal/manifest"
	"github.com/tridyme/tridyme-cli/internal/pipeline"
	"github.com/tridyme/tridyme-cli/internal/toolchain"
)

// Cluster step names.
const (
	StepCheckToolchain            = "CheckToolchain"
	StepResolveClusterCredentials = "ResolveClusterCredentials"
	StepAuthenticate              = "Authenticate"
	StepBuildImage                = "BuildImage"
	StepConfigureRegistryAuth     = "ConfigureRegistryAuth"
	StepPushImage                 = "PushImage"
	StepWriteManifest             = "WriteManifest"
	StepApplyManifest             = "ApplyManifest"
)

// ClusterTools are required on PATH for a cluster deployment.
var ClusterTools = []string{toolchain.GCloud, toolchain.Kubectl, toolchain.Docker}

var clusterCredentials = []credentials.Request{
	{Key: config.KeyGCPProject, Prompt: "GCP project ID"},
	{Key: config.KeyGCPCluster, Prompt: "GKE cluster name"},
	{Key: config.KeyGCPRepository, Prompt: "Artifact Registry repository"},
}

// Cluster deploys a container image to GKE.
type Cluster struct {
	deps Deps
}

// Name implements Target.
func (c *Cluster) Name() string { return TargetCluster }

// Execute implements Target. Steps are not rolled back when a later step fails.
func (c *Cluster) Execute(ctx context.Context, cfg *config.ProjectConfig) pipeline.Result {
	logger := c.deps.logger(c.Name())
	settings := c.deps.settings()
	resolver := c.deps.resolver(cfg, logger)
	tc := toolchain.New(c.deps.Runner, c.deps.dir())

	// effective carries environment overrides without persisting them.
	effective := cfg.Clone()
	var image string
	manifestFile := settings.Cluster.ManifestFile
	if manifestFile == "" {
		manifestFile = "kubernetes-deploy.yaml"
	}

	p := pipeline.New(c.Name(), c.deps.Reporter).Then(
		pipeline.Step{Name: StepCheckToolchain, Run: func(context.Context) error {
			return toolchain.Check(logger, c.deps.LookPath, ClusterTools...)
		}},
		pipeline.Step{Name: StepResolveClusterCredentials, Run: func(ctx context.Context) error {
			if err := requireWorkloadName(effective); err != nil {
				return err
			}
			for _, req := range clusterCredentials {
				v, err := resolver.Resolve(ctx, req)
				if err != nil {
					return err
				}
				effective.Set(req.Key, v)
			}
			if v, ok := c.deps.Env.Lookup(credentials.EnvVar(config.KeyGCPRegion)); ok {
				effective.Set(config.KeyGCPRegion, v)
			}
			image = manifest.ImageRef(effective)
			if err := manifest.ValidateImageRef(image); err != nil {
				return fmt.Errorf("%w: %v", ErrPrecondition, err)
			}
			logger.Info("deploying image", "image", image, "cluster", effective.GCPCluster(), "region", effective.GCPRegion())
			return nil
		}},
		pipeline.Step{Name: StepAuthenticate, Run: func(ctx context.Context) error {
			return tc.GetClusterCredentials(ctx, effective.GCPCluster(), effective.GCPRegion(), effective.GCPProject())
		}},
		pipeline.Step{Name: StepBuildImage, Run: func(ctx context.Context) error {
			return tc.DockerBuild(ctx, image)
		}},
		pipeline.Step{Name: StepConfigureRegistryAuth, Run: func(ctx context.Context) error {
			return tc.ConfigureDocker(ctx, manifest.RegistryHost(effective.GCPRegion()))
		}},
		pipeline.Step{Name: StepPushImage, Run: func(ctx context.Context) error {
			return tc.DockerPush(ctx, image)
		}},
		pipeline.Step{Name: StepWriteManifest, Run: func(context.Context) error {
			data, err := manifest.Cluster(effective, image)
			if err != nil {
				return err
			}
			return writeFile(c.deps.projectPath(manifestFile), data)
		}},
		pipeline.Step{Name: StepApplyManifest, Run: func(ctx context.Context) error {
			return tc.KubectlApply(ctx, manifestFile)
		}},
	)

	res := p.Run(ctx)
	if res.Completed {
		logger.Info("cluster deployment applied", "image", image, "path", "/"+strings.TrimSpace(effective.ProjectName())+"/")
	}
	return res
}

// requireWorkloadName checks that project_name can name the Deployment,
// Service and Ingress.
func requireWorkloadName(cfg *config.ProjectConfig) error {
	if err := requireProjectName(cfg); err != nil {
		return err
	}
	if errs := validation.IsDNS1123Label(cfg.ProjectName()); len(errs) > 0 {
		return fmt.Errorf("%w: project_name %q is not a valid Kubernetes name: %s", ErrPrecondition, cfg.ProjectName(), strings.Join(errs, "; "))
	}
	return nil
}
