package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tridyme/tridyme-cli/internal/config"
)

// Render service defaults.
const (
	ServiceType       = "web"
	ServiceEnv        = "python"
	ServicePlan       = "starter"
	BuildCommand      = "pip install -r backend/requirements.txt"
	StartCommand      = "cd backend && uvicorn main:app --host 0.0.0.0 --port $PORT"
	StaticPublishPath = "./frontend/build"
)

// EnvVar is one environment variable of a Render service.
type EnvVar struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ServiceDefinition describes one Render service.
type ServiceDefinition struct {
	Type              string   `json:"type" yaml:"type"`
	Name              string   `json:"name" yaml:"name"`
	Env               string   `json:"env" yaml:"env"`
	Plan              string   `json:"plan" yaml:"plan"`
	BuildCommand      string   `json:"buildCommand" yaml:"buildCommand"`
	StartCommand      string   `json:"startCommand" yaml:"startCommand"`
	EnvVars           []EnvVar `json:"envVars" yaml:"envVars"`
	StaticPublishPath string   `json:"staticPublishPath" yaml:"staticPublishPath"`
	Domains           []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// Blueprint is the Render service definition document.
type Blueprint struct {
	Services []ServiceDefinition `json:"services" yaml:"services"`
}

// Platform returns the blueprint for the project. domain is attached only when non-empty.
func Platform(cfg *config.ProjectConfig, domain string) Blueprint {
	svc := ServiceDefinition{
		Type:              ServiceType,
		Name:              cfg.ProjectName(),
		Env:               ServiceEnv,
		Plan:              ServicePlan,
		BuildCommand:      BuildCommand,
		StartCommand:      StartCommand,
		EnvVars:           []EnvVar{{Key: "ENVIRONMENT", Value: "production"}},
		StaticPublishPath: StaticPublishPath,
	}
	if domain != "" {
		svc.Domains = []string{domain}
	}
	return Blueprint{Services: []ServiceDefinition{svc}}
}

// YAML encodes the blueprint as written to render.yaml.
func (b Blueprint) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode blueprint: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize blueprint: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON encodes the blueprint as sent to the Render API.
func (b Blueprint) JSON() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode blueprint: %w", err)
	}
	return data, nil
}
