package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Known project configuration keys.
const (
	KeyProjectName      = "project_name"
	KeyGCPProject       = "gcp_project"
	KeyGCPRegion        = "gcp_region"
	KeyGCPCluster       = "gcp_cluster"
	KeyGCPRepository    = "gcp_repository"
	KeyRenderToken      = "render_token"
	KeyRenderOrgID      = "render_org_id"
	KeyRenderDomain     = "render_domain"
	KeyRenderServiceID  = "render_service_id"
	KeyRenderServiceURL = "render_service_url"
)

// DefaultRegion is the GCP region used when none is configured.
const DefaultRegion = "europe-west1"

// Defaults returns the built-in project configuration values.
func Defaults() map[string]string {
	return map[string]string{
		KeyProjectName:   "",
		KeyGCPProject:    "",
		KeyGCPRegion:     DefaultRegion,
		KeyGCPCluster:    "",
		KeyGCPRepository: "",
	}
}

// ProjectConfig is the flat, schema-open key/value configuration of one project.
// Keys it does not know about are kept untouched so newer files survive a
// load/save cycle by an older binary.
type ProjectConfig struct {
	values map[string]any
}

// NewProjectConfig returns a configuration holding only the defaults.
func NewProjectConfig() *ProjectConfig {
	cfg := &ProjectConfig{values: make(map[string]any)}
	for k, v := range Defaults() {
		cfg.values[k] = v
	}
	return cfg
}

// Get returns the string value for key, or "" when the key is absent.
// Non-string values are rendered in their JSON form.
func (c *ProjectConfig) Get(key string) string {
	if c == nil {
		return ""
	}
	raw, ok := c.values[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// Has reports whether key is present with a non-empty value.
func (c *ProjectConfig) Has(key string) bool {
	return strings.TrimSpace(c.Get(key)) != ""
}

// Set stores a string value under key.
func (c *ProjectConfig) Set(key, value string) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Delete removes key. Defaults reappear as empty on the next load.
func (c *ProjectConfig) Delete(key string) {
	delete(c.values, key)
}

// Keys returns every key in sorted order.
func (c *ProjectConfig) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Clone returns a deep-enough copy: top-level keys are copied, nested values shared.
func (c *ProjectConfig) Clone() *ProjectConfig {
	out := &ProjectConfig{values: make(map[string]any, len(c.values))}
	maps.Copy(out.values, c.values)
	return out
}

// Equal reports whether both configurations hold the same rendered values.
func (c *ProjectConfig) Equal(other *ProjectConfig) bool {
	if !slices.Equal(c.Keys(), other.Keys()) {
		return false
	}
	for _, k := range c.Keys() {
		if c.Get(k) != other.Get(k) {
			return false
		}
	}
	return true
}

// ProjectName returns the configured project name.
func (c *ProjectConfig) ProjectName() string { return c.Get(KeyProjectName) }

// GCPProject returns the GCP project id.
func (c *ProjectConfig) GCPProject() string { return c.Get(KeyGCPProject) }

// GCPRegion returns the GCP region, falling back to DefaultRegion.
func (c *ProjectConfig) GCPRegion() string {
	if r := strings.TrimSpace(c.Get(KeyGCPRegion)); r != "" {
		return r
	}
	return DefaultRegion
}

// GCPCluster returns the GKE cluster name.
func (c *ProjectConfig) GCPCluster() string { return c.Get(KeyGCPCluster) }

// GCPRepository returns the Artifact Registry repository name.
func (c *ProjectConfig) GCPRepository() string { return c.Get(KeyGCPRepository) }

// MarshalJSON renders the configuration as a flat JSON object with sorted keys.
func (c *ProjectConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}
