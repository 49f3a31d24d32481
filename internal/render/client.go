// Package render provides a client for the Render platform API.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Default endpoints.
const (
	DefaultBaseURL      = "https://api.render.com/v1"
	DefaultDashboardURL = "https://dashboard.render.com"
)

// Deploy statuses reported by the API.
const (
	StatusLive        = "live"
	StatusFailed      = "build_failed"
	StatusCanceled    = "canceled"
	StatusDeactivated = "deactivated"
)

var (
	// ErrDeployFailed is returned by WaitForLive when the deploy reaches a terminal failure status.
	ErrDeployFailed = errors.New("deploy failed")
	// ErrDeployTimeout is returned by WaitForLive when attempts run out before the deploy is live.
	ErrDeployTimeout = errors.New("deploy did not become live in time")
)

var failedStatuses = map[string]bool{
	"failed":            true,
	StatusFailed:        true,
	"update_failed":     true,
	"pre_deploy_failed": true,
	StatusCanceled:      true,
	StatusDeactivated:   true,
}

// Client talks to the Render API.
type Client struct {
	baseURL      string
	dashboardURL string
	token        string
	httpClient   *http.Client
	logger       *slog.Logger
}

// Config holds Render client configuration.
type Config struct {
	BaseURL      string // API base URL, e.g. "https://api.render.com/v1"
	DashboardURL string // used to build a service URL when the API does not return one
	Token        string // API key sent as a bearer token
	// Timeout bounds each request. Zero means no timeout; cancellation still
	// comes from the request context.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new Render client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	dashboardURL := strings.TrimRight(cfg.DashboardURL, "/")
	if dashboardURL == "" {
		dashboardURL = DefaultDashboardURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:      baseURL,
		dashboardURL: dashboardURL,
		token:        cfg.Token,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// =============================================================================
// Types
// =============================================================================

// APIError is returned for any non-success HTTP status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("render api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("render api returned status %d: %s", e.StatusCode, body)
}

// CreateServiceRequest is the payload of CreateService.
type CreateServiceRequest struct {
	OwnerID string
	// Blueprint is the JSON service definition sent in the "yaml" field.
	Blueprint []byte
	// ArchivePath is the project archive uploaded as "file".
	ArchivePath string
}

// Service is a created Render service.
type Service struct {
	ID         string `json:"id"`
	ServiceURL string `json:"service_url"`
}

// Deploy is one deploy of a service.
type Deploy struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Live reports whether the deploy is serving traffic.
func (d *Deploy) Live() bool { return d != nil && d.Status == StatusLive }

// Failed reports whether the deploy ended without going live.
func (d *Deploy) Failed() bool { return d != nil && failedStatuses[d.Status] }

// =============================================================================
// Operations
// =============================================================================

// CreateService uploads the project archive and blueprint and creates a service.
func (c *Client) CreateService(ctx context.Context, in CreateServiceRequest) (*Service, error) {
	body, contentType, err := multipartBody(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("submitting service to render", "url", req.URL.String(), "owner_id", in.OwnerID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var svc Service
	if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if svc.ID == "" {
		return nil, errors.New("render api response has no service id")
	}
	if svc.ServiceURL == "" {
		svc.ServiceURL = c.DashboardURL(svc.ID)
	}
	return &svc, nil
}

// LatestDeploy returns the most recent deploy of the service.
func (c *Client) LatestDeploy(ctx context.Context, serviceID string) (*Deploy, error) {
	endpoint := c.baseURL + "/services/" + url.PathEscape(serviceID) + "/deploys/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var d Deploy
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &d, nil
}

// WaitForLive polls the latest deploy every interval, at most attempts times,
// until it is live. Transport errors and 5xx responses are retried; other API
// errors and terminal failure statuses end the wait.
func (c *Client) WaitForLive(ctx context.Context, serviceID string, interval time.Duration, attempts int, onStatus func(*Deploy)) (*Deploy, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var last *Deploy
	backoff := wait.Backoff{Duration: interval, Factor: 1, Steps: attempts}
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		d, err := c.LatestDeploy(ctx, serviceID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return false, err
			}
			c.logger.Debug("deploy status unavailable, retrying", "service_id", serviceID, "error", err)
			return false, nil
		}
		last = d
		if onStatus != nil {
			onStatus(d)
		}
		if d.Failed() {
			return false, fmt.Errorf("%w: status %s", ErrDeployFailed, d.Status)
		}
		return d.Live(), nil
	})
	switch {
	case err == nil:
		return last, nil
	case wait.Interrupted(err) && ctx.Err() == nil:
		return last, fmt.Errorf("%w after %d attempts", ErrDeployTimeout, attempts)
	default:
		return last, err
	}
}

// DashboardURL returns the dashboard page of a service.
func (c *Client) DashboardURL(serviceID string) string {
	return c.dashboardURL + "/web/" + serviceID
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func multipartBody(in CreateServiceRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	f, err := os.Open(in.ArchivePath)
	if err != nil {
		return nil, "", fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	part, err := mw.CreateFormFile("file", filepath.Base(in.ArchivePath))
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy archive: %w", err)
	}
	if err := mw.WriteField("ownerId", in.OwnerID); err != nil {
		return nil, "", fmt.Errorf("write ownerId: %w", err)
	}
	if err := mw.WriteField("yaml", string(in.Blueprint)); err != nil {
		return nil, "", fmt.Errorf("write yaml: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
