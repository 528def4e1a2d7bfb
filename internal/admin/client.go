// Package admin is a client for the admin API of the runtime under test.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conformance/pkg/logging"
)

const adminSubsystem = "Admin"

// TerminationMode selects how an invocation is terminated.
type TerminationMode string

const (
	// Cancel lets the invocation run its compensations.
	Cancel TerminationMode = "Cancel"
	// Kill stops the invocation immediately.
	Kill TerminationMode = "Kill"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// RegisterRequest registers a service deployment reachable at URI.
type RegisterRequest struct {
	URI   string `json:"uri"`
	Force bool   `json:"force"`
}

// ServiceRef names a service discovered in a deployment.
type ServiceRef struct {
	Name     string `json:"name"`
	Revision int    `json:"revision,omitempty"`
}

// RegisterResponse is returned by RegisterDeployment.
type RegisterResponse struct {
	ID       string       `json:"id"`
	Services []ServiceRef `json:"services"`
}

// Deployment is an entry of ListDeployments.
type Deployment struct {
	ID       string       `json:"id"`
	URI      string       `json:"uri"`
	Services []ServiceRef `json:"services"`
}

// ModifyServiceRequest patches the configuration of a registered service.
// Nil fields are left untouched.
type ModifyServiceRequest struct {
	Public               *bool          `json:"public,omitempty"`
	IdempotencyRetention *time.Duration `json:"-"`
}

// MarshalJSON renders durations the way the admin API expects them.
func (r ModifyServiceRequest) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if r.Public != nil {
		body["public"] = *r.Public
	}
	if r.IdempotencyRetention != nil {
		body["idempotency_retention"] = r.IdempotencyRetention.String()
	}
	return json.Marshal(body)
}

// Client talks to the admin endpoint of the runtime under test.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger logs requests through l. Without it the client logs through the
// logger carried by the request context.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the admin endpoint at baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the admin URL the client was created for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health succeeds once the admin endpoint serves requests.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// RegisterDeployment registers the service deployment reachable at uri.
func (c *Client) RegisterDeployment(ctx context.Context, uri string, force bool) (RegisterResponse, error) {
	var resp RegisterResponse
	err := c.do(ctx, http.MethodPost, "/deployments", RegisterRequest{URI: uri, Force: force}, &resp)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("registering deployment %s: %w", uri, err)
	}
	c.log(ctx).Debug(ctx, adminSubsystem, "Registered deployment %s as %s", uri, resp.ID)
	return resp, nil
}

// ListDeployments returns every registered deployment.
func (c *Client) ListDeployments(ctx context.Context) ([]Deployment, error) {
	var resp struct {
		Deployments []Deployment `json:"deployments"`
	}
	if err := c.do(ctx, http.MethodGet, "/deployments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Deployments, nil
}

// ModifyService patches the configuration of a registered service.
func (c *Client) ModifyService(ctx context.Context, service string, req ModifyServiceRequest) error {
	return c.do(ctx, http.MethodPatch, "/services/"+url.PathEscape(service), req, nil)
}

// TerminateInvocation cancels or kills a running invocation.
func (c *Client) TerminateInvocation(ctx context.Context, invocationID string, mode TerminationMode) error {
	path := "/invocations/" + url.PathEscape(invocationID) + "?mode=" + url.QueryEscape(string(mode))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) log(ctx context.Context) *logging.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logging.FromContext(ctx)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log(ctx).Debug(ctx, adminSubsystem, "%s %s", method, fullURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, URL: fullURL, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response of %s %s: %w", method, fullURL, err)
		}
	}
	return nil
}
