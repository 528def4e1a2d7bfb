package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conformance/pkg/logging"
)

const (
	ingressSubsystem = "Ingress"

	// IdempotencyKeyHeader carries the client supplied idempotency key.
	IdempotencyKeyHeader = "idempotency-key"

	// statusNotReady is returned by the output endpoint while the invocation
	// has not completed yet.
	statusNotReady = 470
)

// ErrRequestTimeout is returned when a single request exceeds the client's
// request timeout while the caller's context is still live. Polling loops
// typically treat it as transient.
var ErrRequestTimeout = errors.New("ingress request timed out")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// Target identifies a handler of a service. Key is only set for keyed
// services (virtual objects and workflows).
type Target struct {
	Service string
	Key     string
	Handler string
}

func (t Target) String() string {
	if t.Key == "" {
		return t.Service + "/" + t.Handler
	}
	return t.Service + "/" + t.Key + "/" + t.Handler
}

func (t Target) path() string {
	parts := []string{url.PathEscape(t.Service)}
	if t.Key != "" {
		parts = append(parts, url.PathEscape(t.Key))
	}
	parts = append(parts, url.PathEscape(t.Handler))
	return "/" + strings.Join(parts, "/")
}

// SendStatus reports whether a send created a new invocation.
type SendStatus string

const (
	Accepted           SendStatus = "Accepted"
	PreviouslyAccepted SendStatus = "PreviouslyAccepted"
)

// SendResponse is returned by Send.
type SendResponse struct {
	InvocationID string     `json:"invocationId"`
	Status       SendStatus `json:"status"`
}

// SendOptions tunes a one-way invocation.
type SendOptions struct {
	// IdempotencyKey deduplicates repeated sends to the same target.
	IdempotencyKey string
	// Delay postpones the execution of the invocation.
	Delay time.Duration
}

// Client talks to the ingress endpoint of the runtime under test.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestTimeout bounds every single request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithLogger logs requests through l. Without it the client logs through the
// logger carried by the request context.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the ingress endpoint at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the ingress URL the client was created for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call performs a request-response invocation and decodes the result into out.
func (c *Client) Call(ctx context.Context, target Target, req, out any) error {
	_, err := c.do(ctx, http.MethodPost, target.path(), nil, req, out)
	return err
}

// CallIdempotent performs a request-response invocation carrying an idempotency key.
func (c *Client) CallIdempotent(ctx context.Context, target Target, idempotencyKey string, req, out any) error {
	headers := http.Header{}
	headers.Set(IdempotencyKeyHeader, idempotencyKey)
	_, err := c.do(ctx, http.MethodPost, target.path(), headers, req, out)
	return err
}

// Send performs a one-way invocation.
func (c *Client) Send(ctx context.Context, target Target, req any, opts SendOptions) (SendResponse, error) {
	path := target.path() + "/send"
	if opts.Delay > 0 {
		path += "?delay=" + url.QueryEscape(opts.Delay.String())
	}
	headers := http.Header{}
	if opts.IdempotencyKey != "" {
		headers.Set(IdempotencyKeyHeader, opts.IdempotencyKey)
	}
	var resp SendResponse
	if _, err := c.do(ctx, http.MethodPost, path, headers, req, &resp); err != nil {
		return SendResponse{}, err
	}
	if resp.InvocationID == "" {
		return SendResponse{}, fmt.Errorf("send to %s: response carries no invocation id", target)
	}
	return resp, nil
}

// Attach blocks until the invocation completes and decodes its result into out.
func (c *Client) Attach(ctx context.Context, invocationID string, out any) error {
	_, err := c.do(ctx, http.MethodGet, invocationPath(invocationID)+"/attach", nil, nil, out)
	return err
}

// AttachIdempotent attaches to the invocation started with idempotencyKey against target.
func (c *Client) AttachIdempotent(ctx context.Context, target Target, idempotencyKey string, out any) error {
	_, err := c.do(ctx, http.MethodGet, idempotentPath(target, idempotencyKey)+"/attach", nil, nil, out)
	return err
}

// Output fetches the result of an invocation without blocking. It reports
// false while the invocation has not completed.
func (c *Client) Output(ctx context.Context, invocationID string, out any) (bool, error) {
	return c.output(ctx, invocationPath(invocationID)+"/output", out)
}

// OutputIdempotent is Output for an invocation identified by its idempotency key.
func (c *Client) OutputIdempotent(ctx context.Context, target Target, idempotencyKey string, out any) (bool, error) {
	return c.output(ctx, idempotentPath(target, idempotencyKey)+"/output", out)
}

func (c *Client) output(ctx context.Context, path string, out any) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, path, nil, nil, out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == statusNotReady {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func invocationPath(id string) string {
	return "/restate/invocation/" + url.PathEscape(id)
}

func idempotentPath(target Target, idempotencyKey string) string {
	return "/restate/invocation" + target.path() + "/" + url.PathEscape(idempotencyKey)
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, out any) (int, error) {
	reqCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.log(ctx).Debug(ctx, ingressSubsystem, "%s %s", method, fullURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w after %s: %s %s", ErrRequestTimeout, c.requestTimeout, method, fullURL)
		}
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return resp.StatusCode, fmt.Errorf("%w after %s: %s %s", ErrRequestTimeout, c.requestTimeout, method, fullURL)
		}
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{
			Method:     method,
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response of %s %s: %w", method, fullURL, err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts the message of an error body, falling back to the raw body.
func (c *Client) log(ctx context.Context) *logging.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logging.FromContext(ctx)
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
