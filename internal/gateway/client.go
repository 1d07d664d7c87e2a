package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/congo-pay/walletclient/internal/metrics"
)

const maxResponseBytes = 8 << 20

// TokenSource supplies the current access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// Refresher renews credentials after the backend rejected rejectedAccess with
// a 401. It is the optional refresh-on-401 extension point; the gateway never
// refreshes on its own.
type Refresher interface {
	Refresh(ctx context.Context, rejectedAccess string) error
}

// Validator is implemented by response types that check their own shape after
// decoding.
type Validator interface {
	Validate() error
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Body   any
	// Anonymous omits the Authorization header even when a session exists.
	Anonymous bool
	// Bearer overrides the stored access token for this call only.
	Bearer string
	Header http.Header
}

// Client is the request gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	refresher  Refresher
	metrics    *metrics.Gateway
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRefresher enables a single refresh-and-replay on 401 responses.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithMetrics records every call on m.
func WithMetrics(m *metrics.Gateway) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a gateway rooted at baseURL (for example
// http://127.0.0.1:8000/api/v1). tokens may be nil for a purely anonymous
// client.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// SetRefresher installs r after construction; the refresher usually needs the
// gateway itself.
func (c *Client) SetRefresher(r Refresher) {
	c.refresher = r
}

type response struct {
	status int
	body   []byte
	bearer string
}

// Do performs req and decodes a successful response into out (which may be
// nil). Any failure is returned as *RequestError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return &RequestError{Message: fmt.Sprintf("encode request: %v", err), Err: err}
		}
	}

	start := time.Now()
	err := c.do(ctx, req, payload, out)
	c.metrics.Observe(req.Method, req.Path, outcomeOf(err), time.Since(start))
	c.logger.Debug("wallet api call",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Duration("duration", time.Since(start)),
		slog.Int("status", StatusCode(err)),
		slog.Bool("ok", err == nil),
	)
	return err
}

func (c *Client) do(ctx context.Context, req Request, payload []byte, out any) error {
	resp, err := c.send(ctx, req, payload)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && c.canRefresh(req, resp) {
		if refreshErr := c.refresher.Refresh(ctx, resp.bearer); refreshErr == nil {
			// Replay the identical payload; a transfer keeps its idempotency key.
			if resp, err = c.send(ctx, req, payload); err != nil {
				return err
			}
		} else {
			c.logger.Warn("token refresh failed", slog.String("path", req.Path), slog.Any("error", refreshErr))
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return &RequestError{StatusCode: resp.status, Message: errorMessage(resp.status, resp.body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return schemaError(req.Path, resp.status, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return schemaError(req.Path, resp.status, err)
		}
	}
	return nil
}

func (c *Client) canRefresh(req Request, resp response) bool {
	return c.refresher != nil && !req.Anonymous && req.Bearer == "" && resp.bearer != ""
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return response{}, &RequestError{Message: fmt.Sprintf("build request: %v", err), Err: err}
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	bearer := c.bearerFor(ctx, req)
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return response{}, &RequestError{
			Message: fmt.Sprintf("request failed: %v", err),
			Err:     errors.Join(ErrTransport, err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, &RequestError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read response: %v", err),
			Err:        errors.Join(ErrTransport, err),
		}
	}

	return response{status: resp.StatusCode, body: raw, bearer: bearer}, nil
}

func (c *Client) bearerFor(ctx context.Context, req Request) string {
	if req.Anonymous {
		return ""
	}
	if req.Bearer != "" {
		return req.Bearer
	}
	if c.tokens == nil {
		return ""
	}
	token, ok := c.tokens.AccessToken(ctx)
	if !ok {
		return ""
	}
	return token
}

func schemaError(path string, status int, cause error) error {
	return &RequestError{
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected response from %s: %v", path, cause),
		Err:        errors.Join(ErrSchemaMismatch, cause),
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrSchemaMismatch):
		return metrics.OutcomeSchema
	case StatusCode(err) == 0 || errors.Is(err, ErrTransport):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeHTTPError
	}
}
