package odata

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single fetch when the config leaves it unset.
const DefaultTimeout = 30 * time.Second

// Credentials are sent as HTTP basic auth on every request.
type Credentials struct {
	Username string
	Password string
}

// ClientConfig contains the data source client configuration.
type ClientConfig struct {
	Credentials Credentials
	// VerifyTLS=false skips certificate validation. Development only.
	VerifyTLS bool
	Timeout   time.Duration
	// Headers are added to every request (IvUser, Operation, ...).
	Headers map[string]string
}

// UpstreamObserver receives one observation per upstream call.
type UpstreamObserver interface {
	RecordUpstreamRequest(outcome string, duration time.Duration)
}

// Client performs authenticated GETs against the OData service.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	headers    map[string]string
	timeout    time.Duration
	observer   UpstreamObserver
	logger     zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The TLS setting from the
// config is not applied to a client supplied this way.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithObserver attaches an upstream metrics hook.
func WithObserver(o UpstreamObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a data source client.
func NewClient(cfg ClientConfig, logger zerolog.Logger, opts ...Option) *Client {
	logger = logger.With().Str("component", "odata_client").Logger()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in
		logger.Warn().Msg("TLS certificate verification is disabled for the data source; do not use in production")
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport},
		creds:      cfg.Credentials,
		headers:    cfg.Headers,
		timeout:    timeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Debug().
		Str("username", cfg.Credentials.Username).
		Bool("verify_tls", cfg.VerifyTLS).
		Dur("timeout", timeout).
		Int("extra_headers", len(cfg.Headers)).
		Msg("Data source client created")

	return c
}

// Fetch issues a single GET for rawURL and returns the JSON body.
// There are no retries; the first failure is returned as an *Error.
func (c *Client) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newTransportError(err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	req.Header.Set("Accept", "application/json")
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("error", start)
		c.logger.Error().
			Err(err).
			Str("url", rawURL).
			Dur("duration", time.Since(start)).
			Msg("Data source request failed")
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("error", start)
		return nil, newTransportError(err)
	}
	c.observe(statusClass(resp.StatusCode), start)

	c.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Data source responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newRequestFailed(resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return nil, newMalformedResponse(resp.StatusCode, body)
	}

	return json.RawMessage(body), nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.RecordUpstreamRequest(outcome, time.Since(start))
	}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
