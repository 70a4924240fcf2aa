// Package upstream implements ports.UpstreamFetcher against
// n8n-compatible workflow instance APIs.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/execgate/execgate/domain/cachekey"
	"github.com/execgate/execgate/domain/gateway"
	"github.com/execgate/execgate/ports"
)

const (
	executionsPath  = "/api/v1/executions"
	apiKeyHeader    = "X-N8N-API-KEY"
	requestIDHeader = "X-Request-Id"
	maxPayload      = 10 << 20 // 10MB
)

// Client fetches execution history from workflow instances.
type Client struct {
	httpClient *http.Client
	directory  ports.InstanceDirectory
	logger     zerolog.Logger
}

// Config contains configuration for the upstream client.
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// New creates a new upstream client.
func New(directory ports.InstanceDirectory, cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		directory:  directory,
		logger:     logger.With().Str("component", "upstream").Logger(),
	}
}

// Fetch calls the instance's executions endpoint and returns the raw
// payload. Errors carry a transient/permanent classification: network
// failures and 5xx/429 responses are transient (stale-fallback
// candidates), everything else about the request itself is permanent.
func (c *Client) Fetch(ctx context.Context, instanceID string, params cachekey.Params) ([]byte, error) {
	start := time.Now()

	inst, err := c.directory.Lookup(ctx, instanceID)
	if err != nil {
		return nil, &gateway.UpstreamError{Kind: gateway.UpstreamPermanent, Err: err}
	}

	base, err := url.Parse(inst.BaseURL)
	if err != nil {
		return nil, &gateway.UpstreamError{Kind: gateway.UpstreamPermanent, Err: fmt.Errorf("parse instance URL: %w", err)}
	}

	query := url.Values{}
	for name, value := range params {
		if value != "" {
			query.Set(name, value)
		}
	}
	target := base.ResolveReference(&url.URL{Path: executionsPath, RawQuery: query.Encode()})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &gateway.UpstreamError{Kind: gateway.UpstreamPermanent, Err: fmt.Errorf("create request: %w", err)}
	}
	// Correlation ID for matching our log lines with the instance's.
	requestID := uuid.NewString()
	req.Header.Set(apiKeyHeader, inst.APIKey)
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("instance", instanceID).Str("request_id", requestID).Msg("upstream request failed")
		return nil, &gateway.UpstreamError{Kind: gateway.UpstreamTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, &gateway.UpstreamError{Kind: gateway.UpstreamTransient, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str("instance", instanceID).
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Msg("upstream rejected request")
		return nil, &gateway.UpstreamError{
			Kind:   kind,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	c.logger.Debug().
		Str("instance", instanceID).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched executions")
	return body, nil
}

// classifyStatus maps HTTP status codes to error kinds. A 429 means
// the instance itself is throttling us, which is transient.
func classifyStatus(status int) gateway.UpstreamErrorKind {
	if status >= 500 || status == http.StatusTooManyRequests {
		return gateway.UpstreamTransient
	}
	return gateway.UpstreamPermanent
}

// Ensure interface compliance.
var _ ports.UpstreamFetcher = (*Client)(nil)
