// Package serviceclient is the typed client for calls between control
// plane services. Calls authenticate with the calling service's api-key
// and address methods by NSID; request and response shapes come from
// pkg/lexicon, the same registry the servers validate against.
package serviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/internal/telemetry"
)

// Config configures a Client.
type Config struct {
	// Service is the calling service; its api-key authenticates every
	// outbound call.
	Service string

	// URLs maps peer service names to base URLs.
	URLs map[string]string

	// APIKeys maps service names to shared secrets. Only the calling
	// service's own entry is used.
	APIKeys map[string]string

	// Timeout bounds each call. Zero means 10s.
	Timeout time.Duration

	// HTTPClient overrides the transport, for tests.
	HTTPClient *http.Client
}

// Client makes authenticated XRPC calls to peer services.
//
// Queries (GET) are retried once on transport errors and 5xx responses.
// Procedures are never retried here; propagation work that must survive
// failures goes through the queue instead.
type Client struct {
	service    string
	urls       map[string]string
	token      string
	httpClient *http.Client
}

// New creates a Client from config.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		service:    cfg.Service,
		urls:       cfg.URLs,
		token:      fmt.Sprintf("api-key:%s:%s", cfg.Service, cfg.APIKeys[cfg.Service]),
		httpClient: client,
	}
}

// get performs a query call against a peer. params become the query
// string; a nil result discards the body.
func (c *Client) get(ctx context.Context, service, nsid string, params url.Values, result any) error {
	endpoint, err := c.endpoint(service, nsid)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	err = c.do(ctx, http.MethodGet, service, nsid, endpoint, nil, result)
	if err != nil && retryable(err) {
		logger.DebugCtx(ctx, "Retrying query", logger.Method(nsid), logger.Service(service), logger.Err(err))
		err = c.do(ctx, http.MethodGet, service, nsid, endpoint, nil, result)
	}
	return err
}

// post performs a procedure call against a peer.
func (c *Client) post(ctx context.Context, service, nsid string, body, result any) error {
	endpoint, err := c.endpoint(service, nsid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, service, nsid, endpoint, body, result)
}

func (c *Client) endpoint(service, nsid string) (string, error) {
	base, ok := c.urls[service]
	if !ok || base == "" {
		return "", fmt.Errorf("no URL configured for service %q", service)
	}
	return base + "/xrpc/" + nsid, nil
}

func (c *Client) do(ctx context.Context, method, service, nsid, endpoint string, body, result any) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanServiceCall)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.XRPCMethod(nsid), telemetry.Service(service))

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", nsid, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", nsid, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{nsid: nsid, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{nsid: nsid, err: err}
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(nsid, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode %s response: %w", nsid, err)
		}
	}
	return nil
}

// retryable reports whether a failed query is worth one more attempt:
// transport errors and upstream 5xx answers, never definitive 4xx ones.
func retryable(err error) bool {
	if _, ok := err.(*transportError); ok {
		return true
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode >= 500
	}
	return false
}
