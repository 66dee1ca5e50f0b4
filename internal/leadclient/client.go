// Package leadclient posts lead payloads to the lead service submission endpoint.
package leadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNetworkUnreachable reports a transport-level failure: no HTTP response arrived.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrDeliveryFailed reports a non-2xx answer from the endpoint.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// SubmitPath is the endpoint path relative to the upstream base URL.
const SubmitPath = "/api/leads"

// maxResponseBytes caps how much of a response body is retained.
const maxResponseBytes = 1 << 20

// StatusError carries the status of a rejected delivery. It matches ErrDeliveryFailed.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrDeliveryFailed, e.StatusCode)
}

// Is lets errors.Is(err, ErrDeliveryFailed) match.
func (e *StatusError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// Response is the decoded success body.
type Response struct {
	StatusCode int    `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	LeadID     int64  `json:"leadId"`
	Score      int    `json:"score"`
	// Raw is the body exactly as received.
	Raw []byte `json:"-"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	APIKey     string
}

// Client submits payloads byte-for-byte to <BaseURL>/api/leads.
type Client struct {
	endpoint string
	http     *http.Client
	apiKey   string
}

// New builds a Client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("leadclient: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint: base + SubmitPath,
		http:     httpClient,
		apiKey:   cfg.APIKey,
	}, nil
}

// Endpoint returns the absolute submission URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit posts payload and decodes a 2xx answer.
func (c *Client) Submit(ctx context.Context, payload []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrNetworkUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %w", ErrNetworkUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	out := Response{StatusCode: resp.StatusCode, Raw: body}
	if len(bytes.TrimSpace(body)) > 0 {
		// A 2xx with an unexpected body still counts as delivered.
		_ = json.Unmarshal(body, &out)
	}
	out.StatusCode = resp.StatusCode
	out.Raw = body
	return out, nil
}

// Deliver adapts Submit to the replay contract: only the outcome matters.
func (c *Client) Deliver(ctx context.Context, payload []byte) error {
	_, err := c.Submit(ctx, payload)
	return err
}

// IsNetworkError reports whether err means the endpoint was not reached.
func IsNetworkError(err error) bool {
	if errors.Is(err, ErrNetworkUnreachable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
