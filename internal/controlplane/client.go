// Package controlplane implements a retrying JSON-over-HTTPS client that
// speaks to the remote authensor service for anything the local gateway
// cannot decide on its own.
//
// The client retries on 429/5xx responses plus a named set of transient
// connection errors, honoring a server-supplied Retry-After header when
// present rather than always following a fixed backoff curve. Throttling
// of outbound calls uses golang.org/x/time/rate, applied here to the
// client's own outbound call rate rather than inbound request shaping.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/safeclaw/core/pkg/envelope"
)

const (
	defaultAttemptTimeout = 10 * time.Second
	maxRetries            = 3
	initialBackoff        = 1 * time.Second
)

// Client speaks to the control plane's HTTP API.
type Client struct {
	baseURL     string
	bearerToken string
	installID   string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (tests inject one
// pointed at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outbound calls to r per second, bursting up to b.
func WithRateLimit(r rate.Limit, b int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, b) }
}

// New builds a Client for baseURL, authenticating with bearerToken and
// identifying itself as installID in evaluate envelopes.
func New(baseURL, bearerToken, installID string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		installID:   installID,
		httpClient:  &http.Client{Timeout: defaultAttemptTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EvaluateRequest is the exact, minimal payload the control plane accepts
// for `evaluate` — no other fields may be attached.
type EvaluateRequest struct {
	Action    envelope.Envelope `json:"action"`
	Principal Principal         `json:"principal"`
	Timestamp string            `json:"timestamp"`
}

// Principal identifies the caller to the control plane.
type Principal struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EvaluateResponse is the control plane's verdict for one envelope.
type EvaluateResponse struct {
	Outcome   envelope.Outcome `json:"outcome"`
	Reason    string           `json:"reason"`
	ReceiptID string           `json:"receiptId,omitempty"`
}

// Receipt is the current state of a pending approval.
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// BearerTokenExpired parses the client's bearer token as a JWT and
// reports whether its exp claim has already passed, without contacting
// the control plane. A token that fails to parse as a JWT (an opaque API
// key, say) is never reported expired — this check only applies when the
// token actually carries claims.
//
// This pre-check exists so the gateway can fail fast and locally on an
// expired credential instead of spending a network round trip to
// discover the same 401.
func (c *Client) BearerTokenExpired() bool {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(c.bearerToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(claims.ExpiresAt.Time)
}

// Health reports the control plane's liveness.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
	return err
}

// Evaluate asks the control plane for a decision on env.
func (c *Client) Evaluate(ctx context.Context, env envelope.Envelope) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		Action:    env,
		Principal: Principal{Type: "agent", ID: c.installID},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var resp EvaluateResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReceipt polls the status of a pending approval.
func (c *Client) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	var receipt Receipt
	if _, err := c.do(ctx, http.MethodGet, "/v1/receipts/"+id, nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListPending lists all receipts awaiting a human decision.
func (c *Client) ListPending(ctx context.Context) ([]Receipt, error) {
	var receipts []Receipt
	if _, err := c.do(ctx, http.MethodGet, "/v1/receipts?status=pending", nil, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

// ResolveReceipt records a human decision against a pending receipt.
func (c *Client) ResolveReceipt(ctx context.Context, id, status string) error {
	body := map[string]string{"status": status}
	_, err := c.do(ctx, http.MethodPost, "/v1/receipts/"+id+"/resolve", body, nil)
	return err
}

// CreatePolicy uploads a new policy document to the control plane.
func (c *Client) CreatePolicy(ctx context.Context, policy any) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/policies", policy, nil)
	return err
}

// SetActivePolicy marks version of policy id as the active one.
func (c *Client) SetActivePolicy(ctx context.Context, id string, version int) error {
	body := map[string]any{"version": version}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/policies/%s/active", id), body, nil)
	return err
}

// ProvisionDemo provisions a demo account for installID. A 404
// response means "no demo available", which is not an error condition —
// callers get (nil, nil) and degrade gracefully.
func (c *Client) ProvisionDemo(ctx context.Context, installID string) (*Receipt, error) {
	var receipt Receipt
	status, err := c.do(ctx, http.MethodPost, "/v1/demo/provision", map[string]string{"installId": installID}, &receipt)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// transientErrorSubstrings are matched against a network error's message
// to recognize a fixed set of transient connection-layer failures:
// connection refused, timed out, name lookup failure, connection reset.
var transientErrorSubstrings = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
}

func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// do executes one logical call, retrying per the classification below.
// It returns the last HTTP status observed (0 if the request never
// reached the network) so ProvisionDemo can special-case 404 without an
// error type.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("controlplane: marshal request: %w", err)
		}
	}

	backoff := initialBackoff
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return lastStatus, ctx.Err()
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return lastStatus, err
			}
		}

		status, retryAfter, err := c.attempt(ctx, method, path, bodyBytes, out)
		lastStatus = status
		if err == nil {
			return status, nil
		}
		lastErr = err

		if !isRetryable(status, err) || attempt == maxRetries {
			return status, lastErr
		}

		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return lastStatus, ctx.Err()
		}
		backoff *= 2
	}

	return lastStatus, lastErr
}

// isRetryable classifies a (status, err) pair: retry on 429/5xx
// and the named transient connection errors; never retry on cancellation,
// other 4xx, or a nil status paired with a non-transient error.
func isRetryable(status int, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status < 600 {
		return true
	}
	if status == 0 && isTransientNetworkError(err) {
		return true
	}
	return false
}

func (c *Client) attempt(ctx context.Context, method, path string, bodyBytes []byte, out any) (status int, retryAfter time.Duration, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, defaultAttemptTimeout)
	defer cancel()

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, 0, fmt.Errorf("controlplane: build request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("controlplane: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return resp.StatusCode, ra, fmt.Errorf("controlplane: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, 0, fmt.Errorf("controlplane: decode response: %w", err)
		}
	}
	return resp.StatusCode, 0, nil
}

// parseRetryAfter interprets a Retry-After header as a whole number of
// seconds; HTTP-date forms are not supported (the control plane only
// emits the delta-seconds form).
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
