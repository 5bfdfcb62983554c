// Package platform is the HTTP client for the remote event platform.
//
// The platform is independently owned and not always awake: free-tier
// hosting puts it to sleep, so the first contact in any invocation is a
// best-effort wake ping whose outcome is ignored. Every real call runs
// through a bounded-timeout, retry-with-backoff wrapper; callers see
// ErrRemoteUnavailable only after all attempts are exhausted.
//
// The wrapper is pure infrastructure: it knows nothing about intake
// semantics and serves both pull and push.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrNotConfigured indicates a missing base URL or API credential.
// Never retried; no wire call is attempted.
var ErrNotConfigured = errors.New("remote platform is not configured")

// ErrRemoteUnavailable indicates the platform could not be reached after
// all retry attempts. User-facing wording: try again shortly.
var ErrRemoteUnavailable = errors.New("remote platform unavailable")

// ErrRemoteRejected indicates the platform answered with a non-2xx
// status. The wrapped RemoteError carries the status code and body.
var ErrRemoteRejected = errors.New("remote platform rejected the request")

// RemoteError is a non-2xx response from the platform.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrRemoteRejected) work on RemoteError values.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the platform's root URL, e.g. https://events.example.org
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// MaxAttempts caps total tries per call (default: 4)
	MaxAttempts int

	// CallTimeout bounds each real call (default: 15s)
	CallTimeout time.Duration

	// WakeTimeout bounds the wake ping (default: 10s)
	WakeTimeout time.Duration

	// WakeDelay is the warm-up wait after the wake ping (default: 2s)
	WakeDelay time.Duration

	// RetryBaseDelay scales the linear backoff: attempt N waits
	// N × RetryBaseDelay before retrying (default: 3s)
	RetryBaseDelay time.Duration

	// Logger for wire activity (default: stderr logger)
	Logger *log.Logger
}

// Client talks to the remote event platform.
type Client struct {
	baseURL        string
	apiKey         string
	maxAttempts    int
	wakeDelay      time.Duration
	retryBaseDelay time.Duration
	wakeClient     *http.Client
	callClient     *http.Client
	logger         *log.Logger

	woken bool
}

// NewClient creates a platform client.
//
// Returns ErrNotConfigured when the base URL or API key is missing, so
// that pull/push fail fast instead of attempting a wire call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: base URL and API key are required", ErrNotConfigured)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 10 * time.Second
	}
	if cfg.WakeDelay <= 0 {
		cfg.WakeDelay = 2 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[platform] ", log.LstdFlags)
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		maxAttempts:    cfg.MaxAttempts,
		wakeDelay:      cfg.WakeDelay,
		retryBaseDelay: cfg.RetryBaseDelay,
		wakeClient:     &http.Client{Timeout: cfg.WakeTimeout},
		callClient:     &http.Client{Timeout: cfg.CallTimeout},
		logger:         cfg.Logger,
	}, nil
}

// wake issues a best-effort GET to the platform root to trigger a cold
// boot. Outcome is ignored entirely; success and failure both just get
// logged, then we wait the warm-up delay.
func (c *Client) wake(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		c.logger.Printf("wake ping setup failed: %v", err)
		return
	}

	resp, err := c.wakeClient.Do(req)
	if err != nil {
		c.logger.Printf("wake ping failed (continuing): %v", err)
	} else {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.logger.Printf("wake ping answered %d", resp.StatusCode)
	}

	select {
	case <-time.After(c.wakeDelay):
	case <-ctx.Done():
	}
}

// do issues an HTTP call with the wake ping, bounded timeouts, and
// linear-backoff retries. On a 2xx response the body is returned. A
// non-2xx response is not retried: the platform answered, it just said
// no. Network errors and timeouts retry until attempts run out, then
// surface as ErrRemoteUnavailable wrapping the last error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if !c.woken {
		c.wake(ctx)
		c.woken = true
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.callClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Printf("attempt %d/%d %s %s failed: %v", attempt, c.maxAttempts, method, path, err)

			if attempt < c.maxAttempts {
				wait := time.Duration(attempt) * c.retryBaseDelay
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, ctx.Err())
				}
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet := string(data)
			if len(snippet) > 500 {
				snippet = snippet[:500]
			}
			return nil, &RemoteError{StatusCode: resp.StatusCode, Body: snippet}
		}

		return data, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRemoteUnavailable, c.maxAttempts, lastErr)
}

// ListRequests fetches the platform's event requests assigned to the
// given remote user, filtered to the supplied remote statuses. The
// response may be a bare array or a {"data": [...]} envelope.
func (c *Client) ListRequests(ctx context.Context, assigneeID string, statuses []string) ([]*EventRequest, error) {
	query := url.Values{}
	query.Set("assignee", assigneeID)
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}

	data, err := c.do(ctx, http.MethodGet, "/api/event-requests", query, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeListEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event request listing: %w", err)
	}

	requests := make([]*EventRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, parseEventRequest(item))
	}
	return requests, nil
}

// LookupUserByEmail resolves a platform user id from an email address.
// The response may be {"data": {"userId": ...}} or a bare {"userId": ...}.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	query := url.Values{}
	query.Set("email", email)

	data, err := c.do(ctx, http.MethodGet, "/api/users/lookup", query, nil)
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data   *struct{ UserID string `json:"userId"` } `json:"data"`
		UserID string                                   `json:"userId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode user lookup response: %w", err)
	}

	if envelope.Data != nil && envelope.Data.UserID != "" {
		return envelope.Data.UserID, nil
	}
	if envelope.UserID != "" {
		return envelope.UserID, nil
	}
	return "", fmt.Errorf("user lookup for %s returned no user id", email)
}

// UpdateRequest PATCHes the platform's event request with the supplied
// fields. Used both for the lightweight "move to in_process" nudge and
// the full push payload.
func (c *Client) UpdateRequest(ctx context.Context, externalID string, fields map[string]interface{}) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/event-requests/"+url.PathEscape(externalID), nil, fields)
	return err
}

// decodeListEnvelope accepts either a bare JSON array or a {"data": [...]}
// wrapper and returns the raw items.
func decodeListEnvelope(data []byte) ([]map[string]json.RawMessage, error) {
	var bare []map[string]json.RawMessage
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var envelope struct {
		Data []map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
