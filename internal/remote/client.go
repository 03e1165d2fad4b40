// Package remote talks to the PokeRankr API: account sessions plus the
// four per-user category record tables. The tables are passive record
// holders addressed by user id; there is no transactional guarantee
// across them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	errs "github.com/pokerankr/ranksync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// by the API client when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. Category records are
	// bounded JSON blobs; 4MB leaves room for the largest ranking sets.
	maxAPIResponseBytes = 4 * 1024 * 1024
)

// Client talks to the PokeRankr REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// token is the session token attached to record-table requests.
	// Set by the auth service on sign-in and cleared on sign-out.
	token   string
	tokenMu sync.RWMutex
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the session token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for the given base URL. If httpClient
// is nil, a client with a 30-second timeout and same-host redirect
// policy is created.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// SetToken installs the session token sent with record-table requests.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) currentToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()

	return c.token
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// post sends a JSON POST request and decodes the response into result.
// Errors reported by the API wrap errs.ErrAPIRequest; responses that
// cannot be read or decoded wrap errs.ErrAPIResponse.
func (c *Client) post(ctx context.Context, endpoint string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", endpoint, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body from %s: %w", errs.ErrAPIResponse, endpoint, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("API %s: %w", endpoint, errs.ErrInvalidToken)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			err := fmt.Errorf("%w: %s (%d): %s", errs.ErrAPIRequest, endpoint, resp.StatusCode, apiErr.Error)
			if isTransientStatus(resp.StatusCode) {
				return &TransientError{Err: err}
			}

			return err
		}

		err := fmt.Errorf("%w: %s returned status %d: %s", errs.ErrAPIRequest, endpoint, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return &TransientError{Err: err}
		}

		return err
	}

	// The API also returns errors as 200 with an "error" field in the body.
	var apiErr APIError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
		err := fmt.Errorf("%w: %s: %s", errs.ErrAPIRequest, endpoint, apiErr.Error)
		if isTransientMessage(apiErr.Error) {
			return &TransientError{Err: err}
		}

		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w from %s: %w", errs.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// isTransientMessage checks whether an API error message suggests a
// temporary condition worth retrying.
func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)

	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "try again") ||
		strings.Contains(lower, "temporarily unavailable")
}

// SignIn authenticates with email and password, returning a session
// token and the account identity.
func (c *Client) SignIn(ctx context.Context, email, password, device string) (*AuthResponse, error) {
	req := SignInRequest{
		Email:    email,
		Password: password,
		Device:   device,
	}

	var resp AuthResponse
	if err := c.post(ctx, "/auth/signin", req, &resp); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "invalid") && !IsTransient(err) {
			return nil, errs.ErrInvalidCredentials
		}

		return nil, fmt.Errorf("signing in: %w", err)
	}

	return &resp, nil
}

// SignUp creates a new account and returns its first session.
func (c *Client) SignUp(ctx context.Context, email, password, device string) (*AuthResponse, error) {
	req := SignUpRequest{
		Email:    email,
		Password: password,
		Device:   device,
	}

	var resp AuthResponse
	if err := c.post(ctx, "/auth/signup", req, &resp); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}

	return &resp, nil
}

// SignOut invalidates the given token.
func (c *Client) SignOut(ctx context.Context, token string) error {
	if err := c.post(ctx, "/auth/signout", SignOutRequest{Token: token}, nil); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	return nil
}

// Session validates a cached token and returns the account it belongs
// to. ErrInvalidToken means the token is stale and should be discarded.
func (c *Client) Session(ctx context.Context, token string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(ctx, "/auth/session", SessionRequest{Token: token}, &resp); err != nil {
		return nil, fmt.Errorf("validating session: %w", err)
	}

	return &resp, nil
}

// FetchOne returns the per-user record from the given category table,
// or nil when the user has no record there yet.
func (c *Client) FetchOne(ctx context.Context, table, userID string) (json.RawMessage, error) {
	var resp recordResponse
	if err := c.post(ctx, "/progress/"+table+"/get", recordRequest{UserID: userID}, &resp); err != nil {
		return nil, fmt.Errorf("fetching %s record: %w", table, err)
	}

	if len(resp.Record) == 0 || string(resp.Record) == "null" {
		return nil, nil
	}

	return resp.Record, nil
}

// Insert creates the per-user record in the given category table.
func (c *Client) Insert(ctx context.Context, table, userID string, value json.RawMessage) error {
	if err := c.post(ctx, "/progress/"+table+"/insert", writeRequest{UserID: userID, Value: value}, nil); err != nil {
		return fmt.Errorf("inserting %s record: %w", table, err)
	}

	return nil
}

// Update replaces the per-user record in the given category table.
func (c *Client) Update(ctx context.Context, table, userID string, value json.RawMessage) error {
	if err := c.post(ctx, "/progress/"+table+"/update", writeRequest{UserID: userID, Value: value}, nil); err != nil {
		return fmt.Errorf("updating %s record: %w", table, err)
	}

	return nil
}
