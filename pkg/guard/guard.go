// Package guard is the verification client protected apps embed to check
// the single-use proof tokens the gateway injects on each proxied request.
// Apps that skip this check are reachable by anyone who can hit their port
// directly, so front-line apps should wrap their handlers with Middleware.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenHeader is the request header the gateway sets on proxied traffic.
const TokenHeader = "X-Gatehouse-Token"

// UserHeader carries the authenticated username on proxied traffic. It is
// informational only; trust comes from validating the token.
const UserHeader = "X-Gatehouse-User"

const (
	DefaultGatewayURL = "http://localhost:8500"
	DefaultTimeout    = 5 * time.Second
)

// ErrDenied is returned when the gateway rejects the token. The gateway
// never says why.
var ErrDenied = fmt.Errorf("gatehouse: token rejected")

// Identity describes the verified caller behind a proxied request.
type Identity struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Client validates proof tokens against the gateway.
type Client struct {
	gatewayURL string
	appID      int64
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithGatewayURL overrides the gateway base URL.
func WithGatewayURL(url string) Option {
	return func(c *Client) {
		c.gatewayURL = url
	}
}

// WithTimeout sets the HTTP timeout for validation calls.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a validation client for the given registered app ID.
func NewClient(appID int64, opts ...Option) *Client {
	c := &Client{
		gatewayURL: DefaultGatewayURL,
		appID:      appID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks a proof token with the gateway. Each token is single-use:
// a second call with the same token fails even if the first succeeded.
func (c *Client) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrDenied
	}

	url := fmt.Sprintf("%s/validate-session/%d/%s", c.gatewayURL, c.appID, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Valid     bool   `json:"valid"`
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !result.Valid {
		return nil, ErrDenied
	}

	return &Identity{UserID: result.UserID, SessionID: result.SessionID}, nil
}

// ValidateRequest pulls the proof token from a proxied request and
// validates it.
func (c *Client) ValidateRequest(r *http.Request) (*Identity, error) {
	return c.Validate(r.Context(), r.Header.Get(TokenHeader))
}

// identityKey is the context key Middleware stores the Identity under.
type identityKey struct{}

// FromContext returns the Identity Middleware attached, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Middleware rejects any request that does not carry a valid proof token
// and stores the verified Identity in the request context.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := c.ValidateRequest(r)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
