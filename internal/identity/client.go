package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Session is the authenticated session issued by the identity service.
type Session struct {
	AccessToken string    `json:"access_token"`
	StaffID     string    `json:"staff_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Age returns how long ago the session token was issued.
func (s *Session) Age() time.Duration {
	return time.Since(s.IssuedAt)
}

// Provider exposes the current session and a refresh operation.
type Provider interface {
	CurrentSession() *Session
	Refresh(ctx context.Context) error
}

// Client talks to the external identity service over HTTP. The completion
// pipeline refreshes the session before finalizing a visit when the token is
// older than the configured threshold.
type Client struct {
	http    *resty.Client
	logger  *zap.Logger
	mu      sync.RWMutex
	session *Session
}

// NewClient creates a new identity service client
func NewClient(baseURL, apiKey string, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(15 * time.Second)

	return &Client{
		http:   http,
		logger: logger,
	}, nil
}

// CurrentSession returns the cached session, or nil when not signed in.
func (c *Client) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the cached session. Used after sign-in and by tests.
func (c *Client) SetSession(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// Refresh exchanges the current session for a fresh token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()

	if current == nil {
		return fmt.Errorf("no session to refresh")
	}

	var refreshed Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Session-Token", current.AccessToken).
		SetResult(&refreshed).
		Post("/auth/v1/token/refresh")

	if err != nil {
		c.logger.Error("failed to refresh session", zap.Error(err))
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	if resp.IsError() {
		c.logger.Error("identity service rejected refresh",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("identity service rejected refresh: status %d", resp.StatusCode())
	}

	if refreshed.IssuedAt.IsZero() {
		refreshed.IssuedAt = time.Now()
	}

	c.mu.Lock()
	c.session = &refreshed
	c.mu.Unlock()

	c.logger.Info("session refreshed",
		zap.String("staff_id", refreshed.StaffID),
		zap.Time("expires_at", refreshed.ExpiresAt),
	)

	return nil
}
