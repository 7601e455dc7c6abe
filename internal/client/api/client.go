package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pulse/internal/models"
	"pulse/internal/session"
)

// Client talks to the auth endpoints and holds the client-side session.
// It implements session.Provider for the session guard.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	session *session.Session
}

var _ session.Provider = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates and installs the resulting session.
func (c *Client) Login(ctx context.Context, identifier, password string) (*models.LoginResponse, error) {
	body, err := json.Marshal(models.LoginRequest{Identifier: identifier, Password: password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var lr models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}

	c.install(lr)
	return &lr, nil
}

// Current returns a copy of the client-held session, or (nil, nil) when
// signed out.
func (c *Client) Current(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

// Refresh exchanges the current credential for a fresh one. The server's
// refresh is idempotent per presented token, so concurrent calls for the
// same session cannot double-spend anything.
func (c *Client) Refresh(ctx context.Context, current *session.Session) (*session.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+current.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}

	var lr models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("refresh: decode response: %w", err)
	}

	c.install(lr)
	c.mu.Lock()
	s := *c.session
	c.mu.Unlock()
	return &s, nil
}

// SignOut drops the client-held session. The server keeps no session
// state for bearer tokens, so there is nothing to revoke remotely.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) install(lr models.LoginResponse) {
	expiresAt := lr.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	}
	c.mu.Lock()
	c.session = &session.Session{AccessToken: lr.AccessToken, ExpiresAt: expiresAt}
	c.mu.Unlock()
}
