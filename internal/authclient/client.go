// Package authclient wraps the auth-service HTTP API.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidToken means the auth service rejected the token.
var ErrInvalidToken = errors.New("invalid token")

// Client calls the auth service to validate bearer tokens.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the given auth-service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid  bool  `json:"valid"`
	UserID int64 `json:"user_id"`
}

// ValidateToken verifies the JWT and returns the authenticated user id.
func (c *Client) ValidateToken(ctx context.Context, token string) (int64, error) {
	body, err := json.Marshal(validateTokenRequest{Token: token})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/auth/validate", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return 0, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var payload validateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode auth response: %w", err)
	}
	if !payload.Valid || payload.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return payload.UserID, nil
}
