package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fleet-dashboard/internal/models"
)

// Credentials are what a role logs in with. Customer is used by end
// customers, Manager by fleet operator staff.
type Credentials struct {
	Username string
	Password string
	Customer string
	Manager  string
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, role models.UserRole, creds Credentials) (string, error) {
	body := map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	}
	if role == models.RoleManager {
		body["manager"] = creds.Manager
	} else {
		body["customer"] = creds.Customer
	}

	status, raw, err := c.post(ctx, c.endpoint(role, "auth_login"), "", body)
	if err != nil {
		return "", err
	}
	return c.decodeToken(status, raw, "auth_login")
}

// Refresh exchanges a still valid token for a new one. A backend answer of
// "Token has expired" satisfies errors.Is(err, ErrTokenExpired).
func (c *Client) Refresh(ctx context.Context, role models.UserRole, token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	status, raw, err := c.post(ctx, c.endpoint(role, "auth_refresh"), token, nil)
	if err != nil {
		return "", err
	}
	return c.decodeToken(status, raw, "auth_refresh")
}

func (c *Client) decodeToken(status int, raw []byte, method string) (string, error) {
	if status == http.StatusServiceUnavailable {
		c.maintenance.Store(true)
		return "", ErrMaintenance
	}
	if status < 200 || status >= 300 {
		return "", &RPCError{Status: status, Method: method, Message: errorMessage(raw)}
	}
	c.maintenance.Store(false)

	var tr TokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decode %s response: %w", method, err)
	}
	if tr.AccessToken == "" {
		return "", &RPCError{Status: status, Method: method, Message: "no access_token returned"}
	}
	return tr.AccessToken, nil
}
