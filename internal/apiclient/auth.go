package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// tokenPayload accepts the shapes the auth endpoints use for the token and
// profile, at the top level or under "data".
type tokenPayload struct {
	AccessToken string         `json:"accessToken"`
	Token       string         `json:"token"`
	User        map[string]any `json:"user"`
	Data        *struct {
		AccessToken string         `json:"accessToken"`
		Token       string         `json:"token"`
		User        map[string]any `json:"user"`
	} `json:"data"`
}

func (p tokenPayload) token() string {
	for _, t := range []string{p.AccessToken, p.Token} {
		if t != "" {
			return t
		}
	}
	if p.Data != nil {
		for _, t := range []string{p.Data.AccessToken, p.Data.Token} {
			if t != "" {
				return t
			}
		}
	}
	return ""
}

func (p tokenPayload) user() map[string]any {
	if p.User != nil {
		return p.User
	}
	if p.Data != nil {
		return p.Data.User
	}
	return nil
}

// RefreshToken calls the refresh endpoint and returns the new access token.
// The call itself is never intercepted; the refresh credential travels in
// the cookie jar.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      c.refreshPath,
		Body:      map[string]any{},
		NoRefresh: true,
		NoAuth:    true,
	})
	if err != nil {
		return "", err
	}

	var payload tokenPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("apiclient: decode refresh response: %w", err)
	}
	token := payload.token()
	if token == "" {
		return "", errors.New("apiclient: refresh response carried no access token")
	}
	return token, nil
}

// Login authenticates with email and password, persists the token and the
// user profile, and returns the profile.
func (c *Client) Login(ctx context.Context, email, password string) (map[string]any, error) {
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}
	resp, err := c.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      c.loginPath,
		Body:      map[string]string{"email": email, "password": password},
		NoRefresh: true,
		NoAuth:    true,
	})
	if err != nil {
		return nil, err
	}

	var payload tokenPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("apiclient: decode login response: %w", err)
	}
	token := payload.token()
	if token == "" {
		return nil, model.NewBackendError(resp.Status, backendMessage(resp.Body, "Login failed"))
	}

	sess := c.Session()
	if err := sess.SetToken(ctx, token); err != nil {
		return nil, fmt.Errorf("apiclient: storing token: %w", err)
	}
	profile := payload.user()
	if profile != nil {
		if err := sess.SaveProfile(ctx, profile); err != nil {
			return nil, fmt.Errorf("apiclient: storing profile: %w", err)
		}
	}
	c.logger.Info("signed in", zap.String("session_id", sess.ID()))
	return profile, nil
}

// Logout notifies the backend and tears the session down. The local teardown
// happens even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, callErr := c.Do(ctx, Request{Method: http.MethodPost, Path: c.logoutPath, NoRefresh: true})
	if callErr != nil && !IsCancelled(callErr) {
		c.logger.Warn("backend logout failed", zap.Error(callErr))
	}
	return c.Session().Teardown(ctx)
}

// HealthCheck reports whether the school API answers at all. Any response
// below 500 counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/", NoRefresh: true})
	if resp != nil && resp.Status < 500 {
		return nil
	}
	return err
}
