package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/models"
	"github.com/nkiryanov/authaudit/internal/session"
)

type refreshResult struct {
	token string
	err   error
}

// handleUnauthorized recovers a request that got 401 while sent with token sentWith
//
// Only one refresh runs at a time: the first caller performs it, callers that fail
// meanwhile are queued and replayed with the token that refresh produced.
func (c *Client) handleUnauthorized(ctx context.Context, r *Request, body []byte, sentWith string, cause *Error) (*http.Response, error) {
	// Refresh endpoint itself was rejected: retrying would loop forever
	if isRefresh(r) {
		c.session.Clear()
		return nil, cause
	}

	if r.NoRefresh || r.retried {
		return nil, cause
	}
	r.retried = true

	result := make(chan refreshResult, 1)
	ticket, token := c.session.Join(sentWith, func(token string, err error) {
		result <- refreshResult{token: token, err: err}
	})

	switch ticket {
	case session.Replay:
		c.logger.Debug("Token rotated while request was in flight, replaying", "path", r.Path)
		return c.replay(ctx, r, body, token)

	case session.Expired:
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, cause)

	case session.Wait:
		c.logger.Debug("Refresh in flight, waiting", "path", r.Path)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-result:
			if res.err != nil {
				return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, cause)
			}
			return c.replay(ctx, r, body, res.token)
		}

	default:
		// Refresh outcome is shared by every queued caller, one cancelled caller must not fail them all
		token, err := c.refresh(context.WithoutCancel(ctx))
		drained := c.session.FinishRefresh(token, err)

		if err != nil {
			c.logger.Warn("Token refresh failed, session reset", "error", err, "waiters", drained)
			c.redirectToLogin()
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
		}

		c.logger.Info("Token refreshed", "waiters", drained)
		return c.replay(ctx, r, body, token)
	}
}

// replay sends the request once more with the given token
// A second 401 is returned as is, the request is never retried twice
func (c *Client) replay(ctx context.Context, r *Request, body []byte, token string) (*http.Response, error) {
	resp, err := c.send(ctx, r, body, token)
	if err != nil {
		return nil, err
	}
	return checkStatus(resp)
}

// refresh exchanges the refresh cookie for a new access token
// Sent with the current token, like any other request
func (c *Client) refresh(ctx context.Context) (string, error) {
	r := &Request{Method: http.MethodPost, Path: RefreshPath}

	resp, err := c.send(ctx, r, nil, c.session.Token())
	if err != nil {
		return "", err
	}
	resp, err = checkStatus(resp)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() // nolint:errcheck

	var tokens models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return "", errors.New("refresh response has no access token")
	}

	return tokens.AccessToken, nil
}

// redirectToLogin is skipped when the UI is already at the login entry point
func (c *Client) redirectToLogin() {
	if c.redirector == nil {
		return
	}
	if c.redirector.Location() == c.loginPath {
		return
	}
	c.redirector.Redirect(c.loginPath)
}

func isRefresh(r *Request) bool {
	return strings.TrimSuffix(r.Path, "/") == RefreshPath
}
