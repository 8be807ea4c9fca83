package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/session"
)

const (
	DefaultBaseURL   = "http://localhost:8000/api/v1"
	DefaultLoginPath = "/login"
	DefaultTimeout   = 10 * time.Second

	// Refresh endpoint, relative to base URL
	RefreshPath = "/auth/refresh"

	RequestIDHeader = "X-Request-ID"
)

type Config struct {
	// Base URL of the REST API, like http://localhost:8000/api/v1
	// If not set than default is used
	BaseURL string

	// Applied to every request including the refresh call
	// If not set than default is used
	Timeout time.Duration

	// Entry point the redirector is sent to when the session can't be recovered
	// If not set than default is used
	LoginPath string

	// Transport to send requests with, http.DefaultTransport if nil
	Transport http.RoundTripper
}

// Request to the API relative to the base URL
// Body is encoded as JSON if not nil
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// Credential exchange requests (login, code verify) report 401 as is, a refresh can't help them
	NoRefresh bool

	// Set once the request was replayed after a refresh
	retried bool
}

// Client sends API requests on behalf of one session
// It attaches the bearer token and recovers from expired tokens with a single refresh
type Client struct {
	baseURL    *url.URL
	loginPath  string
	http       *http.Client
	session    *session.State
	redirector Redirector
	logger     logger.Logger
}

func New(cfg Config, s *session.State, r Redirector, l logger.Logger) (*Client, error) {
	if s == nil {
		return nil, errors.New("session must not be nil")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url. Err: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", base.Scheme)
	}

	// Refresh token lives in an HttpOnly cookie, so the client keeps cookies like a browser does
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("error while creating cookie jar. Err: %w", err)
	}

	return &Client{
		baseURL:   base,
		loginPath: cfg.LoginPath,
		http: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
			Jar:       jar,
		},
		session:    s,
		redirector: r,
		logger:     l,
	}, nil
}

func (c *Client) Session() *session.State {
	return c.session
}

// Send performs the request like a plain HTTP call with one difference:
// on 401 the token is refreshed (once for all concurrent callers) and the request is replayed
//
// Non-2xx responses are returned as *Error with the body consumed
// On success the caller must close the response body
func (c *Client) Send(ctx context.Context, req *Request) (*http.Response, error) {
	r := *req

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	token := c.session.Token()
	resp, err := c.send(ctx, &r, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return c.handleUnauthorized(ctx, &r, body, token, newError(resp))
	}

	return checkStatus(resp)
}

// Do sends the request and decodes JSON response into out, if out is not nil
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.Path, err)
	}

	return nil
}

// send builds a fresh http.Request, so it may be called many times for the same Request
func (c *Client) send(ctx context.Context, r *Request, body []byte, token string) (*http.Response, error) {
	u := c.baseURL.JoinPath(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range r.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	}
	attachToken(httpReq, token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if id := resp.Header.Get(RequestIDHeader); id != "" {
		c.logger.Debug("API response", "method", r.Method, "path", r.Path, "status", resp.StatusCode, "request_id", id)
	}

	return resp, nil
}

// attachToken sets the bearer credential if there is one
func attachToken(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func checkStatus(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp)
	}
	return resp, nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return b, nil
}
