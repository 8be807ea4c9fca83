package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authaudit/internal/models"
)

// Browser like client: keeps the refresh cookie, sends bearer token if set
type client struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
}

func newClient(t *testing.T, ts *TestServer) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method string, path string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *client) mustDo(method string, path string, body any, status int, out any) {
	c.t.Helper()

	resp, data := c.do(method, path, body)
	require.Equalf(c.t, status, resp.StatusCode, "%s %s: %s", method, path, string(data))
	if out != nil {
		require.NoError(c.t, json.Unmarshal(data, out))
	}
}

func (c *client) login(email string, password string) models.TokenResponse {
	c.t.Helper()

	var tokens models.TokenResponse
	c.mustDo(http.MethodPost, "/auth/login", models.Credentials{Email: email, Password: password}, http.StatusOK, &tokens)
	c.token = tokens.AccessToken
	return tokens
}

func TestServer_Auth(t *testing.T) {
	ts := Start(t, Config{})
	c := newClient(t, ts)

	t.Run("methods", func(t *testing.T) {
		var m models.AuthMethods
		c.mustDo(http.MethodGet, "/auth/methods", nil, http.StatusOK, &m)

		assert.True(t, m.Has(models.AuthMethodEmail))
		assert.True(t, m.Has(models.AuthMethodCode))
		assert.Equal(t, []string{"entra"}, m.OAuthProviders)
	})

	t.Run("register", func(t *testing.T) {
		var u models.User
		c.mustDo(http.MethodPost, "/auth/register", models.Credentials{Email: "user@example.com", Password: "password123"}, http.StatusCreated, &u)

		assert.Equal(t, "user@example.com", u.Email)
		assert.True(t, u.IsActive)
		assert.False(t, u.IsAdmin)
	})

	t.Run("register twice is conflict", func(t *testing.T) {
		resp, body := c.do(http.MethodPost, "/auth/register", models.Credentials{Email: "user@example.com", Password: "password123"})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "User with this email already exists"}`, string(body))
	})

	t.Run("register validates body", func(t *testing.T) {
		resp, _ := c.do(http.MethodPost, "/auth/register", models.Credentials{Email: "bad", Password: "short"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("login wrong password", func(t *testing.T) {
		resp, body := c.do(http.MethodPost, "/auth/login", models.Credentials{Email: "user@example.com", Password: "wrong-password"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Invalid credentials"}`, string(body))
	})

	t.Run("login and me", func(t *testing.T) {
		tokens := c.login("user@example.com", "password123")
		assert.Equal(t, "bearer", tokens.TokenType)
		assert.Equal(t, 1800, tokens.ExpiresIn)

		var u models.User
		c.mustDo(http.MethodGet, "/auth/me", nil, http.StatusOK, &u)
		assert.Equal(t, "user@example.com", u.Email)
	})

	t.Run("me without token", func(t *testing.T) {
		anon := newClient(t, ts)
		resp, body := anon.do(http.MethodGet, "/auth/me", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
		assert.JSONEq(t, `{"detail": "Not authenticated"}`, string(body))
	})
}

func TestServer_Refresh(t *testing.T) {
	ts := Start(t, Config{})
	_, err := ts.CreateUser("user@example.com", "password123", false)
	require.NoError(t, err)

	t.Run("rotates refresh cookie", func(t *testing.T) {
		c := newClient(t, ts)
		first := c.login("user@example.com", "password123")

		u, err := url.Parse(ts.URL)
		require.NoError(t, err)
		oldCookie := c.http.Jar.Cookies(u)
		require.Len(t, oldCookie, 1)
		require.Equal(t, RefreshCookie, oldCookie[0].Name)

		var tokens models.TokenResponse
		c.mustDo(http.MethodPost, "/auth/refresh", nil, http.StatusOK, &tokens)
		assert.NotEqual(t, first.AccessToken, tokens.AccessToken)

		newCookie := c.http.Jar.Cookies(u)
		require.Len(t, newCookie, 1)
		assert.NotEqual(t, oldCookie[0].Value, newCookie[0].Value)

		// Reuse of the rotated token
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(oldCookie[0])
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("no cookie", func(t *testing.T) {
		c := newClient(t, ts)
		resp, body := c.do(http.MethodPost, "/auth/refresh", nil)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Refresh token not found"}`, string(body))
	})

	t.Run("expired access tokens recover with refresh", func(t *testing.T) {
		c := newClient(t, ts)
		c.login("user@example.com", "password123")

		ts.ExpireAccessTokens()
		resp, body := c.do(http.MethodGet, "/auth/me", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Invalid or expired token"}`, string(body))

		var tokens models.TokenResponse
		c.mustDo(http.MethodPost, "/auth/refresh", nil, http.StatusOK, &tokens)
		c.token = tokens.AccessToken
		c.mustDo(http.MethodGet, "/auth/me", nil, http.StatusOK, nil)
	})

	t.Run("fail refresh and hook", func(t *testing.T) {
		c := newClient(t, ts)
		c.login("user@example.com", "password123")

		called := 0
		ts.OnRefresh(func(ctx context.Context) { called++ })
		ts.FailRefresh(true)
		t.Cleanup(func() {
			ts.OnRefresh(nil)
			ts.FailRefresh(false)
		})

		before := ts.Hits("/auth/refresh")
		resp, _ := c.do(http.MethodPost, "/auth/refresh", nil)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 1, called)
		assert.Equal(t, before+1, ts.Hits("/auth/refresh"))
	})

	t.Run("logout revokes refresh token", func(t *testing.T) {
		c := newClient(t, ts)
		c.login("user@example.com", "password123")

		var msg models.Message
		c.mustDo(http.MethodPost, "/auth/logout", nil, http.StatusOK, &msg)
		assert.Equal(t, "Logged out successfully", msg.Message)

		resp, _ := c.do(http.MethodPost, "/auth/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_CodeAuth(t *testing.T) {
	t.Run("debug returns code", func(t *testing.T) {
		ts := Start(t, Config{Debug: true})
		c := newClient(t, ts)

		var first models.CodeRequestResponse
		c.mustDo(http.MethodPost, "/auth/code/request", models.CodeRequest{Email: "new@example.com"}, http.StatusOK, &first)
		require.Len(t, first.DebugCode, 6)
		require.NotNil(t, first.IsNewUser)
		assert.True(t, *first.IsNewUser)

		var second models.CodeRequestResponse
		c.mustDo(http.MethodPost, "/auth/code/request", models.CodeRequest{Email: "new@example.com"}, http.StatusOK, &second)
		require.NotNil(t, second.IsNewUser)
		assert.False(t, *second.IsNewUser)

		if first.DebugCode != second.DebugCode {
			resp, _ := c.do(http.MethodPost, "/auth/code/verify", models.CodeVerify{Email: "new@example.com", Code: first.DebugCode})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "previous code is invalidated")
		}

		var tokens models.TokenResponse
		c.mustDo(http.MethodPost, "/auth/code/verify", models.CodeVerify{Email: "new@example.com", Code: second.DebugCode}, http.StatusOK, &tokens)
		assert.NotEmpty(t, tokens.AccessToken)

		resp, body := c.do(http.MethodPost, "/auth/code/verify", models.CodeVerify{Email: "new@example.com", Code: second.DebugCode})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "code is single use")
		assert.JSONEq(t, `{"detail": "Invalid or expired code"}`, string(body))
	})

	t.Run("code hidden without debug", func(t *testing.T) {
		ts := Start(t, Config{})
		c := newClient(t, ts)

		resp, body := c.do(http.MethodPost, "/auth/code/request", models.CodeRequest{Email: "new@example.com"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"message": "Code sent successfully"}`, string(body))
	})

	t.Run("disabled", func(t *testing.T) {
		ts := Start(t, Config{Methods: []models.AuthMethod{models.AuthMethodEmail}})
		c := newClient(t, ts)

		resp, body := c.do(http.MethodPost, "/auth/code/request", models.CodeRequest{Email: "new@example.com"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Code authentication is disabled"}`, string(body))
	})
}

func TestServer_OAuth(t *testing.T) {
	ts := Start(t, Config{OAuthClientID: "client-1", OAuthRedirectURL: "http://localhost:5173/auth/callback"})
	c := newClient(t, ts)

	var authorize models.OAuthAuthorize
	c.mustDo(http.MethodGet, "/auth/oidc/entra/authorize", nil, http.StatusOK, &authorize)

	u, err := url.Parse(authorize.AuthorizeURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "query", q.Get("response_mode"))
	state := q.Get("state")
	require.NotEmpty(t, state)

	t.Run("unknown provider", func(t *testing.T) {
		resp, body := c.do(http.MethodGet, "/auth/oidc/github/authorize", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Unknown OAuth provider: github"}`, string(body))
	})

	t.Run("invalid state", func(t *testing.T) {
		code := ts.GrantOAuthCode("oauth@example.com")
		resp, body := c.do(http.MethodPost, "/auth/oidc/entra/callback", models.OAuthCallback{Code: code, State: "forged"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Invalid OAuth state"}`, string(body))
	})

	t.Run("callback signs in", func(t *testing.T) {
		code := ts.GrantOAuthCode("oauth@example.com")

		var tokens models.TokenResponse
		c.mustDo(http.MethodPost, "/auth/oidc/entra/callback", models.OAuthCallback{Code: code, State: state}, http.StatusOK, &tokens)
		c.token = tokens.AccessToken

		var me models.User
		c.mustDo(http.MethodGet, "/auth/me", nil, http.StatusOK, &me)
		assert.Equal(t, "oauth@example.com", me.Email)

		resp, _ := c.do(http.MethodPost, "/auth/oidc/entra/callback", models.OAuthCallback{Code: code, State: state})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "state is single use")
	})
}

func TestServer_Demo(t *testing.T) {
	ts := Start(t, Config{})
	for _, email := range []string{"owner@example.com", "other@example.com"} {
		_, err := ts.CreateUser(email, "password123", false)
		require.NoError(t, err)
	}

	owner := newClient(t, ts)
	owner.login("owner@example.com", "password123")
	other := newClient(t, ts)
	other.login("other@example.com", "password123")

	var first, second models.DemoItem
	owner.mustDo(http.MethodPost, "/demo/items", models.DemoItemCreate{Title: "first"}, http.StatusCreated, &first)
	owner.mustDo(http.MethodPost, "/demo/items", models.DemoItemCreate{Title: "second"}, http.StatusCreated, &second)

	t.Run("list newest first", func(t *testing.T) {
		var items []models.DemoItem
		owner.mustDo(http.MethodGet, "/demo/items", nil, http.StatusOK, &items)

		require.Len(t, items, 2)
		assert.Equal(t, second.ID, items[0].ID)
		assert.Equal(t, first.ID, items[1].ID)

		other.mustDo(http.MethodGet, "/demo/items", nil, http.StatusOK, &items)
		assert.Empty(t, items)
	})

	t.Run("update", func(t *testing.T) {
		title, description := "renamed", "with description"
		var item models.DemoItem
		owner.mustDo(http.MethodPut, "/demo/items/"+first.ID.String(), models.DemoItemUpdate{Title: &title, Description: &description}, http.StatusOK, &item)

		assert.Equal(t, "renamed", item.Title)
		require.NotNil(t, item.Description)
		assert.Equal(t, "with description", *item.Description)
		assert.NotNil(t, item.UpdatedAt)
	})

	t.Run("foreign item is forbidden", func(t *testing.T) {
		resp, body := other.do(http.MethodGet, "/demo/items/"+first.ID.String(), nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Not authorized to access this item"}`, string(body))

		resp, _ = other.do(http.MethodDelete, "/demo/items/"+first.ID.String(), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := owner.do(http.MethodGet, "/demo/items/not-a-uuid", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		owner.mustDo(http.MethodDelete, "/demo/items/"+first.ID.String(), nil, http.StatusNoContent, nil)

		resp, body := owner.do(http.MethodGet, "/demo/items/"+first.ID.String(), nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Item not found"}`, string(body))
	})

	t.Run("export and delete account", func(t *testing.T) {
		var export models.UserExport
		owner.mustDo(http.MethodGet, "/auth/me/export", nil, http.StatusOK, &export)

		assert.Equal(t, "owner@example.com", export.User.Email)
		require.Len(t, export.DemoItems, 1)
		assert.Equal(t, second.ID, export.DemoItems[0].ID)
		assert.NotEmpty(t, export.ActivityLogs)

		owner.mustDo(http.MethodDelete, "/auth/me", nil, http.StatusNoContent, nil)

		resp, _ := owner.do(http.MethodGet, "/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp, _ = owner.do(http.MethodPost, "/auth/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_Admin(t *testing.T) {
	ts := Start(t, Config{InitialAdminEmail: "admin@example.com", InitialAdminPassword: "admin-password"})
	_, err := ts.CreateUser("user@example.com", "password123", false)
	require.NoError(t, err)

	admin := newClient(t, ts)
	admin.login("admin@example.com", "admin-password")
	user := newClient(t, ts)
	user.login("user@example.com", "password123")
	user.mustDo(http.MethodGet, "/auth/me", nil, http.StatusOK, nil)

	t.Run("regular user is forbidden", func(t *testing.T) {
		resp, body := user.do(http.MethodGet, "/admin/audit-logs", nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Admin privileges required"}`, string(body))
	})

	t.Run("audit logs filter", func(t *testing.T) {
		var logs models.AuditLogList
		admin.mustDo(http.MethodGet, "/admin/audit-logs?user_email=USER@&method=GET&path=/auth/me", nil, http.StatusOK, &logs)

		require.Equal(t, 1, logs.Total)
		entry := logs.Items[0]
		require.NotNil(t, entry.UserEmail)
		assert.Equal(t, "user@example.com", *entry.UserEmail)
		assert.Equal(t, "/api/v1/auth/me", entry.Path)
		assert.Equal(t, http.StatusOK, entry.StatusCode)
		assert.NotEmpty(t, entry.RequestID)
		assert.Equal(t, 1, logs.Page)
		assert.Equal(t, models.DefaultAuditPageSize, logs.Limit)
	})

	t.Run("audit logs paging newest first", func(t *testing.T) {
		all := ts.AuditLogs()
		require.GreaterOrEqual(t, len(all), 3)

		var logs models.AuditLogList
		admin.mustDo(http.MethodGet, "/admin/audit-logs?page=2&limit=1", nil, http.StatusOK, &logs)
		require.Len(t, logs.Items, 1)
		assert.Equal(t, all[1].ID, logs.Items[0].ID)
		assert.Greater(t, logs.Total, 1)

		resp, _ := admin.do(http.MethodGet, "/admin/audit-logs?from=yesterday", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("users", func(t *testing.T) {
		var created models.User
		admin.mustDo(http.MethodPost, "/admin/users", models.AdminUserCreate{Email: "second-admin@example.com", Password: "password123", IsAdmin: true}, http.StatusCreated, &created)
		assert.True(t, created.IsAdmin)

		resp, _ := admin.do(http.MethodPost, "/admin/users", models.AdminUserCreate{Email: "user@example.com", Password: "password123"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		var list models.UserList
		admin.mustDo(http.MethodGet, "/admin/users?limit=2", nil, http.StatusOK, &list)
		assert.Equal(t, 3, list.Total)
		assert.Len(t, list.Items, 2)
		assert.Equal(t, "admin@example.com", list.Items[0].Email)

		inactive := false
		var updated models.User
		admin.mustDo(http.MethodPatch, "/admin/users/"+created.ID.String(), models.AdminUserUpdate{IsActive: &inactive}, http.StatusOK, &updated)
		assert.False(t, updated.IsActive)
	})

	t.Run("admin cannot demote self", func(t *testing.T) {
		var me models.User
		admin.mustDo(http.MethodGet, "/auth/me", nil, http.StatusOK, &me)

		demote := false
		resp, body := admin.do(http.MethodPatch, "/admin/users/"+me.ID.String(), models.AdminUserUpdate{IsAdmin: &demote})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"detail": "Cannot remove your own admin privileges"}`, string(body))
	})
}

func TestServer_Throttle(t *testing.T) {
	ts := Start(t, Config{})
	c := newClient(t, ts)

	ts.Throttle("/auth/methods", 1, 1500*time.Millisecond)

	resp, body := c.do(http.MethodGet, "/auth/methods", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	assert.True(t, strings.Contains(string(body), "Too many requests"))

	c.mustDo(http.MethodGet, "/auth/methods", nil, http.StatusOK, nil)
	assert.Equal(t, 2, ts.Hits("/auth/methods"))
}

func TestServer_Health(t *testing.T) {
	ts := Start(t, Config{})

	resp, err := http.Get(strings.TrimSuffix(ts.URL, BasePath) + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Empty(t, ts.AuditLogs(), "health is not audited")
}
