// Package apitest is an in-memory implementation of the authaudit REST API.
//
// It backs integration tests of the client packages and the local development
// server. Besides the API itself it exposes knobs to observe and break the
// server: request counters, a refresh hook, forced refresh failures,
// revocation of every issued access token and throttling.
package apitest

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/authaudit/internal/apitest/middleware"
	"github.com/nkiryanov/authaudit/internal/apitest/render"
	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/models"
)

// BasePath every API route is served under
const BasePath = "/api/v1"

const (
	RefreshCookie = "refresh_token"

	defaultOAuthProvider = "entra"
	defaultCodeLength    = 6
	defaultCodeTTL       = 10 * time.Minute
)

// Fake API config with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Debug returns one-time codes in responses instead of "sending" them
	Debug bool

	// Enabled auth methods, email, code and oauth if empty
	Methods []models.AuthMethod

	OAuthProvider    string
	OAuthClientID    string
	OAuthRedirectURL string
	OAuthAuthURL     string

	CodeLength int
	CodeTTL    time.Duration

	// Admin created on start if email is set
	InitialAdminEmail    string
	InitialAdminPassword string

	// Bcrypt hasher if not set
	Hasher PasswordHasher

	// No-op logger if not set
	Logger logger.Logger
}

type throttle struct {
	remaining  int
	retryAfter time.Duration
}

type Server struct {
	cfg     Config
	store   *memStore
	tokens  *tokenManager
	hasher  PasswordHasher
	log     logger.Logger
	handler http.Handler

	mu            sync.Mutex
	hits          map[string]int
	beforeRefresh func(ctx context.Context)
	failRefresh   bool
	throttled     map[string]*throttle
}

func New(cfg Config) (*Server, error) {
	tokens, err := newTokenManager(cfg.SecretKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	if len(cfg.Methods) == 0 {
		cfg.Methods = []models.AuthMethod{models.AuthMethodEmail, models.AuthMethodCode, models.AuthMethodOAuth}
	}
	if cfg.OAuthProvider == "" {
		cfg.OAuthProvider = defaultOAuthProvider
	}
	if cfg.OAuthAuthURL == "" {
		cfg.OAuthAuthURL = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = defaultCodeTTL
	}

	s := &Server{
		cfg:       cfg,
		store:     newMemStore(),
		tokens:    tokens,
		hasher:    cfg.Hasher,
		log:       cfg.Logger,
		hits:      make(map[string]int),
		throttled: make(map[string]*throttle),
	}
	if s.hasher == nil {
		s.hasher = BcryptHasher{}
	}
	if s.log == nil {
		s.log = logger.NewNoOpLogger()
	}

	if cfg.InitialAdminEmail != "" {
		if _, err := s.CreateUser(cfg.InitialAdminEmail, cfg.InitialAdminPassword, true); err != nil {
			return nil, err
		}
		s.log.Info("initial admin created", "email", cfg.InitialAdminEmail)
	}

	s.handler = s.routes()
	return s, nil
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func (s *Server) routes() http.Handler {
	auth := middleware.NewAuth(s)

	api := http.NewServeMux()

	api.HandleFunc("GET /auth/methods", s.handleMethods)
	api.HandleFunc("POST /auth/register", s.handleRegister)
	api.HandleFunc("POST /auth/login", s.handleLogin)
	api.Handle("POST /auth/logout", auth.Auth(http.HandlerFunc(s.handleLogout)))
	api.HandleFunc("POST /auth/refresh", s.handleRefresh)
	api.Handle("GET /auth/me", auth.Auth(http.HandlerFunc(s.handleMe)))
	api.Handle("DELETE /auth/me", auth.Auth(http.HandlerFunc(s.handleDeleteAccount)))
	api.Handle("GET /auth/me/export", auth.Auth(http.HandlerFunc(s.handleExport)))
	api.HandleFunc("POST /auth/code/request", s.handleCodeRequest)
	api.HandleFunc("POST /auth/code/verify", s.handleCodeVerify)
	api.HandleFunc("GET /auth/oidc/{provider}/authorize", s.handleOAuthAuthorize)
	api.HandleFunc("POST /auth/oidc/{provider}/callback", s.handleOAuthCallback)

	api.Handle("GET /demo/items", auth.Auth(http.HandlerFunc(s.handleListItems)))
	api.Handle("POST /demo/items", auth.Auth(http.HandlerFunc(s.handleCreateItem)))
	api.Handle("GET /demo/items/{id}", auth.Auth(http.HandlerFunc(s.handleGetItem)))
	api.Handle("PUT /demo/items/{id}", auth.Auth(http.HandlerFunc(s.handleUpdateItem)))
	api.Handle("DELETE /demo/items/{id}", auth.Auth(http.HandlerFunc(s.handleDeleteItem)))

	api.Handle("GET /admin/audit-logs", auth.Admin(http.HandlerFunc(s.handleAuditLogs)))
	api.Handle("GET /admin/users", auth.Admin(http.HandlerFunc(s.handleListUsers)))
	api.Handle("POST /admin/users", auth.Admin(http.HandlerFunc(s.handleCreateUser)))
	api.Handle("PATCH /admin/users/{id}", auth.Admin(http.HandlerFunc(s.handleUpdateUser)))

	root := http.NewServeMux()
	root.Handle(BasePath+"/", http.StripPrefix(BasePath, chain(api, s.count, s.throttle)))
	root.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, map[string]string{"status": "healthy"})
	})

	return chain(root,
		middleware.RequestID,
		middleware.Logger(s.log),
		middleware.Audit(s.store),
	)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Auth authenticates the request by its bearer access token
func (s *Server) Auth(_ context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return models.User{}, authError{detail: "Not authenticated"}
	}

	userID, err := s.tokens.parseAccess(token)
	if err != nil {
		return models.User{}, authError{detail: "Invalid or expired token", err: err}
	}

	user, err := s.store.userByID(userID)
	if err != nil || !user.IsActive {
		return models.User{}, authError{detail: "User not found or inactive", err: err}
	}

	return user, nil
}

// Authentication failure, detail is sent to the client
type authError struct {
	detail string
	err    error
}

func (e authError) Error() string {
	if e.err != nil {
		return "authentication failed: " + e.err.Error()
	}
	return "authentication failed"
}

func (e authError) Detail() string { return e.detail }

func (e authError) Unwrap() error { return e.err }

// Counts requests per API path (without BasePath)
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		t, ok := s.throttled[r.URL.Path]
		limited := ok && t.remaining > 0
		var retryAfter time.Duration
		if limited {
			t.remaining--
			retryAfter = t.retryAfter
		}
		s.mu.Unlock()

		if limited {
			w.Header().Set("Retry-After", formatSeconds(retryAfter))
			render.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Hits returns number of requests received on the API path, e.g. "/auth/refresh"
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// OnRefresh sets hook called on every refresh request before the token is rotated
// It may block to hold the refresh in flight
func (s *Server) OnRefresh(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeRefresh = fn
}

// FailRefresh makes every refresh request fail with 401 while set
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// Throttle answers next n requests on the API path with 429 and Retry-After
func (s *Server) Throttle(path string, n int, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttled[path] = &throttle{remaining: n, retryAfter: retryAfter}
}

// ExpireAccessTokens makes every access token issued so far invalid
// Refresh tokens stay valid, so clients recover with a refresh
func (s *Server) ExpireAccessTokens() {
	s.tokens.expireAll()
}

// GrantOAuthCode simulates the provider redirect: returns an authorization code
// the callback endpoint exchanges for the email
func (s *Server) GrantOAuthCode(email string) string {
	code := randomString(24)
	s.store.saveOAuthCode(code, email)
	return code
}

// CreateUser stores a user with password, as admin if asked
func (s *Server) CreateUser(email string, password string, isAdmin bool) (models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}
	return s.store.createUser(email, hash, isAdmin)
}

// AuditLogs returns every recorded request, newest first
func (s *Server) AuditLogs() []models.AuditLog {
	return s.store.auditLogs(models.AuditLogFilter{Page: 1, Limit: 1 << 30}).Items
}
