// Package auth keeps the signed in user of one session
//
// Store wraps the auth endpoints: it puts issued access tokens into the
// session and keeps the current user, the enabled sign in methods and the
// loading flag. Authentication itself is the session token, so a session
// cleared by a failed refresh reads as signed out here too.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/models"
	"github.com/nkiryanov/authaudit/internal/session"
)

var ErrNoToken = errors.New("no access token")

type authAPI interface {
	Methods(ctx context.Context) (models.AuthMethods, error)
	Login(ctx context.Context, email string, password string) (models.TokenResponse, error)
	Register(ctx context.Context, email string, password string) (models.User, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (models.TokenResponse, error)
	Me(ctx context.Context) (models.User, error)
	RequestCode(ctx context.Context, email string) (models.CodeRequestResponse, error)
	VerifyCode(ctx context.Context, email string, code string) (models.TokenResponse, error)
	OAuthAuthorizeURL(ctx context.Context, provider string) (string, error)
	OAuthCallback(ctx context.Context, provider string, code string, state string) (models.TokenResponse, error)
}

// Snapshot is a consistent copy of the store state
type Snapshot struct {
	User           *models.User
	Methods        []models.AuthMethod
	OAuthProviders []string
	Authenticated  bool
	IsAdmin        bool
	Loading        bool
}

// Registered claims of the access token, informational only
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Store struct {
	api     authAPI
	session *session.State
	logger  logger.Logger

	mu        sync.RWMutex
	user      *models.User
	methods   []models.AuthMethod
	providers []string
	loading   bool
}

func NewStore(api authAPI, s *session.State, l logger.Logger) *Store {
	return &Store{
		api:     api,
		session: s,
		logger:  l,
		loading: true,
	}
}

// FetchAuthMethods loads sign in methods enabled on the server
// On failure the error is logged and the known methods are kept
func (s *Store) FetchAuthMethods(ctx context.Context) error {
	m, err := s.api.Methods(ctx)
	if err != nil {
		s.logger.Error("failed to fetch auth methods", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = m.Methods
	s.providers = m.OAuthProviders
	return nil
}

func (s *Store) Login(ctx context.Context, email string, password string) error {
	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return s.signIn(ctx, tokens)
}

// Register creates the account, it does not sign in
func (s *Store) Register(ctx context.Context, email string, password string) (models.User, error) {
	return s.api.Register(ctx, email, password)
}

// Logout always ends the local session, server errors are only logged
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("logout error", "error", err)
	}

	s.Reset()
	s.setLoading(false)
}

// Refresh tries to restore the session from the refresh cookie
// Reports whether the session is signed in afterwards
func (s *Store) Refresh(ctx context.Context) bool {
	tokens, err := s.api.Refresh(ctx)
	if err != nil {
		s.logger.Debug("session refresh failed", "error", err)
		s.Reset()
		s.setLoading(false)
		return false
	}

	s.session.SetToken(tokens.AccessToken)
	return true
}

// FetchCurrentUser loads the signed in user, the user is nil on failure
func (s *Store) FetchCurrentUser(ctx context.Context) {
	u, err := s.api.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		s.logger.Debug("failed to fetch current user", "error", err)
		s.user = nil
		return
	}
	s.user = &u
}

// RequestCode asks the server to send one-time code to email
func (s *Store) RequestCode(ctx context.Context, email string) (models.CodeRequestResponse, error) {
	return s.api.RequestCode(ctx, email)
}

func (s *Store) LoginWithCode(ctx context.Context, email string, code string) error {
	tokens, err := s.api.VerifyCode(ctx, email, code)
	if err != nil {
		return fmt.Errorf("code verification failed: %w", err)
	}
	return s.signIn(ctx, tokens)
}

// StartOAuth returns the provider page the user has to open
func (s *Store) StartOAuth(ctx context.Context, provider string) (string, error) {
	return s.api.OAuthAuthorizeURL(ctx, provider)
}

// HandleOAuthCallback completes the provider redirect with its code and state
func (s *Store) HandleOAuthCallback(ctx context.Context, provider string, code string, state string) error {
	tokens, err := s.api.OAuthCallback(ctx, provider, code, state)
	if err != nil {
		return fmt.Errorf("oauth callback failed: %w", err)
	}
	return s.signIn(ctx, tokens)
}

// Initialize loads methods, then silently restores the session and its user
func (s *Store) Initialize(ctx context.Context) {
	s.setLoading(true)

	// Failure is logged, sign in may still work with defaults
	_ = s.FetchAuthMethods(ctx)

	if s.Refresh(ctx) {
		s.FetchCurrentUser(ctx)
	}
}

// Reset drops the token and the user
// Auth methods are server settings and survive it
func (s *Store) Reset() {
	s.session.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.loading = true
}

func (s *Store) Authenticated() bool {
	return s.session.Authenticated()
}

// User returns the signed in user, nil if unknown
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil || !s.session.Authenticated() {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) IsAdmin() bool {
	u := s.User()
	return u != nil && u.IsAdmin
}

func (s *Store) Snapshot() Snapshot {
	user := s.User()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		User:           user,
		Methods:        slices.Clone(s.methods),
		OAuthProviders: slices.Clone(s.providers),
		Authenticated:  s.session.Authenticated(),
		IsAdmin:        user != nil && user.IsAdmin,
		Loading:        s.loading,
	}
}

// TokenInfo decodes the current access token claims without verifying its signature
// The server is the only one to trust the token, the result is for display
func (s *Store) TokenInfo() (TokenInfo, error) {
	token := s.session.Token()
	if token == "" {
		return TokenInfo{}, ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("access token is not a JWT: %w", err)
	}

	info := TokenInfo{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

func (s *Store) signIn(ctx context.Context, tokens models.TokenResponse) error {
	if tokens.AccessToken == "" {
		return errors.New("server returned empty access token")
	}

	s.session.SetToken(tokens.AccessToken)
	s.FetchCurrentUser(ctx)
	return nil
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}
