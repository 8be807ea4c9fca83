package apitest

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/nkiryanov/authaudit/internal/apitest/middleware"
	"github.com/nkiryanov/authaudit/internal/apitest/render"
	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/models"
)

func (s *Server) enabled(m models.AuthMethod) bool {
	return slices.Contains(s.cfg.Methods, m)
}

func (s *Server) handleMethods(w http.ResponseWriter, _ *http.Request) {
	resp := models.AuthMethods{Methods: s.cfg.Methods}
	if s.enabled(models.AuthMethodOAuth) {
		resp.OAuthProviders = []string{s.cfg.OAuthProvider}
	}
	render.JSON(w, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	if !s.enabled(models.AuthMethodEmail) {
		render.Error(w, "Email authentication is disabled", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, err := s.CreateUser(data.Email, data.Password, false)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "User with this email already exists", http.StatusConflict)
		default:
			s.internalError(w, "register failed", err)
		}
		return
	}

	render.JSONWithStatus(w, user, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if !s.enabled(models.AuthMethodEmail) {
		render.Error(w, "Email authentication is disabled", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, hash, err := s.store.userByEmail(data.Email)
	if err != nil || hash == "" || !user.IsActive || s.hasher.Compare(hash, data.Password) != nil {
		render.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	s.issueTokens(w, r, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		s.store.revokeRefresh(cookie.Value)
	}

	s.clearRefreshCookie(w)
	render.JSON(w, models.Message{Message: "Logged out successfully"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook, fail := s.beforeRefresh, s.failRefresh
	s.mu.Unlock()

	if hook != nil {
		hook(r.Context())
	}

	if fail {
		render.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		render.Error(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	userID, err := s.store.useRefresh(cookie.Value)
	if err != nil {
		s.log.Info("refresh rejected", "error", err)
		render.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	user, err := s.store.userByID(userID)
	if err != nil || !user.IsActive {
		render.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	s.issueTokens(w, r, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	render.JSON(w, user)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	s.store.deleteUser(user.ID)
	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	render.JSON(w, models.UserExport{
		User:         user,
		DemoItems:    s.store.listItems(user.ID),
		ActivityLogs: s.store.userActivity(user.ID),
		ExportedAt:   time.Now().UTC(),
	})
}

func (s *Server) handleCodeRequest(w http.ResponseWriter, r *http.Request) {
	if !s.enabled(models.AuthMethodCode) {
		render.Error(w, "Code authentication is disabled", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[models.CodeRequest](w, r)
	if err != nil {
		return
	}

	// Unknown emails get an account without password
	isNewUser := false
	user, _, err := s.store.userByEmail(data.Email)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		user, err = s.store.createUser(data.Email, "", false)
		isNewUser = true
	}
	if err != nil {
		s.internalError(w, "code request failed", err)
		return
	}

	code, err := randomDigits(s.cfg.CodeLength)
	if err != nil {
		s.internalError(w, "code generation failed", err)
		return
	}
	s.store.saveCode(user.ID, code, time.Now().Add(s.cfg.CodeTTL))

	resp := models.CodeRequestResponse{Message: "Code sent successfully"}
	if s.cfg.Debug {
		resp.DebugCode = code
		resp.IsNewUser = &isNewUser
	}
	render.JSON(w, resp)
}

func (s *Server) handleCodeVerify(w http.ResponseWriter, r *http.Request) {
	if !s.enabled(models.AuthMethodCode) {
		render.Error(w, "Code authentication is disabled", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[models.CodeVerify](w, r)
	if err != nil {
		return
	}

	user, _, err := s.store.userByEmail(data.Email)
	if err != nil || s.store.useCode(user.ID, data.Code) != nil {
		render.Error(w, "Invalid or expired code", http.StatusUnauthorized)
		return
	}

	s.issueTokens(w, r, user)
}

// Provider check shared by the OAuth endpoints, renders error itself
func (s *Server) oauthProvider(w http.ResponseWriter, r *http.Request) bool {
	if !s.enabled(models.AuthMethodOAuth) {
		render.Error(w, "OAuth authentication is disabled", http.StatusBadRequest)
		return false
	}

	if provider := r.PathValue("provider"); provider != s.cfg.OAuthProvider {
		render.Error(w, fmt.Sprintf("Unknown OAuth provider: %s", provider), http.StatusBadRequest)
		return false
	}

	return true
}

func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	if !s.oauthProvider(w, r) {
		return
	}

	state := randomString(32)
	s.store.saveOAuthState(state)

	conf := oauth2.Config{
		ClientID:    s.cfg.OAuthClientID,
		RedirectURL: s.cfg.OAuthRedirectURL,
		Scopes:      []string{"openid", "email", "profile"},
		Endpoint:    oauth2.Endpoint{AuthURL: s.cfg.OAuthAuthURL},
	}
	authorizeURL := conf.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))

	render.JSON(w, models.OAuthAuthorize{AuthorizeURL: authorizeURL})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oauthProvider(w, r) {
		return
	}

	data, err := render.BindAndValidate[models.OAuthCallback](w, r)
	if err != nil {
		return
	}

	if !s.store.useOAuthState(data.State) {
		render.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	email, ok := s.store.useOAuthCode(data.Code)
	if !ok {
		render.Error(w, "Failed to exchange code for tokens", http.StatusBadRequest)
		return
	}

	user, _, err := s.store.userByEmail(email)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		user, err = s.store.createUser(email, "", false)
	}
	if err != nil {
		s.internalError(w, "oauth sign in failed", err)
		return
	}

	s.issueTokens(w, r, user)
}

// Issue new token pair: refresh token goes to cookie, access token to the body
func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, user models.User) {
	pair, err := s.tokens.generatePair(user.ID)
	if err != nil {
		s.internalError(w, "token could not be generated", err)
		return
	}
	s.store.saveRefresh(pair.Refresh.Value, user.ID, pair.Refresh.ExpiresAt)

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(s.tokens.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   !s.cfg.Debug && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	render.JSON(w, models.TokenResponse{
		AccessToken: pair.Access.Value,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.accessTTL.Seconds()),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, "error", err)
	render.Error(w, "Internal server error", http.StatusInternalServerError)
}

// URL safe random string of n random bytes
func randomString(n int) string {
	b := make([]byte, n)
	// rand.Read never returns an error
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

// Retry-After value in whole seconds, rounded up
func formatSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(max(secs, 0), 10)
}
