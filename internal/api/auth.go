package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/models"
)

type AuthAPI struct {
	c doer
}

// Methods returns authentication methods enabled on the server
func (a *AuthAPI) Methods(ctx context.Context) (models.AuthMethods, error) {
	var m models.AuthMethods
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/auth/methods"}, &m)
	return m, err
}

func (a *AuthAPI) Login(ctx context.Context, email string, password string) (models.TokenResponse, error) {
	var t models.TokenResponse
	err := a.c.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      models.Credentials{Email: email, Password: password},
		NoRefresh: true,
	}, &t)
	return t, err
}

func (a *AuthAPI) Register(ctx context.Context, email string, password string) (models.User, error) {
	var u models.User
	err := a.c.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register",
		Body:      models.Credentials{Email: email, Password: password},
		NoRefresh: true,
	}, &u)
	return u, err
}

func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.c.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: "/auth/logout"}, nil)
}

// Refresh exchanges the refresh cookie for a new access token
// A 401 here clears the session token
func (a *AuthAPI) Refresh(ctx context.Context) (models.TokenResponse, error) {
	var t models.TokenResponse
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: apiclient.RefreshPath}, &t)
	return t, err
}

func (a *AuthAPI) Me(ctx context.Context) (models.User, error) {
	var u models.User
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/auth/me"}, &u)
	return u, err
}

// RequestCode asks the server to send one-time code to email
func (a *AuthAPI) RequestCode(ctx context.Context, email string) (models.CodeRequestResponse, error) {
	var r models.CodeRequestResponse
	err := a.c.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/code/request",
		Body:      models.CodeRequest{Email: email},
		NoRefresh: true,
	}, &r)
	return r, err
}

func (a *AuthAPI) VerifyCode(ctx context.Context, email string, code string) (models.TokenResponse, error) {
	var t models.TokenResponse
	err := a.c.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/code/verify",
		Body:      models.CodeVerify{Email: email, Code: code},
		NoRefresh: true,
	}, &t)
	return t, err
}

// OAuthAuthorizeURL returns provider page the user has to be sent to
func (a *AuthAPI) OAuthAuthorizeURL(ctx context.Context, provider string) (string, error) {
	var r models.OAuthAuthorize
	err := a.c.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/auth/oidc/" + url.PathEscape(provider) + "/authorize",
	}, &r)
	return r.AuthorizeURL, err
}

func (a *AuthAPI) OAuthCallback(ctx context.Context, provider string, code string, state string) (models.TokenResponse, error) {
	var t models.TokenResponse
	err := a.c.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/oidc/" + url.PathEscape(provider) + "/callback",
		Body:      models.OAuthCallback{Code: code, State: state},
		NoRefresh: true,
	}, &t)
	return t, err
}

// DeleteAccount erases the current user and all of its data
func (a *AuthAPI) DeleteAccount(ctx context.Context) error {
	return a.c.Do(ctx, &apiclient.Request{Method: http.MethodDelete, Path: "/auth/me"}, nil)
}

// ExportData returns the raw export document, it is meant to be saved as is
func (a *AuthAPI) ExportData(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/auth/me/export"}, &raw)
	return raw, err
}
