package apperrors

import (
	"errors"
)

var (
	// Returned by the API, matched against *apiclient.Error by status code
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")

	// Session could not be recovered with a token refresh, user has to sign in again
	ErrSessionExpired = errors.New("session expired")

	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrCodeInvalid          = errors.New("code is invalid or expired")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemForeign          = errors.New("item belongs to another user")
)
