package apitest

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL  = 30 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var errTokenRevoked = errors.New("token generation revoked")

// Access token claims, subject is the user id
type AccessTokenClaims struct {
	jwt.RegisteredClaims

	// Tokens of older generation are rejected, see ExpireAll
	Generation int64 `json:"gen"`
	Type       string `json:"type"`
}

type issuedToken struct {
	Value     string
	ExpiresAt time.Time
}

type tokenPair struct {
	Access  issuedToken
	Refresh issuedToken
}

// Issues and parses JWT access tokens and random refresh tokens
type tokenManager struct {
	// Secret key to sign access token
	key []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	generation atomic.Int64
}

func newTokenManager(secret string, accessTTL time.Duration, refreshTTL time.Duration) (*tokenManager, error) {
	if secret == "" {
		return nil, errors.New("secret key must not be empty")
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&accessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&refreshTTL, defaultRefreshTokenTTL)

	return &tokenManager{
		key:        []byte(secret),
		alg:        jwt.GetSigningMethod(defaultSigningMethod),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func (m *tokenManager) generatePair(userID uuid.UUID) (tokenPair, error) {
	var pair tokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	// Generate JWT access token decoded as string
	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   userID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			Generation: m.generation.Load(),
			Type:       "access",
		},
	)
	access, err := accessToken.SignedString(m.key)
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	// Generate random refresh token 32 bytes length
	b := make([]byte, 32)
	_, err = rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}

	return tokenPair{
		Access:  issuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: issuedToken{Value: hex.EncodeToString(b), ExpiresAt: refreshExpiresAt},
	}, nil
}

// Parse and validate access token
func (m *tokenManager) parseAccess(access string) (uuid.UUID, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	if claims.Type != "access" {
		return uuid.Nil, errors.New("not an access token")
	}

	if claims.Generation < m.generation.Load() {
		return uuid.Nil, errTokenRevoked
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject. Err: %w", err)
	}

	return userID, nil
}

// expireAll makes every access token issued so far invalid
func (m *tokenManager) expireAll() {
	m.generation.Add(1)
}
