package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/authaudit/internal/apitest/render"
	"github.com/nkiryanov/authaudit/internal/models"
)

type authService interface {
	// Return user the request is authenticated as
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// Errors with Detail are rendered with it, others as "Not authenticated"
type detailer interface {
	Detail() string
}

type AuthMiddleware struct {
	service authService
}

func NewAuth(s authService) *AuthMiddleware {
	return &AuthMiddleware{service: s}
}

// Auth rejects unauthenticated requests with 401
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.service.Auth(r.Context(), r)
		if err != nil {
			detail := "Not authenticated"
			if d, ok := err.(detailer); ok {
				detail = d.Detail()
			}
			render.Unauthorized(w, detail)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Admin additionally requires the user to be an admin, 403 otherwise
func (m *AuthMiddleware) Admin(next http.Handler) http.Handler {
	return m.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if !user.IsAdmin {
			render.Error(w, "Admin privileges required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
