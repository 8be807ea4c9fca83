package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authaudit/internal/models"
)

// Requests under these prefixes are never recorded
var auditExcluded = []string{"/health", "/favicon.ico"}

type auditRecorder interface {
	RecordAudit(ctx context.Context, entry models.AuditLog)
}

// Filled by WithUser once the request is authenticated
type trace struct {
	mu     sync.Mutex
	userID *uuid.UUID
}

func (t *trace) setUser(u models.User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := u.ID
	t.userID = &id
}

func (t *trace) user() *uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// Audit records every request with its outcome
// Must be installed after RequestID
func Audit(rec auditRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range auditExcluded {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			t := &trace{}
			lw := newLogWriter(w)

			next.ServeHTTP(lw, r.WithContext(context.WithValue(r.Context(), traceKey, t)))

			entry := models.AuditLog{
				ID:         uuid.New(),
				RequestID:  RequestIDFromContext(r.Context()),
				UserID:     t.user(),
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: lw.data.responseStatus,
				DurationMS: time.Since(start).Milliseconds(),
				CreatedAt:  start.UTC(),
			}
			if entry.RequestID == "" {
				entry.RequestID = "unknown"
			}
			if host := clientHost(r); host != "" {
				entry.IP = &host
			}
			if ua := r.UserAgent(); ua != "" {
				entry.UserAgent = &ua
			}

			rec.RecordAudit(r.Context(), entry)
		})
	}
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
