package models

import (
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultAuditPageSize = 50
	MaxAuditPageSize     = 100
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	RequestID  string     `json:"request_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	UserEmail  *string    `json:"user_email,omitempty"`
	Method     string     `json:"method"`
	Path       string     `json:"path"`
	StatusCode int        `json:"status_code"`
	DurationMS int64      `json:"duration_ms"`
	IP         *string    `json:"ip,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AuditLogList struct {
	Items []AuditLog `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// Zero fields are not sent
type AuditLogFilter struct {
	UserEmail string
	Method    string
	Path      string
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

// Query encodes the filter as audit-logs query parameters
func (f AuditLogFilter) Query() url.Values {
	q := url.Values{}

	setString := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	setTime := func(key string, value time.Time) {
		if !value.IsZero() {
			q.Set(key, value.UTC().Format(time.RFC3339Nano))
		}
	}
	setInt := func(key string, value int) {
		if value > 0 {
			q.Set(key, strconv.Itoa(value))
		}
	}

	setString("user_email", f.UserEmail)
	setString("method", f.Method)
	setString("path", f.Path)
	setTime("from", f.From)
	setTime("to", f.To)
	setInt("page", f.Page)
	setInt("limit", f.Limit)

	return q
}

// ParseAuditLogFilter is the inverse of Query, fractional seconds are accepted
// Page and limit get defaults and are clamped into allowed range
func ParseAuditLogFilter(q url.Values) (AuditLogFilter, error) {
	f := AuditLogFilter{
		UserEmail: q.Get("user_email"),
		Method:    q.Get("method"),
		Path:      q.Get("path"),
		Page:      1,
		Limit:     DefaultAuditPageSize,
	}

	parseTime := func(key string, dst *time.Time) error {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return err
			}
			*dst = t
		}
		return nil
	}
	parseInt := func(key string, dst *int) error {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
		}
		return nil
	}

	for _, err := range []error{
		parseTime("from", &f.From),
		parseTime("to", &f.To),
		parseInt("page", &f.Page),
		parseInt("limit", &f.Limit),
	} {
		if err != nil {
			return f, err
		}
	}

	f.Page = max(f.Page, 1)
	f.Limit = min(max(f.Limit, 1), MaxAuditPageSize)

	return f, nil
}
