package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/authaudit/internal/apperrors"
)

// Limit of error body read into memory
const maxErrorBodySize = 64 << 10

// Error is returned for every non-2xx API response
type Error struct {
	Method     string
	Path       string
	StatusCode int

	// Human readable message from the API "detail" field
	Detail string

	// Per field messages when the API rejected request validation
	Fields map[string]string

	RequestID  string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.RequestID != "" {
		msg += " (request_id=" + e.RequestID + ")"
	}
	return msg
}

// Is maps status codes to apperrors sentinels, so errors.Is(err, apperrors.ErrNotFound) works
func (e *Error) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return target == apperrors.ErrForbidden
	case http.StatusNotFound:
		return target == apperrors.ErrNotFound
	case http.StatusConflict:
		return target == apperrors.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return target == apperrors.ErrValidation
	case http.StatusTooManyRequests:
		return target == apperrors.ErrRateLimited
	default:
		return false
	}
}

// Error body of the API, "detail" is either a message or a list of validation errors
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type validationDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// newError reads and closes response body
func newError(resp *http.Response) *Error {
	defer resp.Body.Close() // nolint:errcheck

	e := &Error{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(RequestIDHeader),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		e.Detail = http.StatusText(resp.StatusCode)
		return e
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		e.Detail = strings.TrimSpace(string(raw))
		return e
	}

	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		e.Detail = detail
		return e
	}

	var details []validationDetail
	if err := json.Unmarshal(body.Detail, &details); err == nil {
		e.Detail = "Request validation failed"
		e.Fields = make(map[string]string, len(details))
		for _, d := range details {
			e.Fields[fieldName(d.Loc)] = d.Msg
		}
		return e
	}

	e.Detail = string(body.Detail)
	return e
}

// Location is like ["body", "email"], the last element names the field
func fieldName(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	return fmt.Sprint(loc[len(loc)-1])
}

// Seconds only, default to 60 seconds if parsing fails
func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}
