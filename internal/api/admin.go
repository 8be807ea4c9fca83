package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/models"
)

// AdminAPI requires the current user to be an admin, otherwise apperrors.ErrForbidden
type AdminAPI struct {
	c doer
}

func (a *AdminAPI) AuditLogs(ctx context.Context, filter models.AuditLogFilter) (models.AuditLogList, error) {
	var list models.AuditLogList
	err := a.c.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/admin/audit-logs",
		Query:  filter.Query(),
	}, &list)
	return list, err
}

func (a *AdminAPI) Users(ctx context.Context, page int, limit int) (models.UserList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var list models.UserList
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/admin/users", Query: q}, &list)
	return list, err
}

func (a *AdminAPI) CreateUser(ctx context.Context, data models.AdminUserCreate) (models.User, error) {
	var u models.User
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: "/admin/users", Body: data}, &u)
	return u, err
}

func (a *AdminAPI) UpdateUser(ctx context.Context, id uuid.UUID, data models.AdminUserUpdate) (models.User, error) {
	var u models.User
	err := a.c.Do(ctx, &apiclient.Request{Method: http.MethodPatch, Path: "/admin/users/" + id.String(), Body: data}, &u)
	return u, err
}
