package apitest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nkiryanov/authaudit/internal/apitest/middleware"
	"github.com/nkiryanov/authaudit/internal/apitest/render"
	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/models"
)

func queryError(w http.ResponseWriter, err error) {
	render.JSONWithStatus(w, render.ValidationResponse{Detail: []render.FieldError{{
		Loc:  []string{"query"},
		Msg:  err.Error(),
		Type: "parsing",
	}}}, http.StatusUnprocessableEntity)
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := models.ParseAuditLogFilter(r.URL.Query())
	if err != nil {
		queryError(w, err)
		return
	}

	render.JSON(w, s.store.auditLogs(filter))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := 1, models.DefaultAuditPageSize

	for key, dst := range map[string]*int{"page": &page, "limit": &limit} {
		if v := r.URL.Query().Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				queryError(w, err)
				return
			}
			*dst = n
		}
	}
	page = max(page, 1)
	limit = min(max(limit, 1), models.MaxAuditPageSize)

	users, total := s.store.listUsers(page, limit)
	render.JSON(w, models.UserList{Items: users, Total: total, Page: page, Limit: limit})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[models.AdminUserCreate](w, r)
	if err != nil {
		return
	}

	user, err := s.CreateUser(data.Email, data.Password, data.IsAdmin)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "User with this email already exists", http.StatusConflict)
		default:
			s.internalError(w, "create user failed", err)
		}
		return
	}

	render.JSONWithStatus(w, user, http.StatusCreated)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, err := render.BindAndValidate[models.AdminUserUpdate](w, r)
	if err != nil {
		return
	}

	if id == current.ID && data.IsAdmin != nil && !*data.IsAdmin {
		render.Error(w, "Cannot remove your own admin privileges", http.StatusBadRequest)
		return
	}

	user, err := s.store.updateUser(id, data)
	if err != nil {
		render.Error(w, "User not found", http.StatusNotFound)
		return
	}
	render.JSON(w, user)
}
