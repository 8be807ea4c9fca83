package apitest

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/authaudit/internal/apitest/middleware"
	"github.com/nkiryanov/authaudit/internal/apitest/render"
	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/models"
)

// Parse id path value, renders 422 if it is not uuid
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.JSONWithStatus(w, render.ValidationResponse{Detail: []render.FieldError{{
			Loc:  []string{"path", "id"},
			Msg:  "Input should be a valid UUID",
			Type: "uuid_parsing",
		}}}, http.StatusUnprocessableEntity)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) itemError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, apperrors.ErrItemNotFound):
		render.Error(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrItemForeign):
		render.Error(w, "Not authorized to "+action+" this item", http.StatusForbidden)
	default:
		s.internalError(w, "item "+action+" failed", err)
	}
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	render.JSON(w, s.store.listItems(user.ID))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	data, err := render.BindAndValidate[models.DemoItemCreate](w, r)
	if err != nil {
		return
	}

	render.JSONWithStatus(w, s.store.createItem(user.ID, data), http.StatusCreated)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := s.store.getItem(id, user.ID)
	if err != nil {
		s.itemError(w, err, "access")
		return
	}
	render.JSON(w, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, err := render.BindAndValidate[models.DemoItemUpdate](w, r)
	if err != nil {
		return
	}

	item, err := s.store.updateItem(id, user.ID, data)
	if err != nil {
		s.itemError(w, err, "update")
		return
	}
	render.JSON(w, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.store.deleteItem(id, user.ID); err != nil {
		s.itemError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
