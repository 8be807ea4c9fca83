package models

import (
	"time"

	"github.com/google/uuid"
)

type DemoItem struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	UserID      uuid.UUID  `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type DemoItemCreate struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
}

// Nil fields are left unchanged
type DemoItemUpdate struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty"`
}
