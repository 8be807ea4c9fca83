package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Page of users returned by admin users endpoint
type UserList struct {
	Items []User `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type AdminUserCreate struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	IsAdmin  bool   `json:"is_admin"`
}

// Nil fields are left unchanged
type AdminUserUpdate struct {
	IsActive *bool `json:"is_active,omitempty"`
	IsAdmin  *bool `json:"is_admin,omitempty"`
}

// Personal data export (right to data portability)
type UserExport struct {
	User         User       `json:"user"`
	DemoItems    []DemoItem `json:"demo_items"`
	ActivityLogs []AuditLog `json:"activity_logs"`
	ExportedAt   time.Time  `json:"exported_at"`
}
