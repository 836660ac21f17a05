// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoftDelete keeps the explicit is_deleted/deleted_at pair. Rows are never
// hidden by gorm scopes; callers filter on is_deleted themselves.
type SoftDelete struct {
	IsDeleted bool       `json:"is_deleted" gorm:"default:false;not null;index"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (s *SoftDelete) MarkDeleted(at time.Time) {
	s.IsDeleted = true
	s.DeletedAt = &at
}

func (s *SoftDelete) Restore() {
	s.IsDeleted = false
	s.DeletedAt = nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserRole string

const (
	UserRoleEmployee   UserRole = "employee"
	UserRoleAnalyst    UserRole = "analyst"
	UserRoleSupervisor UserRole = "supervisor"
	UserRoleAdmin      UserRole = "admin"
)

// CanSeeAllLicenses reports whether the role may list other users' licenses.
func (r UserRole) CanSeeAllLicenses() bool {
	return r == UserRoleSupervisor || r == UserRoleAdmin
}

type StatusName string

const (
	StatusPending    StatusName = "pending"
	StatusApproved   StatusName = "approved"
	StatusRejected   StatusName = "rejected"
	StatusExpired    StatusName = "expired"
	StatusMissingDoc StatusName = "missing_doc"
)

func (s StatusName) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusMissingDoc:
		return true
	}
	return false
}

// Terminal statuses are never re-derived.
func (s StatusName) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}
