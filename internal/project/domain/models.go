// Package domain defines projects, the optional grouping invoices bill under.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
)

type Project struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	ClientID  snowflake.ID   `gorm:"not null;index" json:"client_id"`
	Name      string         `gorm:"not null" json:"name"`
	Status    ProjectStatus  `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

type CreateProjectRequest struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

type UpdateProjectRequest struct {
	Name   *string        `json:"name,omitempty"`
	Status *ProjectStatus `json:"status,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateProjectRequest) (Project, error)
	List(ctx context.Context, clientID string) ([]Project, error)
	GetByID(ctx context.Context, id string) (Project, error)
	Update(ctx context.Context, id string, req UpdateProjectRequest) (Project, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound      = errors.New("project_not_found")
	ErrInvalidID     = errors.New("invalid_project_id")
	ErrInvalidName   = errors.New("project_name_required")
	ErrInvalidStatus = errors.New("invalid_project_status")
)
