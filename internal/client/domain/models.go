// Package domain defines the client records invoices are issued against.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Client struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"not null" json:"email"`
	Company   string         `json:"company,omitempty"`
	Archived  bool           `gorm:"not null;default:false" json:"archived"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }

type CreateClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
}

type UpdateClientRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Company  *string `json:"company,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateClientRequest) (Client, error)
	List(ctx context.Context) ([]Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	Update(ctx context.Context, id string, req UpdateClientRequest) (Client, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound     = errors.New("client_not_found")
	ErrInvalidID    = errors.New("invalid_client_id")
	ErrInvalidName  = errors.New("client_name_required")
	ErrInvalidEmail = errors.New("client_email_invalid")
)
