// Package domain contains recurring pattern and scheduled invoice models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// InvoiceTemplate is the JSON payload a pattern or scheduled invoice
// materializes from.
type InvoiceTemplate struct {
	LineItems      []invoicedomain.LineItemInput `json:"line_items"`
	TaxRateBps     int64                         `json:"tax_rate_bps,omitempty"`
	DiscountAmount int64                         `json:"discount_amount,omitempty"`
	NetTermsDays   int                           `json:"net_terms_days,omitempty"`
	Notes          string                        `json:"notes,omitempty"`
}

// RecurringPattern periodically materializes new draft invoices. AnchorDay
// pins the day-of-month for monthly and quarterly cadences; generation
// clamps to month end when the anchor does not exist (Jan 31 -> Feb 28/29).
type RecurringPattern struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	ClientID         snowflake.ID   `gorm:"not null;index" json:"client_id"`
	ProjectID        *snowflake.ID  `gorm:"index" json:"project_id,omitempty"`
	Frequency        Frequency      `gorm:"type:text;not null" json:"frequency"`
	AnchorDay        int            `gorm:"not null;default:0" json:"anchor_day"`
	Template         datatypes.JSON `gorm:"not null" json:"template"`
	Active           bool           `gorm:"not null;default:true;index" json:"active"`
	NextGenerationAt time.Time      `gorm:"not null;index" json:"next_generation_at"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (RecurringPattern) TableName() string { return "recurring_patterns" }

type ScheduledState string

const (
	ScheduledStatePending   ScheduledState = "pending"
	ScheduledStateFired     ScheduledState = "fired"
	ScheduledStateCancelled ScheduledState = "cancelled"
)

// ScheduledInvoice is a one-shot future invoice request. Firing is
// idempotent per row; a failed fire is logged and left pending for manual
// retry.
type ScheduledInvoice struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	ClientID       snowflake.ID   `gorm:"not null;index" json:"client_id"`
	ProjectID      *snowflake.ID  `gorm:"index" json:"project_id,omitempty"`
	Template       datatypes.JSON `gorm:"not null" json:"template"`
	TriggerAt      time.Time      `gorm:"not null;index" json:"trigger_at"`
	State          ScheduledState `gorm:"type:text;not null;default:'pending';index" json:"state"`
	FiredInvoiceID *snowflake.ID  `json:"fired_invoice_id,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ScheduledInvoice) TableName() string { return "scheduled_invoices" }

type CreatePatternRequest struct {
	ClientID  string          `json:"client_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Frequency Frequency       `json:"frequency"`
	AnchorDay int             `json:"anchor_day,omitempty"`
	Template  InvoiceTemplate `json:"template"`
	StartAt   *time.Time      `json:"start_at,omitempty"`
}

type ScheduleInvoiceRequest struct {
	ClientID  string          `json:"client_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Template  InvoiceTemplate `json:"template"`
	TriggerAt time.Time       `json:"trigger_at"`
}

type SweepResult struct {
	Generated int      `json:"generated"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type Service interface {
	CreatePattern(ctx context.Context, req CreatePatternRequest) (RecurringPattern, error)
	ListPatterns(ctx context.Context) ([]RecurringPattern, error)
	PausePattern(ctx context.Context, id string) (RecurringPattern, error)
	ResumePattern(ctx context.Context, id string) (RecurringPattern, error)
	DeletePattern(ctx context.Context, id string) error
	GenerateDue(ctx context.Context) (SweepResult, error)

	Schedule(ctx context.Context, req ScheduleInvoiceRequest) (ScheduledInvoice, error)
	ListScheduled(ctx context.Context) ([]ScheduledInvoice, error)
	CancelScheduled(ctx context.Context, id string) (ScheduledInvoice, error)
	FireDue(ctx context.Context) (SweepResult, error)
}

var (
	ErrNotFound         = errors.New("pattern_not_found")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidFrequency = errors.New("invalid_frequency")
	ErrNotPending       = errors.New("scheduled_invoice_not_pending")
)
