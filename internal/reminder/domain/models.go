// Package domain contains the reminder cadence models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReminderType names a tier in the cadence around an invoice's due date.
type ReminderType string

const (
	ReminderTypeUpcoming  ReminderType = "upcoming"
	ReminderTypeDue       ReminderType = "due"
	ReminderTypeOverdue3  ReminderType = "overdue_3"
	ReminderTypeOverdue7  ReminderType = "overdue_7"
	ReminderTypeOverdue14 ReminderType = "overdue_14"
	ReminderTypeOverdue30 ReminderType = "overdue_30"
)

type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSent    ReminderStatus = "sent"
	ReminderStatusSkipped ReminderStatus = "skipped"
)

// CadenceOffsets is the fixed schedule relative to due date: one nudge
// before, one on the day, four overdue tiers.
var CadenceOffsets = []struct {
	Type   ReminderType
	Offset time.Duration
}{
	{ReminderTypeUpcoming, -3 * 24 * time.Hour},
	{ReminderTypeDue, 0},
	{ReminderTypeOverdue3, 3 * 24 * time.Hour},
	{ReminderTypeOverdue7, 7 * 24 * time.Hour},
	{ReminderTypeOverdue14, 14 * 24 * time.Hour},
	{ReminderTypeOverdue30, 30 * 24 * time.Hour},
}

// Reminder fires at most once; SentAt is the idempotency marker. Skipped
// reminders stay in the table as inert rows.
type Reminder struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID   `gorm:"not null;index" json:"invoice_id"`
	Type        ReminderType   `gorm:"type:text;not null" json:"type"`
	Status      ReminderStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ScheduledAt time.Time      `gorm:"not null;index" json:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Reminder) TableName() string { return "reminders" }

type SweepResult struct {
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type Service interface {
	ListForInvoice(ctx context.Context, invoiceID string) ([]Reminder, error)
	Skip(ctx context.Context, id string) (Reminder, error)
	DispatchDue(ctx context.Context) (SweepResult, error)
}

var (
	ErrNotFound    = errors.New("reminder_not_found")
	ErrAlreadySent = errors.New("reminder_already_sent")
	ErrInvalidID   = errors.New("invalid_id")
)
