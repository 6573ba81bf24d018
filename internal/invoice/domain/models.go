// Package domain contains persistence models and rules for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceType distinguishes regular invoices from upfront deposits whose
// paid balance can later be drawn down as credit.
type InvoiceType string

const (
	InvoiceTypeStandard InvoiceType = "standard"
	InvoiceTypeDeposit  InvoiceType = "deposit"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is the anchor row for payments, credits and reminders.
// Amounts are integer cents. PaidAmount never exceeds TotalAmount.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceNumber string            `gorm:"uniqueIndex;not null" json:"invoice_number"`
	ClientID      snowflake.ID      `gorm:"not null;index" json:"client_id"`
	ProjectID     *snowflake.ID     `gorm:"index" json:"project_id,omitempty"`
	Type          InvoiceType       `gorm:"type:text;not null;default:'standard'" json:"type"`
	Status        InvoiceStatus     `gorm:"type:text;not null;default:'draft';index" json:"status"`
	LineItems     []InvoiceLineItem `gorm:"foreignKey:InvoiceID" json:"line_items"`

	SubtotalAmount int64 `gorm:"not null;default:0" json:"subtotal_amount"`
	TaxRateBps     int64 `gorm:"not null;default:0" json:"tax_rate_bps"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount    int64 `gorm:"not null;default:0" json:"total_amount"`
	PaidAmount     int64 `gorm:"not null;default:0" json:"paid_amount"`

	IssuedAt         *time.Time `json:"issued_at,omitempty"`
	DueAt            *time.Time `gorm:"index" json:"due_at,omitempty"`
	LateFeeAppliedAt *time.Time `json:"late_fee_applied_at,omitempty"`

	Notes string `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// OutstandingAmount is what remains to be collected.
func (i Invoice) OutstandingAmount() int64 { return i.TotalAmount - i.PaidAmount }

// IsOpen reports whether the invoice can still receive payments or credits.
func (i Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}

// IsEditable reports whether line items, tax and discount may change.
// Only drafts are editable.
func (i Invoice) IsEditable() bool { return i.Status == InvoiceStatusDraft }

// InvoiceLineItem is one ordered line on an invoice. Quantity is decimal so
// fractional hours bill cleanly; Amount is the rounded cent value of
// Quantity x UnitRate.
type InvoiceLineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	UnitRate    int64           `gorm:"not null" json:"unit_rate"`
	Amount      int64           `gorm:"not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// Payment records money received against an invoice. Rows are immutable.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount    int64        `gorm:"not null" json:"amount"`
	Method    string       `gorm:"type:text;not null" json:"method"`
	Reference string       `gorm:"type:text;not null" json:"reference"`
	PaidAt    time.Time    `gorm:"not null" json:"paid_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Credit moves already-paid deposit funds onto another invoice. The sum of
// credits drawn from a deposit never exceeds that deposit's paid amount.
type Credit struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	DepositInvoiceID snowflake.ID `gorm:"not null;index" json:"deposit_invoice_id"`
	TargetInvoiceID  snowflake.ID `gorm:"not null;index" json:"target_invoice_id"`
	Amount           int64        `gorm:"not null" json:"amount"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Credit) TableName() string { return "credits" }
