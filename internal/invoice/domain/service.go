package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    int64           `json:"unit_rate"`
}

type CreateInvoiceRequest struct {
	ClientID       string          `json:"client_id"`
	ProjectID      string          `json:"project_id,omitempty"`
	Type           InvoiceType     `json:"type,omitempty"`
	LineItems      []LineItemInput `json:"line_items"`
	TaxRateBps     int64           `json:"tax_rate_bps,omitempty"`
	DiscountAmount int64           `json:"discount_amount,omitempty"`
	DueAt          *time.Time      `json:"due_at,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// UpdateInvoiceRequest carries draft-only edits. Nil fields are untouched.
type UpdateInvoiceRequest struct {
	LineItems      *[]LineItemInput `json:"line_items,omitempty"`
	TaxRateBps     *int64           `json:"tax_rate_bps,omitempty"`
	DiscountAmount *int64           `json:"discount_amount,omitempty"`
	DueAt          *time.Time       `json:"due_at,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

type ListInvoiceRequest struct {
	Status   *InvoiceStatus
	Type     *InvoiceType
	ClientID *string
}

type RecordPaymentRequest struct {
	InvoiceID string     `json:"-"`
	Amount    int64      `json:"amount"`
	Method    string     `json:"method"`
	Reference string     `json:"reference,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type ApplyCreditRequest struct {
	DepositInvoiceID string `json:"deposit_invoice_id"`
	TargetInvoiceID  string `json:"-"`
	Amount           int64  `json:"amount"`
}

// DepositBalance is a deposit invoice's paid amount minus credits drawn.
type DepositBalance struct {
	DepositInvoiceID string `json:"deposit_invoice_id"`
	PaidAmount       int64  `json:"paid_amount"`
	CreditsApplied   int64  `json:"credits_applied"`
	Available        int64  `json:"available"`
}

// SweepResult reports a best-effort batch: counts always, errors per item.
type SweepResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	Update(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) ([]Invoice, error)
	Delete(ctx context.Context, id string) error

	Send(ctx context.Context, id string) (Invoice, error)
	MarkViewed(ctx context.Context, id string) (Invoice, error)
	Void(ctx context.Context, id string) (Invoice, error)

	RecordPayment(ctx context.Context, req RecordPaymentRequest) (Invoice, error)
	ApplyCredit(ctx context.Context, req ApplyCreditRequest) (Credit, error)
	DepositBalance(ctx context.Context, id string) (DepositBalance, error)
	ListPayments(ctx context.Context, id string) ([]Payment, error)

	CheckOverdue(ctx context.Context) (SweepResult, error)
}

// ReminderScheduler is the hook Send uses to lay out the reminder cadence.
// Implemented by the reminder service; nil disables scheduling.
type ReminderScheduler interface {
	ScheduleForInvoice(ctx context.Context, invoice Invoice) error
}
