// Package latefee computes and applies overdue surcharges. Calculation is
// pure; application mutates an invoice's total exactly once, tracked by the
// late_fee_applied_at marker.
package latefee

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/clock"
	"github.com/atelierhq/atelier/internal/config"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

var (
	// ErrAlreadyApplied is returned on a second application attempt.
	ErrAlreadyApplied = errors.New("late_fee_already_applied")
	// ErrNotEligible is returned when the invoice is not overdue past the
	// grace period.
	ErrNotEligible = errors.New("late_fee_not_eligible")
)

// Quote is the result of a pure calculation; nothing is mutated.
type Quote struct {
	InvoiceID   string `json:"invoice_id"`
	Policy      string `json:"policy"`
	DaysOverdue int    `json:"days_overdue"`
	Outstanding int64  `json:"outstanding"`
	Fee         int64  `json:"fee"`
	Eligible    bool   `json:"eligible"`
}

type SweepResult struct {
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	TotalFees int64    `json:"total_fees"`
	Errors    []string `json:"errors,omitempty"`
}

type Service interface {
	Calculate(ctx context.Context, invoiceID string) (Quote, error)
	Apply(ctx context.Context, invoiceID string) (Quote, error)
	ProcessAll(ctx context.Context) (SweepResult, error)
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	policy config.LateFeeConfig
}

func NewService(p ServiceParam) Service {
	return &service{
		db:     p.DB,
		log:    p.Log.Named("latefee.service"),
		clock:  p.Clock,
		policy: p.Cfg.LateFee,
	}
}

var Module = fx.Module("latefee.service",
	fx.Provide(NewService),
)

func (s *service) Calculate(ctx context.Context, invoiceID string) (Quote, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return Quote{}, invoicedomain.ErrInvalidID
	}

	var invoice invoicedomain.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return Quote{}, invoicedomain.ErrNotFound
		}
		return Quote{}, err
	}

	return s.quote(invoice, s.clock.Now()), nil
}

// quote is the pure core: fee as a function of days overdue, outstanding
// balance and the configured policy.
func (s *service) quote(invoice invoicedomain.Invoice, now time.Time) Quote {
	q := Quote{
		InvoiceID:   invoice.ID.String(),
		Policy:      s.policy.Policy,
		Outstanding: invoice.OutstandingAmount(),
	}

	if invoice.Status != invoicedomain.InvoiceStatusOverdue || invoice.DueAt == nil {
		return q
	}
	days := int(now.Sub(*invoice.DueAt).Hours() / 24)
	q.DaysOverdue = days
	if days < s.policy.GraceDays || q.Outstanding <= 0 {
		return q
	}

	outstanding := decimal.NewFromInt(q.Outstanding)
	rate := decimal.NewFromInt(s.policy.RateBps).Div(decimal.NewFromInt(10000))

	switch s.policy.Policy {
	case config.LateFeePolicyFlat:
		q.Fee = s.policy.FlatAmount
	case config.LateFeePolicyDailyPercentage:
		q.Fee = outstanding.Mul(rate).Mul(decimal.NewFromInt(int64(days))).Round(0).IntPart()
	default: // percentage
		q.Fee = outstanding.Mul(rate).Round(0).IntPart()
	}

	q.Eligible = q.Fee > 0
	return q
}

// Apply adds the computed fee to the invoice total exactly once.
func (s *service) Apply(ctx context.Context, invoiceID string) (Quote, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return Quote{}, invoicedomain.ErrInvalidID
	}

	now := s.clock.Now()
	var applied Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice invoicedomain.Invoice
		if err := tx.First(&invoice, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return invoicedomain.ErrNotFound
			}
			return err
		}
		if invoice.LateFeeAppliedAt != nil {
			return ErrAlreadyApplied
		}

		q := s.quote(invoice, now)
		if !q.Eligible {
			return fmt.Errorf("%w: invoice %s", ErrNotEligible, invoice.InvoiceNumber)
		}

		invoice.TotalAmount += q.Fee
		invoice.LateFeeAppliedAt = &now
		invoice.UpdatedAt = now
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		applied = q
		return nil
	})
	if err != nil {
		return Quote{}, err
	}

	s.log.Info("late fee applied",
		zap.String("invoice_id", applied.InvoiceID),
		zap.Int64("fee", applied.Fee),
		zap.String("policy", applied.Policy),
	)
	return applied, nil
}

// ProcessAll applies fees to every eligible overdue invoice, continuing past
// per-invoice failures.
func (s *service) ProcessAll(ctx context.Context) (SweepResult, error) {
	result := SweepResult{}

	var candidates []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND late_fee_applied_at IS NULL", invoicedomain.InvoiceStatusOverdue).
		Find(&candidates).Error
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		q, err := s.Apply(ctx, candidate.ID.String())
		if err != nil {
			if errors.Is(err, ErrNotEligible) {
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, candidate.ID.String()+": "+err.Error())
			continue
		}
		result.Applied++
		result.TotalFees += q.Fee
	}

	return result, nil
}
