package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

// CheckOverdue flips every past-due open invoice to overdue. Best effort:
// one invoice's failure is recorded and the sweep keeps going.
func (s *Service) CheckOverdue(ctx context.Context) (invoicedomain.SweepResult, error) {
	now := s.clock.Now()
	result := invoicedomain.SweepResult{}

	var candidates []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status IN ?", []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusViewed,
			invoicedomain.InvoiceStatusPartial,
		}).
		Where("due_at IS NOT NULL AND due_at < ?", now).
		Where("paid_amount < total_amount").
		Find(&candidates).Error
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoice, err := s.loadInvoice(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}
			next, err := invoicedomain.Transition(invoice.Status, invoicedomain.EventOverdue)
			if err != nil {
				return err
			}
			invoice.Status = next
			invoice.UpdatedAt = now
			return tx.Save(invoice).Error
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, candidate.ID.String()+": "+err.Error())
			s.log.Warn("overdue sweep item failed",
				zap.String("invoice_id", candidate.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 {
		s.log.Info("overdue sweep finished",
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}
