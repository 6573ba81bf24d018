package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

// RecordPayment applies money against an open invoice inside one
// transaction: insert the payment row, bump paid_amount, re-evaluate status
// through the transition table. Nothing is mutated on rejection.
func (s *Service) RecordPayment(ctx context.Context, req invoicedomain.RecordPaymentRequest) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: amount must be positive", invoicedomain.ErrValidation)
	}
	if strings.TrimSpace(req.Method) == "" {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: method required", invoicedomain.ErrValidation)
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = uuid.NewString()
	}

	var updated invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		// Overpayment wins over state: paying against a settled invoice is
		// an overpayment, not an edit.
		if invoice.PaidAmount+req.Amount > invoice.TotalAmount {
			return invoicedomain.ErrOverpayment
		}
		if !invoice.IsOpen() {
			return invoicedomain.ErrNotEditable
		}

		payment := invoicedomain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: reference,
			PaidAt:    paidAt,
			CreatedAt: now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		newPaid := invoice.PaidAmount + req.Amount
		next, err := invoicedomain.Transition(invoice.Status, invoicedomain.PaymentEvent(newPaid, invoice.TotalAmount))
		if err != nil {
			return err
		}

		invoice.PaidAmount = newPaid
		invoice.Status = next
		invoice.UpdatedAt = now
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("payment recorded",
		zap.String("invoice_id", updated.ID.String()),
		zap.Int64("amount", req.Amount),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// ApplyCredit draws down a deposit invoice's paid balance onto a target
// invoice. The draw counts as paid value on the target and re-evaluates its
// status the same way a payment would.
func (s *Service) ApplyCredit(ctx context.Context, req invoicedomain.ApplyCreditRequest) (invoicedomain.Credit, error) {
	depositID, err := parseID(req.DepositInvoiceID)
	if err != nil {
		return invoicedomain.Credit{}, invoicedomain.ErrInvalidID
	}
	targetID, err := parseID(req.TargetInvoiceID)
	if err != nil {
		return invoicedomain.Credit{}, invoicedomain.ErrInvalidID
	}
	if req.Amount <= 0 {
		return invoicedomain.Credit{}, fmt.Errorf("%w: amount must be positive", invoicedomain.ErrValidation)
	}
	if depositID == targetID {
		return invoicedomain.Credit{}, fmt.Errorf("%w: deposit and target must differ", invoicedomain.ErrValidation)
	}

	now := s.clock.Now()
	var created invoicedomain.Credit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposit, err := s.loadInvoice(ctx, tx, depositID)
		if err != nil {
			return err
		}
		if deposit.Type != invoicedomain.InvoiceTypeDeposit {
			return fmt.Errorf("%w: source is not a deposit invoice", invoicedomain.ErrValidation)
		}

		applied, err := s.creditsApplied(ctx, tx, depositID)
		if err != nil {
			return err
		}
		available := deposit.PaidAmount - applied
		if req.Amount > available {
			return invoicedomain.ErrInsufficientCredit
		}

		target, err := s.loadInvoice(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if target.PaidAmount+req.Amount > target.TotalAmount {
			return invoicedomain.ErrOverpayment
		}
		if !target.IsOpen() {
			return invoicedomain.ErrNotEditable
		}

		credit := invoicedomain.Credit{
			ID:               s.genID.Generate(),
			DepositInvoiceID: depositID,
			TargetInvoiceID:  targetID,
			Amount:           req.Amount,
			CreatedAt:        now,
		}
		if err := tx.Create(&credit).Error; err != nil {
			return err
		}

		newPaid := target.PaidAmount + req.Amount
		next, err := invoicedomain.Transition(target.Status, invoicedomain.PaymentEvent(newPaid, target.TotalAmount))
		if err != nil {
			return err
		}
		target.PaidAmount = newPaid
		target.Status = next
		target.UpdatedAt = now
		if err := tx.Save(target).Error; err != nil {
			return err
		}

		created = credit
		return nil
	})
	if err != nil {
		return invoicedomain.Credit{}, err
	}

	s.log.Info("credit applied",
		zap.String("deposit_invoice_id", created.DepositInvoiceID.String()),
		zap.String("target_invoice_id", created.TargetInvoiceID.String()),
		zap.Int64("amount", created.Amount),
	)
	return created, nil
}

func (s *Service) DepositBalance(ctx context.Context, id string) (invoicedomain.DepositBalance, error) {
	depositID, err := parseID(id)
	if err != nil {
		return invoicedomain.DepositBalance{}, invoicedomain.ErrInvalidID
	}

	var balance invoicedomain.DepositBalance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposit, err := s.loadInvoice(ctx, tx, depositID)
		if err != nil {
			return err
		}
		if deposit.Type != invoicedomain.InvoiceTypeDeposit {
			return fmt.Errorf("%w: not a deposit invoice", invoicedomain.ErrValidation)
		}
		applied, err := s.creditsApplied(ctx, tx, depositID)
		if err != nil {
			return err
		}
		balance = invoicedomain.DepositBalance{
			DepositInvoiceID: depositID.String(),
			PaidAmount:       deposit.PaidAmount,
			CreditsApplied:   applied,
			Available:        deposit.PaidAmount - applied,
		}
		return nil
	})
	if err != nil {
		return invoicedomain.DepositBalance{}, err
	}
	return balance, nil
}

func (s *Service) ListPayments(ctx context.Context, id string) ([]invoicedomain.Payment, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var payments []invoicedomain.Payment
	err = s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) creditsApplied(ctx context.Context, tx *gorm.DB, depositID snowflake.ID) (int64, error) {
	var applied int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credits WHERE deposit_invoice_id = ?`,
		depositID,
	).Scan(&applied).Error
	if err != nil {
		return 0, err
	}
	return applied, nil
}
