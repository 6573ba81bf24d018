package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/clock"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	"github.com/atelierhq/atelier/internal/providers/email"
)

// defaultNetTermsDays is applied when an invoice is sent without a due date.
const defaultNetTermsDays = 14

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Reminders invoicedomain.ReminderScheduler `optional:"true"`
	Email     email.Provider                  `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	reminders invoicedomain.ReminderScheduler
	email     email.Provider
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		reminders: p.Reminders,
		email:     p.Email,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: client_id", invoicedomain.ErrValidation)
	}
	var projectID *snowflake.ID
	if strings.TrimSpace(req.ProjectID) != "" {
		id, err := parseID(req.ProjectID)
		if err != nil {
			return invoicedomain.Invoice{}, fmt.Errorf("%w: project_id", invoicedomain.ErrValidation)
		}
		projectID = &id
	}

	invoiceType := req.Type
	if invoiceType == "" {
		invoiceType = invoicedomain.InvoiceTypeStandard
	}
	if invoiceType != invoicedomain.InvoiceTypeStandard && invoiceType != invoicedomain.InvoiceTypeDeposit {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: type", invoicedomain.ErrValidation)
	}
	if len(req.LineItems) == 0 {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: at least one line item required", invoicedomain.ErrValidation)
	}
	if req.TaxRateBps < 0 || req.DiscountAmount < 0 {
		return invoicedomain.Invoice{}, fmt.Errorf("%w: negative tax or discount", invoicedomain.ErrValidation)
	}

	now := s.clock.Now()
	var created invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClientExists(ctx, tx, clientID); err != nil {
			return err
		}

		number, err := s.nextInvoiceNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		items, subtotal, err := buildLineItems(s.genID, req.LineItems)
		if err != nil {
			return err
		}

		invoice := invoicedomain.Invoice{
			ID:             s.genID.Generate(),
			InvoiceNumber:  number,
			ClientID:       clientID,
			ProjectID:      projectID,
			Type:           invoiceType,
			Status:         invoicedomain.InvoiceStatusDraft,
			SubtotalAmount: subtotal,
			TaxRateBps:     req.TaxRateBps,
			DiscountAmount: req.DiscountAmount,
			TotalAmount:    computeTotal(subtotal, req.TaxRateBps, req.DiscountAmount),
			DueAt:          req.DueAt,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}

		for i := range items {
			items[i].InvoiceID = invoice.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		invoice.LineItems = items
		created = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("type", string(created.Type)),
	)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id string, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	var updated invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.IsEditable() {
			return invoicedomain.ErrNotEditable
		}

		if req.TaxRateBps != nil {
			if *req.TaxRateBps < 0 {
				return fmt.Errorf("%w: tax_rate_bps", invoicedomain.ErrValidation)
			}
			invoice.TaxRateBps = *req.TaxRateBps
		}
		if req.DiscountAmount != nil {
			if *req.DiscountAmount < 0 {
				return fmt.Errorf("%w: discount_amount", invoicedomain.ErrValidation)
			}
			invoice.DiscountAmount = *req.DiscountAmount
		}
		if req.DueAt != nil {
			invoice.DueAt = req.DueAt
		}
		if req.Notes != nil {
			invoice.Notes = *req.Notes
		}

		if req.LineItems != nil {
			if len(*req.LineItems) == 0 {
				return fmt.Errorf("%w: at least one line item required", invoicedomain.ErrValidation)
			}
			items, subtotal, err := buildLineItems(s.genID, *req.LineItems)
			if err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", invoiceID).Delete(&invoicedomain.InvoiceLineItem{}).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].InvoiceID = invoiceID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
			invoice.SubtotalAmount = subtotal
			invoice.LineItems = items
		}

		invoice.TotalAmount = computeTotal(invoice.SubtotalAmount, invoice.TaxRateBps, invoice.DiscountAmount)
		invoice.UpdatedAt = s.clock.Now()
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&invoice, "id = ?", invoiceID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) ([]invoicedomain.Invoice, error) {
	stmt := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Order("created_at DESC")
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}
	if req.Type != nil {
		stmt = stmt.Where("type = ?", *req.Type)
	}
	if req.ClientID != nil {
		clientID, err := parseID(*req.ClientID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidID
		}
		stmt = stmt.Where("client_id = ?", clientID)
	}

	var invoices []invoicedomain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// Delete removes drafts and cancelled invoices outright; open invoices are
// voided instead; paid invoices are protected.
func (s *Service) Delete(ctx context.Context, id string) error {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		switch invoice.Status {
		case invoicedomain.InvoiceStatusPaid:
			return invoicedomain.ErrProtectedState
		case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusCancelled:
			return tx.Delete(&invoicedomain.Invoice{}, "id = ?", invoiceID).Error
		default:
			return s.voidTx(ctx, tx, invoice)
		}
	})
}

func (s *Service) Send(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	now := s.clock.Now()
	var sent invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		next, err := invoicedomain.Transition(invoice.Status, invoicedomain.EventSend)
		if err != nil {
			return err
		}

		invoice.Status = next
		invoice.IssuedAt = &now
		if invoice.DueAt == nil {
			due := now.AddDate(0, 0, defaultNetTermsDays)
			invoice.DueAt = &due
		}
		invoice.UpdatedAt = now
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		sent = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if s.reminders != nil {
		if err := s.reminders.ScheduleForInvoice(ctx, sent); err != nil {
			s.log.Warn("reminder scheduling failed",
				zap.String("invoice_id", sent.ID.String()),
				zap.Error(err),
			)
		}
	}
	s.notifyClient(ctx, sent)

	return sent, nil
}

func (s *Service) MarkViewed(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.applyEvent(ctx, id, invoicedomain.EventView)
}

func (s *Service) Void(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	var voided invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.voidTx(ctx, tx, invoice); err != nil {
			return err
		}
		voided = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return voided, nil
}

// voidTx cancels the invoice and marks its pending reminders inert.
func (s *Service) voidTx(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	next, err := invoicedomain.Transition(invoice.Status, invoicedomain.EventVoid)
	if err != nil {
		return err
	}

	invoice.Status = next
	invoice.UpdatedAt = s.clock.Now()
	if err := tx.Save(invoice).Error; err != nil {
		return err
	}

	return tx.WithContext(ctx).Exec(
		`UPDATE reminders SET status = 'skipped' WHERE invoice_id = ? AND status = 'pending'`,
		invoice.ID,
	).Error
}

func (s *Service) applyEvent(ctx context.Context, id string, ev invoicedomain.Event) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	var result invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		next, err := invoicedomain.Transition(invoice.Status, ev)
		if err != nil {
			return err
		}
		invoice.Status = next
		invoice.UpdatedAt = s.clock.Now()
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return result, nil
}

func (s *Service) notifyClient(ctx context.Context, invoice invoicedomain.Invoice) {
	if s.email == nil {
		return
	}
	to, err := s.clientEmail(ctx, invoice.ClientID)
	if err != nil || to == "" {
		return
	}
	err = s.email.SendTemplate(ctx, []string{to}, "invoice_sent", map[string]any{
		"subject":        fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		"invoice_number": invoice.InvoiceNumber,
		"total_amount":   invoice.TotalAmount,
		"due_at":         invoice.DueAt,
	})
	if err != nil {
		s.log.Warn("invoice email failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, invoicedomain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) ensureClientExists(ctx context.Context, tx *gorm.DB, clientID snowflake.ID) error {
	var id snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id FROM clients WHERE id = ? AND deleted_at IS NULL`,
		clientID,
	).Scan(&id).Error
	if err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("%w: client", invoicedomain.ErrNotFound)
	}
	return nil
}

func (s *Service) clientEmail(ctx context.Context, clientID snowflake.ID) (string, error) {
	var address string
	err := s.db.WithContext(ctx).Raw(
		`SELECT email FROM clients WHERE id = ?`,
		clientID,
	).Scan(&address).Error
	return address, err
}

func buildLineItems(genID *snowflake.Node, inputs []invoicedomain.LineItemInput) ([]invoicedomain.InvoiceLineItem, int64, error) {
	items := make([]invoicedomain.InvoiceLineItem, 0, len(inputs))
	var subtotal int64
	for i, in := range inputs {
		if strings.TrimSpace(in.Description) == "" {
			return nil, 0, fmt.Errorf("%w: line item %d missing description", invoicedomain.ErrValidation, i)
		}
		if in.Quantity.Sign() <= 0 || in.UnitRate < 0 {
			return nil, 0, fmt.Errorf("%w: line item %d amounts", invoicedomain.ErrValidation, i)
		}
		amount := in.Quantity.Mul(decimal.NewFromInt(in.UnitRate)).Round(0).IntPart()
		items = append(items, invoicedomain.InvoiceLineItem{
			ID:          genID.Generate(),
			Position:    i,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitRate:    in.UnitRate,
			Amount:      amount,
		})
		subtotal += amount
	}
	return items, subtotal, nil
}

func computeTotal(subtotal, taxRateBps, discount int64) int64 {
	tax := subtotal * taxRateBps / 10000
	total := subtotal + tax - discount
	if total < 0 {
		total = 0
	}
	return total
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
