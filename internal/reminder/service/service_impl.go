package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/clock"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	"github.com/atelierhq/atelier/internal/providers/email"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Email email.Provider `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	email email.Provider
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reminder.service"),
		genID: p.GenID,
		clock: p.Clock,
		email: p.Email,
	}
}

// ScheduleForInvoice lays out the six-reminder cadence around the invoice's
// due date. Idempotent: an invoice that already has reminders keeps them.
func (s *Service) ScheduleForInvoice(ctx context.Context, invoice invoicedomain.Invoice) error {
	if invoice.DueAt == nil {
		return fmt.Errorf("invoice %s has no due date", invoice.ID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&reminderdomain.Reminder{}).
			Where("invoice_id = ?", invoice.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := s.clock.Now()
		reminders := make([]reminderdomain.Reminder, 0, len(reminderdomain.CadenceOffsets))
		for _, tier := range reminderdomain.CadenceOffsets {
			reminders = append(reminders, reminderdomain.Reminder{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Type:        tier.Type,
				Status:      reminderdomain.ReminderStatusPending,
				ScheduledAt: invoice.DueAt.Add(tier.Offset),
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return tx.Create(&reminders).Error
	})
}

func (s *Service) ListForInvoice(ctx context.Context, invoiceID string) ([]reminderdomain.Reminder, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, reminderdomain.ErrInvalidID
	}

	var reminders []reminderdomain.Reminder
	err = s.db.WithContext(ctx).
		Where("invoice_id = ?", id).
		Order("scheduled_at ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// Skip marks a pending reminder permanently inert.
func (s *Service) Skip(ctx context.Context, id string) (reminderdomain.Reminder, error) {
	reminderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return reminderdomain.Reminder{}, reminderdomain.ErrInvalidID
	}

	var skipped reminderdomain.Reminder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reminder reminderdomain.Reminder
		if err := tx.First(&reminder, "id = ?", reminderID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return reminderdomain.ErrNotFound
			}
			return err
		}
		if reminder.Status == reminderdomain.ReminderStatusSent {
			return reminderdomain.ErrAlreadySent
		}

		reminder.Status = reminderdomain.ReminderStatusSkipped
		reminder.UpdatedAt = s.clock.Now()
		if err := tx.Save(&reminder).Error; err != nil {
			return err
		}
		skipped = reminder
		return nil
	})
	if err != nil {
		return reminderdomain.Reminder{}, err
	}
	return skipped, nil
}

// DispatchDue sends every pending reminder whose time has come. Reminders
// for invoices that have since reached paid or cancelled are marked skipped
// at fire time, never deleted. Each reminder fires at most once.
func (s *Service) DispatchDue(ctx context.Context) (reminderdomain.SweepResult, error) {
	now := s.clock.Now()
	result := reminderdomain.SweepResult{}

	var due []reminderdomain.Reminder
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", reminderdomain.ReminderStatusPending, now).
		Order("scheduled_at ASC").
		Find(&due).Error
	if err != nil {
		return result, err
	}

	for _, reminder := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome, err := s.dispatchOne(ctx, reminder, now)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, reminder.ID.String()+": "+err.Error())
			s.log.Warn("reminder dispatch failed",
				zap.String("reminder_id", reminder.ID.String()),
				zap.String("invoice_id", reminder.InvoiceID.String()),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case reminderdomain.ReminderStatusSent:
			result.Sent++
		case reminderdomain.ReminderStatusSkipped:
			result.Skipped++
		}
	}

	return result, nil
}

func (s *Service) dispatchOne(ctx context.Context, reminder reminderdomain.Reminder, now time.Time) (reminderdomain.ReminderStatus, error) {
	var invoice invoiceRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT i.id, i.invoice_number, i.status, i.total_amount, i.paid_amount, i.due_at, c.email AS client_email
		 FROM invoices i
		 JOIN clients c ON c.id = i.client_id
		 WHERE i.id = ?`,
		reminder.InvoiceID,
	).Scan(&invoice).Error
	if err != nil {
		return "", err
	}

	// Staleness is checked at fire time, not schedule time.
	if invoice.ID == 0 ||
		invoice.Status == invoicedomain.InvoiceStatusPaid ||
		invoice.Status == invoicedomain.InvoiceStatusCancelled {
		return reminderdomain.ReminderStatusSkipped, s.markStatus(ctx, reminder.ID, reminderdomain.ReminderStatusSkipped, nil, now)
	}

	if s.email != nil && invoice.ClientEmail != "" {
		err := s.email.SendTemplate(ctx, []string{invoice.ClientEmail}, templateFor(reminder.Type), map[string]any{
			"subject":        subjectFor(reminder.Type, invoice.InvoiceNumber),
			"invoice_number": invoice.InvoiceNumber,
			"outstanding":    invoice.TotalAmount - invoice.PaidAmount,
			"due_at":         invoice.DueAt,
		})
		if err != nil {
			return "", err
		}
	}

	return reminderdomain.ReminderStatusSent, s.markStatus(ctx, reminder.ID, reminderdomain.ReminderStatusSent, &now, now)
}

func (s *Service) markStatus(ctx context.Context, id snowflake.ID, status reminderdomain.ReminderStatus, sentAt *time.Time, now time.Time) error {
	return s.db.WithContext(ctx).Model(&reminderdomain.Reminder{}).
		Where("id = ? AND status = ?", id, reminderdomain.ReminderStatusPending).
		Updates(map[string]any{
			"status":     status,
			"sent_at":    sentAt,
			"updated_at": now,
		}).Error
}

type invoiceRow struct {
	ID            snowflake.ID
	InvoiceNumber string
	Status        invoicedomain.InvoiceStatus
	TotalAmount   int64
	PaidAmount    int64
	DueAt         *time.Time
	ClientEmail   string
}

func templateFor(t reminderdomain.ReminderType) string {
	switch t {
	case reminderdomain.ReminderTypeUpcoming:
		return "reminder_upcoming"
	case reminderdomain.ReminderTypeDue:
		return "reminder_due"
	default:
		return "reminder_overdue"
	}
}

func subjectFor(t reminderdomain.ReminderType, number string) string {
	switch t {
	case reminderdomain.ReminderTypeUpcoming:
		return fmt.Sprintf("Invoice %s is due soon", number)
	case reminderdomain.ReminderTypeDue:
		return fmt.Sprintf("Invoice %s is due today", number)
	default:
		return fmt.Sprintf("Invoice %s is overdue", number)
	}
}
