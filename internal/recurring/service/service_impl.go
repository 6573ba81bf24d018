package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/clock"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
)

const defaultNetTermsDays = 14

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
}

func NewService(p ServiceParam) recurringdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recurring.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}
}

func (s *Service) CreatePattern(ctx context.Context, req recurringdomain.CreatePatternRequest) (recurringdomain.RecurringPattern, error) {
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return recurringdomain.RecurringPattern{}, fmt.Errorf("%w: client_id", invoicedomain.ErrValidation)
	}
	var projectID *snowflake.ID
	if strings.TrimSpace(req.ProjectID) != "" {
		id, err := parseID(req.ProjectID)
		if err != nil {
			return recurringdomain.RecurringPattern{}, fmt.Errorf("%w: project_id", invoicedomain.ErrValidation)
		}
		projectID = &id
	}
	switch req.Frequency {
	case recurringdomain.FrequencyWeekly, recurringdomain.FrequencyMonthly, recurringdomain.FrequencyQuarterly:
	default:
		return recurringdomain.RecurringPattern{}, recurringdomain.ErrInvalidFrequency
	}
	if req.AnchorDay < 0 || req.AnchorDay > 31 {
		return recurringdomain.RecurringPattern{}, fmt.Errorf("%w: anchor_day", invoicedomain.ErrValidation)
	}
	if len(req.Template.LineItems) == 0 {
		return recurringdomain.RecurringPattern{}, fmt.Errorf("%w: template needs line items", invoicedomain.ErrValidation)
	}

	template, err := json.Marshal(req.Template)
	if err != nil {
		return recurringdomain.RecurringPattern{}, err
	}

	now := s.clock.Now()
	firstRun := now
	if req.StartAt != nil && req.StartAt.After(now) {
		firstRun = *req.StartAt
	}

	pattern := recurringdomain.RecurringPattern{
		ID:               s.genID.Generate(),
		ClientID:         clientID,
		ProjectID:        projectID,
		Frequency:        req.Frequency,
		AnchorDay:        req.AnchorDay,
		Template:         template,
		Active:           true,
		NextGenerationAt: firstRun,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&pattern).Error; err != nil {
		return recurringdomain.RecurringPattern{}, err
	}

	s.log.Info("recurring pattern created",
		zap.String("pattern_id", pattern.ID.String()),
		zap.String("frequency", string(pattern.Frequency)),
	)
	return pattern, nil
}

func (s *Service) ListPatterns(ctx context.Context) ([]recurringdomain.RecurringPattern, error) {
	var patterns []recurringdomain.RecurringPattern
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&patterns).Error
	if err != nil {
		return nil, err
	}
	return patterns, nil
}

// PausePattern stops advancement without losing the pattern.
func (s *Service) PausePattern(ctx context.Context, id string) (recurringdomain.RecurringPattern, error) {
	return s.setActive(ctx, id, false)
}

// ResumePattern reactivates a paused pattern and recomputes
// next_generation_at one period forward from now. Missed periods are never
// backfilled.
func (s *Service) ResumePattern(ctx context.Context, id string) (recurringdomain.RecurringPattern, error) {
	patternID, err := parseID(id)
	if err != nil {
		return recurringdomain.RecurringPattern{}, recurringdomain.ErrInvalidID
	}

	var resumed recurringdomain.RecurringPattern
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pattern, err := s.loadPattern(ctx, tx, patternID)
		if err != nil {
			return err
		}
		if pattern.Active {
			resumed = *pattern
			return nil
		}

		now := s.clock.Now()
		next, err := recurringdomain.NextRunAfter(now, pattern.Frequency, pattern.AnchorDay)
		if err != nil {
			return err
		}

		pattern.Active = true
		pattern.NextGenerationAt = next
		pattern.UpdatedAt = now
		if err := tx.Save(pattern).Error; err != nil {
			return err
		}
		resumed = *pattern
		return nil
	})
	if err != nil {
		return recurringdomain.RecurringPattern{}, err
	}
	return resumed, nil
}

func (s *Service) DeletePattern(ctx context.Context, id string) error {
	patternID, err := parseID(id)
	if err != nil {
		return recurringdomain.ErrInvalidID
	}

	result := s.db.WithContext(ctx).Delete(&recurringdomain.RecurringPattern{}, "id = ?", patternID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return recurringdomain.ErrNotFound
	}
	return nil
}

// GenerateDue materializes a draft invoice for every active pattern whose
// next_generation_at has passed, then advances the pattern one period.
func (s *Service) GenerateDue(ctx context.Context) (recurringdomain.SweepResult, error) {
	now := s.clock.Now()
	result := recurringdomain.SweepResult{}

	var due []recurringdomain.RecurringPattern
	err := s.db.WithContext(ctx).
		Where("active = ? AND next_generation_at <= ?", true, now).
		Find(&due).Error
	if err != nil {
		return result, err
	}

	for _, pattern := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if err := s.generateFromPattern(ctx, pattern, now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, pattern.ID.String()+": "+err.Error())
			s.log.Warn("recurring generation failed",
				zap.String("pattern_id", pattern.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Generated++
	}

	return result, nil
}

func (s *Service) generateFromPattern(ctx context.Context, pattern recurringdomain.RecurringPattern, now time.Time) error {
	var template recurringdomain.InvoiceTemplate
	if err := json.Unmarshal(pattern.Template, &template); err != nil {
		return err
	}

	if _, err := s.createFromTemplate(ctx, pattern.ClientID, pattern.ProjectID, template, now); err != nil {
		return err
	}

	next, err := recurringdomain.NextRunAfter(pattern.NextGenerationAt, pattern.Frequency, pattern.AnchorDay)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&recurringdomain.RecurringPattern{}).
		Where("id = ?", pattern.ID).
		Updates(map[string]any{
			"next_generation_at": next,
			"updated_at":         now,
		}).Error
}

func (s *Service) Schedule(ctx context.Context, req recurringdomain.ScheduleInvoiceRequest) (recurringdomain.ScheduledInvoice, error) {
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return recurringdomain.ScheduledInvoice{}, fmt.Errorf("%w: client_id", invoicedomain.ErrValidation)
	}
	var projectID *snowflake.ID
	if strings.TrimSpace(req.ProjectID) != "" {
		id, err := parseID(req.ProjectID)
		if err != nil {
			return recurringdomain.ScheduledInvoice{}, fmt.Errorf("%w: project_id", invoicedomain.ErrValidation)
		}
		projectID = &id
	}
	if req.TriggerAt.IsZero() {
		return recurringdomain.ScheduledInvoice{}, fmt.Errorf("%w: trigger_at required", invoicedomain.ErrValidation)
	}
	if len(req.Template.LineItems) == 0 {
		return recurringdomain.ScheduledInvoice{}, fmt.Errorf("%w: template needs line items", invoicedomain.ErrValidation)
	}

	template, err := json.Marshal(req.Template)
	if err != nil {
		return recurringdomain.ScheduledInvoice{}, err
	}

	now := s.clock.Now()
	scheduled := recurringdomain.ScheduledInvoice{
		ID:        s.genID.Generate(),
		ClientID:  clientID,
		ProjectID: projectID,
		Template:  template,
		TriggerAt: req.TriggerAt,
		State:     recurringdomain.ScheduledStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&scheduled).Error; err != nil {
		return recurringdomain.ScheduledInvoice{}, err
	}
	return scheduled, nil
}

func (s *Service) ListScheduled(ctx context.Context) ([]recurringdomain.ScheduledInvoice, error) {
	var scheduled []recurringdomain.ScheduledInvoice
	err := s.db.WithContext(ctx).Order("trigger_at ASC").Find(&scheduled).Error
	if err != nil {
		return nil, err
	}
	return scheduled, nil
}

func (s *Service) CancelScheduled(ctx context.Context, id string) (recurringdomain.ScheduledInvoice, error) {
	scheduledID, err := parseID(id)
	if err != nil {
		return recurringdomain.ScheduledInvoice{}, recurringdomain.ErrInvalidID
	}

	var cancelled recurringdomain.ScheduledInvoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scheduled recurringdomain.ScheduledInvoice
		if err := tx.First(&scheduled, "id = ?", scheduledID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return recurringdomain.ErrNotFound
			}
			return err
		}
		if scheduled.State != recurringdomain.ScheduledStatePending {
			return recurringdomain.ErrNotPending
		}

		scheduled.State = recurringdomain.ScheduledStateCancelled
		scheduled.UpdatedAt = s.clock.Now()
		if err := tx.Save(&scheduled).Error; err != nil {
			return err
		}
		cancelled = scheduled
		return nil
	})
	if err != nil {
		return recurringdomain.ScheduledInvoice{}, err
	}
	return cancelled, nil
}

// FireDue fires pending scheduled invoices whose trigger has passed. The
// pending->fired state flip is the idempotency guard; a failed fire reverts
// to pending for manual retry and is not retried automatically.
func (s *Service) FireDue(ctx context.Context) (recurringdomain.SweepResult, error) {
	now := s.clock.Now()
	result := recurringdomain.SweepResult{}

	var due []recurringdomain.ScheduledInvoice
	err := s.db.WithContext(ctx).
		Where("state = ? AND trigger_at <= ?", recurringdomain.ScheduledStatePending, now).
		Find(&due).Error
	if err != nil {
		return result, err
	}

	for _, scheduled := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if err := s.fireOne(ctx, scheduled, now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, scheduled.ID.String()+": "+err.Error())
			s.log.Warn("scheduled invoice fire failed",
				zap.String("scheduled_id", scheduled.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Generated++
	}

	return result, nil
}

func (s *Service) fireOne(ctx context.Context, scheduled recurringdomain.ScheduledInvoice, now time.Time) error {
	claim := s.db.WithContext(ctx).Model(&recurringdomain.ScheduledInvoice{}).
		Where("id = ? AND state = ?", scheduled.ID, recurringdomain.ScheduledStatePending).
		Updates(map[string]any{"state": recurringdomain.ScheduledStateFired, "updated_at": now})
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		// already fired or cancelled
		return nil
	}

	var template recurringdomain.InvoiceTemplate
	if err := json.Unmarshal(scheduled.Template, &template); err != nil {
		return s.revertClaim(ctx, scheduled.ID, now, err)
	}

	invoice, err := s.createFromTemplate(ctx, scheduled.ClientID, scheduled.ProjectID, template, now)
	if err != nil {
		return s.revertClaim(ctx, scheduled.ID, now, err)
	}

	return s.db.WithContext(ctx).Model(&recurringdomain.ScheduledInvoice{}).
		Where("id = ?", scheduled.ID).
		Update("fired_invoice_id", invoice.ID).Error
}

func (s *Service) revertClaim(ctx context.Context, id snowflake.ID, now time.Time, cause error) error {
	revertErr := s.db.WithContext(ctx).Model(&recurringdomain.ScheduledInvoice{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": recurringdomain.ScheduledStatePending, "updated_at": now}).Error
	if revertErr != nil {
		s.log.Error("scheduled invoice claim revert failed",
			zap.String("scheduled_id", id.String()),
			zap.Error(revertErr),
		)
	}
	return cause
}

func (s *Service) createFromTemplate(ctx context.Context, clientID snowflake.ID, projectID *snowflake.ID, template recurringdomain.InvoiceTemplate, now time.Time) (invoicedomain.Invoice, error) {
	terms := template.NetTermsDays
	if terms <= 0 {
		terms = defaultNetTermsDays
	}
	due := now.AddDate(0, 0, terms)

	req := invoicedomain.CreateInvoiceRequest{
		ClientID:       clientID.String(),
		Type:           invoicedomain.InvoiceTypeStandard,
		LineItems:      template.LineItems,
		TaxRateBps:     template.TaxRateBps,
		DiscountAmount: template.DiscountAmount,
		DueAt:          &due,
		Notes:          template.Notes,
	}
	if projectID != nil {
		req.ProjectID = projectID.String()
	}
	return s.invoiceSvc.Create(ctx, req)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (recurringdomain.RecurringPattern, error) {
	patternID, err := parseID(id)
	if err != nil {
		return recurringdomain.RecurringPattern{}, recurringdomain.ErrInvalidID
	}

	var updated recurringdomain.RecurringPattern
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pattern, err := s.loadPattern(ctx, tx, patternID)
		if err != nil {
			return err
		}
		pattern.Active = active
		pattern.UpdatedAt = s.clock.Now()
		if err := tx.Save(pattern).Error; err != nil {
			return err
		}
		updated = *pattern
		return nil
	})
	if err != nil {
		return recurringdomain.RecurringPattern{}, err
	}
	return updated, nil
}

func (s *Service) loadPattern(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*recurringdomain.RecurringPattern, error) {
	var pattern recurringdomain.RecurringPattern
	err := tx.WithContext(ctx).First(&pattern, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, recurringdomain.ErrNotFound
		}
		return nil, err
	}
	return &pattern, nil
}
