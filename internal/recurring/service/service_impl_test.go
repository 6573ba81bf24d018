package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	clientdomain "github.com/atelierhq/atelier/internal/client/domain"
	"github.com/atelierhq/atelier/internal/clock"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	invoiceservice "github.com/atelierhq/atelier/internal/invoice/service"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
)

func setupRecurringService(t *testing.T) (recurringdomain.Service, invoicedomain.Service, *gorm.DB, *clock.FakeClock, snowflake.ID) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&recurringdomain.RecurringPattern{},
		&recurringdomain.ScheduledInvoice{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC))

	client := clientdomain.Client{ID: node.Generate(), Name: "Acme", Email: "ap@acme.test"}
	require.NoError(t, db.Create(&client).Error)

	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		InvoiceSvc: invoiceSvc,
	})
	return svc, invoiceSvc, db, fake, client.ID
}

func monthlyTemplate() recurringdomain.InvoiceTemplate {
	return recurringdomain.InvoiceTemplate{
		LineItems: []invoicedomain.LineItemInput{
			{Description: "retainer", Quantity: decimal.NewFromInt(1), UnitRate: 150000},
		},
		NetTermsDays: 30,
	}
}

func TestCreatePatternValidation(t *testing.T) {
	svc, _, _, _, clientID := setupRecurringService(t)
	ctx := context.Background()

	_, err := svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  clientID.String(),
		Frequency: recurringdomain.Frequency("daily"),
		Template:  monthlyTemplate(),
	})
	assert.ErrorIs(t, err, recurringdomain.ErrInvalidFrequency)

	_, err = svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  clientID.String(),
		Frequency: recurringdomain.FrequencyMonthly,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)

	_, err = svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  "bogus",
		Frequency: recurringdomain.FrequencyMonthly,
		Template:  monthlyTemplate(),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)
}

func TestGenerateDueMaterializesDraftAndAdvances(t *testing.T) {
	svc, invoiceSvc, db, fake, clientID := setupRecurringService(t)
	ctx := context.Background()

	pattern, err := svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  clientID.String(),
		Frequency: recurringdomain.FrequencyMonthly,
		AnchorDay: 31,
		Template:  monthlyTemplate(),
	})
	require.NoError(t, err)
	// No start_at: first generation is due immediately.
	assert.True(t, pattern.NextGenerationAt.Equal(fake.Now()))

	result, err := svc.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	assert.Equal(t, 0, result.Failed)

	invoices, err := invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoices[0].Status)
	assert.Equal(t, int64(150000), invoices[0].TotalAmount)
	require.NotNil(t, invoices[0].DueAt)
	assert.True(t, invoices[0].DueAt.Equal(fake.Now().AddDate(0, 0, 30)))

	// Jan 31 anchor clamps into February.
	var reloaded recurringdomain.RecurringPattern
	require.NoError(t, db.First(&reloaded, "id = ?", pattern.ID).Error)
	assert.Equal(t, time.February, reloaded.NextGenerationAt.Month())
	assert.Equal(t, 28, reloaded.NextGenerationAt.Day())

	// Nothing more is due until the clock reaches the next anchor.
	again, err := svc.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Generated)
}

func TestPauseStopsGenerationAndResumeNeverBackfills(t *testing.T) {
	svc, invoiceSvc, db, fake, clientID := setupRecurringService(t)
	ctx := context.Background()

	pattern, err := svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  clientID.String(),
		Frequency: recurringdomain.FrequencyMonthly,
		Template:  monthlyTemplate(),
	})
	require.NoError(t, err)

	paused, err := svc.PausePattern(ctx, pattern.ID.String())
	require.NoError(t, err)
	assert.False(t, paused.Active)

	// Three months pass while paused.
	fake.Advance(90 * 24 * time.Hour)
	result, err := svc.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)

	resumed, err := svc.ResumePattern(ctx, pattern.ID.String())
	require.NoError(t, err)
	assert.True(t, resumed.Active)
	// Next run is one period forward from now, not from the missed periods.
	assert.True(t, resumed.NextGenerationAt.After(fake.Now()))

	result, err = svc.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)

	invoices, err := invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	// Resuming an active pattern is a no-op.
	var before recurringdomain.RecurringPattern
	require.NoError(t, db.First(&before, "id = ?", pattern.ID).Error)
	again, err := svc.ResumePattern(ctx, pattern.ID.String())
	require.NoError(t, err)
	assert.True(t, again.NextGenerationAt.Equal(before.NextGenerationAt))
}

func TestDeletePattern(t *testing.T) {
	svc, _, _, _, clientID := setupRecurringService(t)
	ctx := context.Background()

	pattern, err := svc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  clientID.String(),
		Frequency: recurringdomain.FrequencyWeekly,
		Template:  monthlyTemplate(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePattern(ctx, pattern.ID.String()))
	assert.ErrorIs(t, svc.DeletePattern(ctx, pattern.ID.String()), recurringdomain.ErrNotFound)

	result, err := svc.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
}

func TestScheduledInvoiceFiresOnce(t *testing.T) {
	svc, invoiceSvc, db, fake, clientID := setupRecurringService(t)
	ctx := context.Background()

	scheduled, err := svc.Schedule(ctx, recurringdomain.ScheduleInvoiceRequest{
		ClientID:  clientID.String(),
		Template:  monthlyTemplate(),
		TriggerAt: fake.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, recurringdomain.ScheduledStatePending, scheduled.State)

	// Not yet due.
	result, err := svc.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)

	fake.Advance(6 * 24 * time.Hour)
	result, err = svc.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)

	var fired recurringdomain.ScheduledInvoice
	require.NoError(t, db.First(&fired, "id = ?", scheduled.ID).Error)
	assert.Equal(t, recurringdomain.ScheduledStateFired, fired.State)
	require.NotNil(t, fired.FiredInvoiceID)

	invoice, err := invoiceSvc.GetByID(ctx, fired.FiredInvoiceID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)

	// A second sweep fires nothing.
	result, err = svc.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
}

func TestCancelScheduledInvoice(t *testing.T) {
	svc, invoiceSvc, _, fake, clientID := setupRecurringService(t)
	ctx := context.Background()

	scheduled, err := svc.Schedule(ctx, recurringdomain.ScheduleInvoiceRequest{
		ClientID:  clientID.String(),
		Template:  monthlyTemplate(),
		TriggerAt: fake.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelScheduled(ctx, scheduled.ID.String())
	require.NoError(t, err)
	assert.Equal(t, recurringdomain.ScheduledStateCancelled, cancelled.State)

	_, err = svc.CancelScheduled(ctx, scheduled.ID.String())
	assert.ErrorIs(t, err, recurringdomain.ErrNotPending)

	// Cancelled rows never fire.
	fake.Advance(30 * 24 * time.Hour)
	result, err := svc.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)

	invoices, err := invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
