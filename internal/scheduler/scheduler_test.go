package scheduler

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
	"github.com/atelierhq/atelier/internal/config"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	invoiceservice "github.com/atelierhq/atelier/internal/invoice/service"
	"github.com/atelierhq/atelier/internal/latefee"
	"github.com/atelierhq/atelier/internal/providers/email"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
	recurringservice "github.com/atelierhq/atelier/internal/recurring/service"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
	reminderservice "github.com/atelierhq/atelier/internal/reminder/service"
)

type fixture struct {
	db           *gorm.DB
	fake         *clock.FakeClock
	invoiceSvc   invoicedomain.Service
	reminderSvc  *reminderservice.Service
	recurringSvc recurringdomain.Service
	lateFeeSvc   latefee.Service
	clientID     snowflake.ID
}

func setupFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.Payment{},
		&invoicedomain.Credit{},
		&reminderdomain.Reminder{},
		&recurringdomain.RecurringPattern{},
		&recurringdomain.ScheduledInvoice{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	client := clientdomain.Client{ID: node.Generate(), Name: "Acme", Email: "ap@acme.test"}
	require.NoError(t, db.Create(&client).Error)

	reminderSvc := reminderservice.NewService(reminderservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Email: &email.NoOpProvider{},
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Reminders: reminderSvc,
	})
	recurringSvc := recurringservice.NewService(recurringservice.ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		InvoiceSvc: invoiceSvc,
	})
	lateFeeSvc := latefee.NewService(latefee.ServiceParam{
		DB:    db,
		Log:   log,
		Clock: fake,
		Cfg: config.Config{LateFee: config.LateFeeConfig{
			Policy:    config.LateFeePolicyPercentage,
			RateBps:   150,
			GraceDays: 7,
		}},
	})

	return fixture{
		db:           db,
		fake:         fake,
		invoiceSvc:   invoiceSvc,
		reminderSvc:  reminderSvc,
		recurringSvc: recurringSvc,
		lateFeeSvc:   lateFeeSvc,
		clientID:     client.ID,
	}
}

func newScheduler(t *testing.T, f fixture, cfg Config) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:          zap.NewNop(),
		Clock:        f.fake,
		InvoiceSvc:   f.invoiceSvc,
		ReminderSvc:  f.reminderSvc,
		RecurringSvc: f.recurringSvc,
		LateFeeSvc:   f.lateFeeSvc,
		Config:       cfg,
	})
	require.NoError(t, err)
	return sched
}

func sentInvoice(t *testing.T, f fixture, amount int64) invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	created, err := f.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID: f.clientID.String(),
		LineItems: []invoicedomain.LineItemInput{
			{Description: "design sprint", Quantity: decimal.NewFromInt(1), UnitRate: amount},
		},
	})
	require.NoError(t, err)
	sent, err := f.invoiceSvc.Send(ctx, created.ID.String())
	require.NoError(t, err)
	return sent
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceFullPass(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sched := newScheduler(t, f, Config{})

	// A sent invoice due in 14 days, a monthly pattern due immediately and a
	// one-off invoice scheduled 20 days out.
	invoice := sentInvoice(t, f, 20000)
	_, err := f.recurringSvc.CreatePattern(ctx, recurringdomain.CreatePatternRequest{
		ClientID:  f.clientID.String(),
		Frequency: recurringdomain.FrequencyMonthly,
		Template: recurringdomain.InvoiceTemplate{
			LineItems: []invoicedomain.LineItemInput{
				{Description: "retainer", Quantity: decimal.NewFromInt(1), UnitRate: 150000},
			},
			NetTermsDays: 30,
		},
	})
	require.NoError(t, err)
	scheduled, err := f.recurringSvc.Schedule(ctx, recurringdomain.ScheduleInvoiceRequest{
		ClientID: f.clientID.String(),
		Template: recurringdomain.InvoiceTemplate{
			LineItems: []invoicedomain.LineItemInput{
				{Description: "milestone", Quantity: decimal.NewFromInt(1), UnitRate: 50000},
			},
		},
		TriggerAt: f.fake.Now().AddDate(0, 0, 20),
	})
	require.NoError(t, err)

	// 25 days later the invoice is 11 days past due, past the 7 day grace.
	f.fake.Advance(25 * 24 * time.Hour)
	require.NoError(t, sched.RunOnce(ctx))

	var reloaded invoicedomain.Invoice
	require.NoError(t, f.db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloaded.Status)
	// Overdue detection and the 1.5% late fee land in the same pass.
	assert.Equal(t, int64(20300), reloaded.TotalAmount)
	assert.NotNil(t, reloaded.LateFeeAppliedAt)

	// Four reminder tiers have elapsed: -3d, due, +3d and +7d.
	reminders, err := f.reminderSvc.ListForInvoice(ctx, invoice.ID.String())
	require.NoError(t, err)
	sent := 0
	for _, reminder := range reminders {
		if reminder.Status == reminderdomain.ReminderStatusSent {
			sent++
		}
	}
	assert.Equal(t, 4, sent)

	// The pattern and the scheduled one-off each materialized a draft.
	draft := invoicedomain.InvoiceStatusDraft
	drafts, err := f.invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{Status: &draft})
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	var fired recurringdomain.ScheduledInvoice
	require.NoError(t, f.db.First(&fired, "id = ?", scheduled.ID).Error)
	assert.Equal(t, recurringdomain.ScheduledStateFired, fired.State)

	// A second pass is a no-op thanks to the idempotency markers.
	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, f.db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, int64(20300), reloaded.TotalAmount)
	drafts, err = f.invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{Status: &draft})
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sched := newScheduler(t, f, Config{EnabledJobs: []string{"check_overdue"}})

	invoice := sentInvoice(t, f, 20000)
	f.fake.Advance(25 * 24 * time.Hour)
	require.NoError(t, sched.RunOnce(ctx))

	// Overdue detection ran, but late fees and reminders belong to other
	// workers in split mode.
	var reloaded invoicedomain.Invoice
	require.NoError(t, f.db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloaded.Status)
	assert.Equal(t, int64(20000), reloaded.TotalAmount)
	assert.Nil(t, reloaded.LateFeeAppliedAt)

	reminders, err := f.reminderSvc.ListForInvoice(ctx, invoice.ID.String())
	require.NoError(t, err)
	for _, reminder := range reminders {
		assert.Equal(t, reminderdomain.ReminderStatusPending, reminder.Status)
	}
}
