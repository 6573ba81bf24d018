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
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func setupDB(t *testing.T) *gorm.DB {
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
	))
	return db
}

func setupService(t *testing.T) (invoicedomain.Service, *gorm.DB, *clock.FakeClock, snowflake.ID) {
	t.Helper()
	db := setupDB(t)
	node := mustNode(t)
	fake := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))

	client := clientdomain.Client{
		ID:    node.Generate(),
		Name:  "Acme Studio",
		Email: "billing@acme.test",
	}
	require.NoError(t, db.Create(&client).Error)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, db, fake, client.ID
}

func lineItems(amounts ...int64) []invoicedomain.LineItemInput {
	items := make([]invoicedomain.LineItemInput, 0, len(amounts))
	for i, amount := range amounts {
		items = append(items, invoicedomain.LineItemInput{
			Description: fmt.Sprintf("item %d", i+1),
			Quantity:    decimal.NewFromInt(1),
			UnitRate:    amount,
		})
	}
	return items
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID: clientID.String(),
		LineItems: []invoicedomain.LineItemInput{
			{Description: "design hours", Quantity: decimal.NewFromFloat(2.5), UnitRate: 10000},
			{Description: "hosting", Quantity: decimal.NewFromInt(1), UnitRate: 5000},
		},
		TaxRateBps:     1000,
		DiscountAmount: 2000,
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, created.Status)
	assert.Equal(t, invoicedomain.InvoiceTypeStandard, created.Type)
	assert.Equal(t, int64(30000), created.SubtotalAmount)
	assert.Equal(t, int64(31000), created.TotalAmount)
	assert.Equal(t, "INV-2026-0001", created.InvoiceNumber)
	require.Len(t, created.LineItems, 2)
	assert.Equal(t, int64(25000), created.LineItems[0].Amount)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID: clientID.String(),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)

	_, err = svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:  clientID.String(),
		LineItems: lineItems(1000),
		Type:      invoicedomain.InvoiceType("estimate"),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)

	unknown := snowflake.ID(424242)
	_, err = svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:  unknown.String(),
		LineItems: lineItems(1000),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(1000)})
	require.NoError(t, err)
	second, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(2000)})
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-0001", first.InvoiceNumber)
	assert.Equal(t, "INV-2026-0002", second.InvoiceNumber)
}

func TestUpdateOnlyDrafts(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(10000)})
	require.NoError(t, err)

	discount := int64(1000)
	updated, err := svc.Update(ctx, created.ID.String(), invoicedomain.UpdateInvoiceRequest{DiscountAmount: &discount})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), updated.TotalAmount)

	_, err = svc.Send(ctx, created.ID.String())
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID.String(), invoicedomain.UpdateInvoiceRequest{DiscountAmount: &discount})
	assert.ErrorIs(t, err, invoicedomain.ErrNotEditable)
}

func TestUpdateReplacesLineItems(t *testing.T) {
	svc, db, _, clientID := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(10000, 5000)})
	require.NoError(t, err)

	replacement := lineItems(20000)
	updated, err := svc.Update(ctx, created.ID.String(), invoicedomain.UpdateInvoiceRequest{LineItems: &replacement})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), updated.SubtotalAmount)

	var count int64
	require.NoError(t, db.Model(&invoicedomain.InvoiceLineItem{}).Where("invoice_id = ?", created.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendSetsIssuedAndDefaultDueDate(t *testing.T) {
	svc, _, fake, clientID := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(1000)})
	require.NoError(t, err)

	sent, err := svc.Send(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.IssuedAt)
	require.NotNil(t, sent.DueAt)
	assert.Equal(t, fake.Now(), *sent.IssuedAt)
	assert.Equal(t, fake.Now().AddDate(0, 0, defaultNetTermsDays), *sent.DueAt)

	_, err = svc.Send(ctx, created.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)
}

func TestMarkViewed(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(1000)})
	require.NoError(t, err)
	_, err = svc.MarkViewed(ctx, created.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)

	_, err = svc.Send(ctx, created.ID.String())
	require.NoError(t, err)
	viewed, err := svc.MarkViewed(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusViewed, viewed.Status)

	// Viewing again is harmless.
	again, err := svc.MarkViewed(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusViewed, again.Status)
}

func sendInvoice(t *testing.T, svc invoicedomain.Service, clientID snowflake.ID, amounts ...int64) invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	created, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(amounts...)})
	require.NoError(t, err)
	sent, err := svc.Send(ctx, created.ID.String())
	require.NoError(t, err)
	return sent
}

func TestRecordPaymentLifecycle(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()
	sent := sendInvoice(t, svc, clientID, 1000)

	partial, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    400,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartial, partial.Status)
	assert.Equal(t, int64(400), partial.PaidAmount)

	paid, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    600,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, int64(0), paid.OutstandingAmount())

	// Even a single extra cent against a settled invoice is an overpayment.
	_, err = svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    1,
		Method:    "bank_transfer",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	payments, err := svc.ListPayments(ctx, sent.ID.String())
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()
	sent := sendInvoice(t, svc, clientID, 1000)

	_, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    400,
		Method:    "card",
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: sent.ID.String(),
		Amount:    700,
		Method:    "card",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	// Rejection mutates nothing.
	reloaded, err := svc.GetByID(ctx, sent.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(400), reloaded.PaidAmount)
	assert.Equal(t, invoicedomain.InvoiceStatusPartial, reloaded.Status)

	payments, err := svc.ListPayments(ctx, sent.ID.String())
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPaymentRequiresOpenInvoice(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(1000)})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: draft.ID.String(),
		Amount:    100,
		Method:    "card",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNotEditable)
}

func TestApplyCreditDrawsDownDeposit(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	deposit, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:  clientID.String(),
		Type:      invoicedomain.InvoiceTypeDeposit,
		LineItems: lineItems(1000),
	})
	require.NoError(t, err)
	_, err = svc.Send(ctx, deposit.ID.String())
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{
		InvoiceID: deposit.ID.String(),
		Amount:    1000,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)

	target := sendInvoice(t, svc, clientID, 800)

	_, err = svc.ApplyCredit(ctx, invoicedomain.ApplyCreditRequest{
		DepositInvoiceID: deposit.ID.String(),
		TargetInvoiceID:  target.ID.String(),
		Amount:           600,
	})
	require.NoError(t, err)

	reloaded, err := svc.GetByID(ctx, target.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartial, reloaded.Status)
	assert.Equal(t, int64(600), reloaded.PaidAmount)

	// Only 400 left on the deposit.
	_, err = svc.ApplyCredit(ctx, invoicedomain.ApplyCreditRequest{
		DepositInvoiceID: deposit.ID.String(),
		TargetInvoiceID:  target.ID.String(),
		Amount:           500,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInsufficientCredit)

	_, err = svc.ApplyCredit(ctx, invoicedomain.ApplyCreditRequest{
		DepositInvoiceID: deposit.ID.String(),
		TargetInvoiceID:  target.ID.String(),
		Amount:           200,
	})
	require.NoError(t, err)

	final, err := svc.GetByID(ctx, target.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, final.Status)

	balance, err := svc.DepositBalance(ctx, deposit.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.PaidAmount)
	assert.Equal(t, int64(800), balance.CreditsApplied)
	assert.Equal(t, int64(200), balance.Available)
}

func TestApplyCreditRequiresDepositSource(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	source := sendInvoice(t, svc, clientID, 1000)
	target := sendInvoice(t, svc, clientID, 500)

	_, err := svc.ApplyCredit(ctx, invoicedomain.ApplyCreditRequest{
		DepositInvoiceID: source.ID.String(),
		TargetInvoiceID:  target.ID.String(),
		Amount:           100,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrValidation)
}

func TestDeleteRules(t *testing.T) {
	svc, db, _, clientID := setupService(t)
	ctx := context.Background()

	// Drafts are removed outright.
	draft, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ClientID: clientID.String(), LineItems: lineItems(1000)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, draft.ID.String()))
	_, err = svc.GetByID(ctx, draft.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	// Paid invoices are protected.
	paid := sendInvoice(t, svc, clientID, 1000)
	_, err = svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{InvoiceID: paid.ID.String(), Amount: 1000, Method: "card"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, paid.ID.String()), invoicedomain.ErrProtectedState)

	// Open invoices get voided and their pending reminders skipped.
	open := sendInvoice(t, svc, clientID, 1000)
	reminder := reminderdomain.Reminder{
		ID:          snowflake.ID(171717),
		InvoiceID:   open.ID,
		Type:        reminderdomain.ReminderTypeDue,
		Status:      reminderdomain.ReminderStatusPending,
		ScheduledAt: *open.DueAt,
	}
	require.NoError(t, db.Create(&reminder).Error)

	require.NoError(t, svc.Delete(ctx, open.ID.String()))
	voided, err := svc.GetByID(ctx, open.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, voided.Status)

	var reloaded reminderdomain.Reminder
	require.NoError(t, db.First(&reloaded, "id = ?", reminder.ID).Error)
	assert.Equal(t, reminderdomain.ReminderStatusSkipped, reloaded.Status)
}

func TestVoidPaidInvoiceIsProtected(t *testing.T) {
	svc, _, _, clientID := setupService(t)
	ctx := context.Background()

	paid := sendInvoice(t, svc, clientID, 1000)
	_, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{InvoiceID: paid.ID.String(), Amount: 1000, Method: "card"})
	require.NoError(t, err)

	_, err = svc.Void(ctx, paid.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrProtectedState)
}

func TestCheckOverdueSweep(t *testing.T) {
	svc, _, fake, clientID := setupService(t)
	ctx := context.Background()

	pastDue := sendInvoice(t, svc, clientID, 1000)
	pastDueViewed := sendInvoice(t, svc, clientID, 2000)
	_, err := svc.MarkViewed(ctx, pastDueViewed.ID.String())
	require.NoError(t, err)
	notYetDue := sendInvoice(t, svc, clientID, 3000)

	future := fake.Now().AddDate(0, 0, 60)
	farOut, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:  clientID.String(),
		LineItems: lineItems(100),
		DueAt:     &future,
	})
	require.NoError(t, err)
	_, err = svc.Send(ctx, farOut.ID.String())
	require.NoError(t, err)

	// Default terms are 14 days, so all three default-term invoices are
	// past due after 15.
	fake.Advance(15 * 24 * time.Hour)

	result, err := svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Failed)

	for _, id := range []snowflake.ID{pastDue.ID, pastDueViewed.ID, notYetDue.ID} {
		invoice, err := svc.GetByID(ctx, id.String())
		require.NoError(t, err)
		assert.Equal(t, invoicedomain.InvoiceStatusOverdue, invoice.Status)
	}

	untouched, err := svc.GetByID(ctx, farOut.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, untouched.Status)

	// Second sweep finds nothing left to flip.
	again, err := svc.CheckOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestPartialPaymentOnOverdueStaysOverdue(t *testing.T) {
	svc, _, fake, clientID := setupService(t)
	ctx := context.Background()

	sent := sendInvoice(t, svc, clientID, 1000)
	fake.Advance(20 * 24 * time.Hour)
	_, err := svc.CheckOverdue(ctx)
	require.NoError(t, err)

	partial, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{InvoiceID: sent.ID.String(), Amount: 100, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, partial.Status)

	paid, err := svc.RecordPayment(ctx, invoicedomain.RecordPaymentRequest{InvoiceID: sent.ID.String(), Amount: 900, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
}
