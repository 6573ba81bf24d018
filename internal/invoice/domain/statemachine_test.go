package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionAllowed(t *testing.T) {
	cases := []struct {
		from InvoiceStatus
		ev   Event
		want InvoiceStatus
	}{
		{InvoiceStatusDraft, EventSend, InvoiceStatusSent},
		{InvoiceStatusSent, EventView, InvoiceStatusViewed},
		{InvoiceStatusSent, EventPartialPaid, InvoiceStatusPartial},
		{InvoiceStatusSent, EventFullyPaid, InvoiceStatusPaid},
		{InvoiceStatusSent, EventOverdue, InvoiceStatusOverdue},
		{InvoiceStatusSent, EventVoid, InvoiceStatusCancelled},
		{InvoiceStatusViewed, EventView, InvoiceStatusViewed},
		{InvoiceStatusViewed, EventOverdue, InvoiceStatusOverdue},
		{InvoiceStatusPartial, EventPartialPaid, InvoiceStatusPartial},
		{InvoiceStatusPartial, EventFullyPaid, InvoiceStatusPaid},
		{InvoiceStatusOverdue, EventFullyPaid, InvoiceStatusPaid},
		{InvoiceStatusOverdue, EventVoid, InvoiceStatusCancelled},
	}

	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		require.NoError(t, err, "%s + %s", tc.from, tc.ev)
		assert.Equal(t, tc.want, got)
	}
}

func TestTransitionPartialPaymentOnOverdueStaysOverdue(t *testing.T) {
	got, err := Transition(InvoiceStatusOverdue, EventPartialPaid)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusOverdue, got)
}

func TestTransitionVoidPaidIsProtected(t *testing.T) {
	_, err := Transition(InvoiceStatusPaid, EventVoid)
	assert.ErrorIs(t, err, ErrProtectedState)
}

func TestTransitionRejectsIllegalCombinations(t *testing.T) {
	cases := []struct {
		from InvoiceStatus
		ev   Event
	}{
		{InvoiceStatusDraft, EventPartialPaid},
		{InvoiceStatusDraft, EventOverdue},
		{InvoiceStatusDraft, EventVoid},
		{InvoiceStatusPaid, EventSend},
		{InvoiceStatusPaid, EventPartialPaid},
		{InvoiceStatusCancelled, EventSend},
		{InvoiceStatusCancelled, EventFullyPaid},
		{InvoiceStatusOverdue, EventSend},
		{InvoiceStatusSent, EventSend},
	}

	for _, tc := range cases {
		_, err := Transition(tc.from, tc.ev)
		require.Error(t, err, "%s + %s", tc.from, tc.ev)
		assert.True(t, errors.Is(err, ErrValidation), "%s + %s should be a validation error", tc.from, tc.ev)
		assert.False(t, CanTransition(tc.from, tc.ev))
	}
}

func TestPaymentEvent(t *testing.T) {
	assert.Equal(t, EventPartialPaid, PaymentEvent(400, 1000))
	assert.Equal(t, EventFullyPaid, PaymentEvent(1000, 1000))
	assert.Equal(t, EventFullyPaid, PaymentEvent(1200, 1000))
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, ev := range []Event{EventSend, EventView, EventPartialPaid, EventFullyPaid, EventOverdue} {
		assert.False(t, CanTransition(InvoiceStatusPaid, ev))
		assert.False(t, CanTransition(InvoiceStatusCancelled, ev))
	}
	assert.False(t, CanTransition(InvoiceStatusCancelled, EventVoid))
}
