package domain

import "fmt"

// Event is something that happens to an invoice. Status changes go through
// the transition table below; nothing else mutates Status.
type Event string

const (
	EventSend        Event = "send"
	EventView        Event = "view"
	EventPartialPaid Event = "partial_payment"
	EventFullyPaid   Event = "full_payment"
	EventOverdue     Event = "overdue"
	EventVoid        Event = "void"
)

// transitions is the full from-state x event table. A missing entry means
// the transition is rejected.
var transitions = map[InvoiceStatus]map[Event]InvoiceStatus{
	InvoiceStatusDraft: {
		EventSend: InvoiceStatusSent,
	},
	InvoiceStatusSent: {
		EventView:        InvoiceStatusViewed,
		EventPartialPaid: InvoiceStatusPartial,
		EventFullyPaid:   InvoiceStatusPaid,
		EventOverdue:     InvoiceStatusOverdue,
		EventVoid:        InvoiceStatusCancelled,
	},
	InvoiceStatusViewed: {
		// Repeat views are a no-op, not an error.
		EventView:        InvoiceStatusViewed,
		EventPartialPaid: InvoiceStatusPartial,
		EventFullyPaid:   InvoiceStatusPaid,
		EventOverdue:     InvoiceStatusOverdue,
		EventVoid:        InvoiceStatusCancelled,
	},
	InvoiceStatusPartial: {
		EventPartialPaid: InvoiceStatusPartial,
		EventFullyPaid:   InvoiceStatusPaid,
		EventOverdue:     InvoiceStatusOverdue,
		EventVoid:        InvoiceStatusCancelled,
	},
	InvoiceStatusOverdue: {
		// A partial payment on an overdue invoice leaves it overdue; the
		// balance is still past due.
		EventPartialPaid: InvoiceStatusOverdue,
		EventFullyPaid:   InvoiceStatusPaid,
		EventVoid:        InvoiceStatusCancelled,
	},
	// paid and cancelled are terminal.
}

// Transition resolves the next status for an event, or rejects it.
// Voiding a paid invoice is a protected-state failure; every other illegal
// combination is a validation failure.
func Transition(from InvoiceStatus, ev Event) (InvoiceStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	if from == InvoiceStatusPaid && ev == EventVoid {
		return "", ErrProtectedState
	}
	return "", fmt.Errorf("%w: cannot apply %q to %q invoice", ErrValidation, ev, from)
}

// CanTransition reports whether the table allows from -> event.
func CanTransition(from InvoiceStatus, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

// PaymentEvent picks the payment event for the resulting paid amount.
func PaymentEvent(paid, total int64) Event {
	if paid >= total {
		return EventFullyPaid
	}
	return EventPartialPaid
}
