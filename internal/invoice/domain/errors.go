package domain

import "errors"

var (
	// ErrValidation covers bad input shape or range. Handlers wrap it with
	// field detail via fmt.Errorf("%w: ...", ErrValidation).
	ErrValidation = errors.New("validation_error")

	// ErrNotEditable is returned when an invoice's status forbids the
	// requested mutation. Only drafts accept line-item, tax and discount
	// edits.
	ErrNotEditable = errors.New("not_editable")

	// ErrProtectedState is returned when deleting or voiding a paid invoice.
	ErrProtectedState = errors.New("protected_state")

	// ErrOverpayment is returned when a payment or credit would push
	// paid_amount past total_amount.
	ErrOverpayment = errors.New("overpayment")

	// ErrInsufficientCredit is returned when a credit draw exceeds the
	// deposit's available balance.
	ErrInsufficientCredit = errors.New("insufficient_credit")

	ErrNotFound  = errors.New("not_found")
	ErrInvalidID = errors.New("invalid_id")
)
