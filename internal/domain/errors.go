package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrSerializationFailure = errors.New("serialization failure")

	// ErrMalformedIntent means a payment authorization's metadata could not
	// be decoded back into a pending reservation. Operator-visible.
	ErrMalformedIntent = errors.New("malformed intent")

	// ErrAmountMismatch means the charged amount differs from the intent
	// total. Operator-visible, never clamped.
	ErrAmountMismatch = errors.New("payment amount mismatch")

	// ErrDuplicatePayment is the expected duplicate-key signal from the
	// unique payment reference index. Callers treat it as idempotent success.
	ErrDuplicatePayment = errors.New("duplicate payment reference")

	ErrCategoryValidation = errors.New("missing required field for category")
	ErrOverpayment        = errors.New("payment exceeds remaining balance")
	ErrAlreadyCanceled    = errors.New("reservation already canceled")
	ErrRefundExceedsPaid  = errors.New("refund exceeds amount paid")
	ErrRefundGateway      = errors.New("refund gateway failure")

	// ErrRefundOutcomeUnknown marks a refund whose gateway call timed out.
	// Never retried automatically; resolved by manual reconciliation.
	ErrRefundOutcomeUnknown = errors.New("refund outcome unknown")
)
