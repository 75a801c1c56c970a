package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	owner := uuid.New()
	r, err := NewPendingReservation(Holder{AccountID: &owner}, uuid.New(), nil, 2,
		ExcursionDetails{Date: "2026-09-14", Time: "09:30"}, 10000)
	require.NoError(t, err)

	require.NoError(t, r.Transition(StatusConfirmed))
	assert.Equal(t, StatusConfirmed, r.Status)

	assert.ErrorIs(t, r.Transition(StatusPending), ErrConflict)

	require.NoError(t, r.Transition(StatusCanceled))
	assert.ErrorIs(t, r.Transition(StatusConfirmed), ErrAlreadyCanceled)
	assert.ErrorIs(t, r.Transition(StatusCanceled), ErrAlreadyCanceled)
}

func TestNewPendingReservation_Validation(t *testing.T) {
	owner := uuid.New()

	_, err := NewPendingReservation(Holder{}, uuid.New(), nil, 2,
		ExcursionDetails{Date: "2026-09-14", Time: "09:30"}, 10000)
	assert.ErrorIs(t, err, ErrInvalidInput, "holder must be account or guest email")

	_, err = NewPendingReservation(Holder{AccountID: &owner}, uuid.New(), nil, 0,
		ExcursionDetails{Date: "2026-09-14", Time: "09:30"}, 10000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewPendingReservation(Holder{AccountID: &owner}, uuid.New(), nil, 2,
		LodgingDetails{CheckIn: "2026-09-14"}, 10000)
	assert.ErrorIs(t, err, ErrCategoryValidation)
}

func TestRecompute(t *testing.T) {
	p := PaymentSummary{
		TotalCents: 30000,
		Entries: []LedgerEntry{
			{AmountCents: 10000, Status: EntryPaid},
			{AmountCents: 10000, Status: EntryPending},
			{AmountCents: 5000, Status: EntryPaid},
		},
	}
	p.Recompute()
	assert.Equal(t, int64(15000), p.PaidCents)
	assert.Equal(t, int64(15000), p.RemainingCents)
}

func TestAttachFeedback(t *testing.T) {
	owner := uuid.New()
	r, err := NewPendingReservation(Holder{AccountID: &owner}, uuid.New(), nil, 2,
		ExcursionDetails{Date: "2026-09-14", Time: "09:30"}, 10000)
	require.NoError(t, err)

	tooEarly := time.Date(2026, 9, 14, 23, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, r.AttachFeedback(5, "great", tooEarly), ErrConflict)

	afterService := time.Date(2026, 9, 16, 10, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, r.AttachFeedback(0, "bad rating", afterService), ErrInvalidInput)
	assert.ErrorIs(t, r.AttachFeedback(6, "bad rating", afterService), ErrInvalidInput)

	require.NoError(t, r.AttachFeedback(4, "worth the early start", afterService))
	require.NotNil(t, r.Feedback)
	assert.Equal(t, 4, r.Feedback.Rating)
}
