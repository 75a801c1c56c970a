package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewPendingReservation builds a pending reservation for non-payment-gated
// flows (cash on arrival, split payments). No ledger entries yet.
func NewPendingReservation(holder Holder, serviceID uuid.UUID, optionID *uuid.UUID, partySize int, details CategoryDetails, totalCents int64) (*Reservation, error) {
	r := &Reservation{
		ID:        uuid.New(),
		Holder:    holder,
		Category:  details.Category(),
		ServiceID: serviceID,
		OptionID:  optionID,
		PartySize: partySize,
		Details:   details,
		Status:    StatusPending,
		Payment:   PaymentSummary{TotalCents: totalCents},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	r.Payment.Recompute()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewConfirmedReservation materializes an intent paid in full through the
// gateway: born confirmed, with one paid ledger entry for the holder.
func NewConfirmedReservation(paymentRef string, it PendingIntent, method PaymentMethod) (*Reservation, error) {
	now := time.Now().UTC()
	r := &Reservation{
		ID:           uuid.New(),
		PaymentRef:   paymentRef,
		Holder:       it.Holder,
		Category:     it.Category,
		ServiceID:    it.ServiceID,
		OptionID:     it.OptionID,
		PartySize:    it.PartySize,
		MultiUser:    len(it.Participants) > 0,
		Participants: it.Participants,
		Details:      it.Details,
		Status:       StatusConfirmed,
		Payment: PaymentSummary{
			TotalCents: it.TotalCents,
			Entries: []LedgerEntry{{
				ID:          uuid.New(),
				Participant: it.Holder,
				AmountCents: it.TotalCents,
				Status:      EntryPaid,
				Method:      method,
				PaidAt:      &now,
			}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Payment.Recompute()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reservation) Validate() error {
	if !r.Holder.Valid() {
		return ErrInvalidInput
	}
	if r.PartySize < 1 {
		return ErrInvalidInput
	}
	if r.Details == nil || r.Details.Category() != r.Category {
		return ErrCategoryValidation
	}
	if err := r.Details.Validate(); err != nil {
		return err
	}
	if r.Payment.PaidCents > r.Payment.TotalCents {
		return ErrOverpayment
	}
	return nil
}

// Transition enforces the status machine: pending→confirmed,
// pending→canceled, confirmed→canceled. Canceled is terminal.
func (r *Reservation) Transition(to Status) error {
	if r.Status == StatusCanceled {
		return ErrAlreadyCanceled
	}
	if r.Status == StatusConfirmed && to == StatusPending {
		return ErrConflict
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// serviceDate returns the date feedback eligibility is measured against.
func (r *Reservation) serviceDate() string {
	switch d := r.Details.(type) {
	case ExcursionDetails:
		return d.Date
	case LodgingDetails:
		return d.CheckOut
	case DiningDetails:
		return d.Date
	case TransportDetails:
		return d.Date
	case SpaDetails:
		return d.Date
	}
	return ""
}

// AttachFeedback accepts feedback only once the service date has passed.
func (r *Reservation) AttachFeedback(rating int, comment string, now time.Time) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidInput
	}
	day, err := time.Parse("2006-01-02", r.serviceDate())
	if err != nil {
		return ErrInvalidInput
	}
	if !now.After(day.Add(24 * time.Hour)) {
		return ErrConflict
	}
	r.Feedback = &Feedback{Rating: rating, Comment: comment, SubmittedAt: now}
	r.UpdatedAt = now
	return nil
}
