// Package ledger tracks per-participant contributions toward a reservation's
// total. Aggregates are always re-derived from the full entry list, never
// incremented in place, so concurrent entry edits stay consistent.
package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

type Store interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
}

// TxFunc runs fn against a Store bound to a single serializable transaction.
// The overpayment gate reads aggregates and writes them back; without one
// transaction around that sequence, two concurrent payments can both pass the
// gate against stale totals and overpay the reservation together.
type TxFunc func(ctx context.Context, fn func(Store) error) error

const txAttempts = 3

type Ledger struct {
	store  Store
	inTx   TxFunc
	logger observability.Logger
}

// NewLedger wires the ledger onto store. inTx may be nil, in which case
// operations run directly against store without transactional isolation.
func NewLedger(store Store, inTx TxFunc, logger observability.Logger) *Ledger {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(Store) error) error { return fn(store) }
	}
	return &Ledger{store: store, inTx: inTx, logger: logger}
}

// run retries serialization aborts: the loser of a write conflict re-reads
// fresh aggregates, so its gate decision is made against the winner's commit.
func (l *Ledger) run(ctx context.Context, fn func(Store) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = l.inTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		l.logger.WithField("attempt", attempt+1).Debug("ledger tx conflict, retrying")
	}
	return err
}

// RecordPayment appends a paid entry for participant. When the remaining
// balance reaches exactly zero the reservation flips pending→confirmed; this
// is the confirmation path for cash/transfer split payments, not the
// gateway-driven one.
func (l *Ledger) RecordPayment(ctx context.Context, reservationID uuid.UUID, participant domain.Holder, amountCents int64, method domain.PaymentMethod) (*domain.LedgerEntry, error) {
	if amountCents <= 0 || !participant.Valid() {
		return nil, domain.ErrInvalidInput
	}

	var entry *domain.LedgerEntry
	err := l.run(ctx, func(s Store) error {
		r, err := s.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status == domain.StatusCanceled {
			return domain.ErrAlreadyCanceled
		}
		if r.Payment.PaidCents+amountCents > r.Payment.TotalCents {
			return errors.Wrapf(domain.ErrOverpayment,
				"paid %d + %d exceeds total %d", r.Payment.PaidCents, amountCents, r.Payment.TotalCents)
		}

		now := time.Now().UTC()
		e := domain.LedgerEntry{
			ID:          uuid.New(),
			Participant: participant,
			AmountCents: amountCents,
			Status:      domain.EntryPaid,
			Method:      method,
			PaidAt:      &now,
		}
		r.Payment.Entries = append(r.Payment.Entries, e)
		r.Payment.Recompute()

		if r.Payment.RemainingCents == 0 && r.Status == domain.StatusPending {
			if err := r.Transition(domain.StatusConfirmed); err != nil {
				return err
			}
		}
		r.UpdatedAt = now

		if err := s.UpdateReservation(ctx, r); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AddPendingEntry stages a participant's promised share without counting it
// toward the paid aggregate.
func (l *Ledger) AddPendingEntry(ctx context.Context, reservationID uuid.UUID, participant domain.Holder, amountCents int64, method domain.PaymentMethod) (*domain.LedgerEntry, error) {
	if amountCents <= 0 || !participant.Valid() {
		return nil, domain.ErrInvalidInput
	}

	var entry *domain.LedgerEntry
	err := l.run(ctx, func(s Store) error {
		r, err := s.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status == domain.StatusCanceled {
			return domain.ErrAlreadyCanceled
		}

		e := domain.LedgerEntry{
			ID:          uuid.New(),
			Participant: participant,
			AmountCents: amountCents,
			Status:      domain.EntryPending,
			Method:      method,
		}
		r.Payment.Entries = append(r.Payment.Entries, e)
		r.Payment.Recompute()
		r.UpdatedAt = time.Now().UTC()

		if err := s.UpdateReservation(ctx, r); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntryStatus marks a previously-pending entry paid (cash collected in
// person, say). Aggregates are re-derived from the whole entry list.
func (l *Ledger) UpdateEntryStatus(ctx context.Context, reservationID, entryID uuid.UUID, status domain.EntryStatus) (*domain.Reservation, error) {
	if status != domain.EntryPending && status != domain.EntryPaid {
		return nil, domain.ErrInvalidInput
	}

	var updated *domain.Reservation
	err := l.run(ctx, func(s Store) error {
		r, err := s.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}

		var entry *domain.LedgerEntry
		for i := range r.Payment.Entries {
			if r.Payment.Entries[i].ID == entryID {
				entry = &r.Payment.Entries[i]
				break
			}
		}
		if entry == nil {
			return domain.ErrNotFound
		}

		if status == domain.EntryPaid && entry.Status != domain.EntryPaid {
			candidate := r.Payment.PaidCents + entry.AmountCents
			if candidate > r.Payment.TotalCents {
				return domain.ErrOverpayment
			}
			now := time.Now().UTC()
			entry.PaidAt = &now
		}
		entry.Status = status
		r.Payment.Recompute()

		if r.Payment.RemainingCents == 0 && r.Status == domain.StatusPending {
			if err := r.Transition(domain.StatusConfirmed); err != nil {
				return err
			}
		}
		r.UpdatedAt = time.Now().UTC()

		if err := s.UpdateReservation(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.WithField("reservation_id", reservationID).Debug("ledger entry updated")
	return updated, nil
}
