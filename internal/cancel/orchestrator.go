// Package cancel transitions reservations to canceled with a compensating
// refund. The money moves first: no local cancellation is ever recorded while
// the gateway's answer is unknown or negative.
package cancel

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

type Store interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
}

type Auditor interface {
	LogPaymentEvent(ctx context.Context, action, ref string, data map[string]interface{}) error
}

// Notifier queues the cancellation notification. Best effort; a queue failure
// never unwinds the cancellation.
type Notifier interface {
	ReservationCanceled(ctx context.Context, r *domain.Reservation) error
}

type Orchestrator struct {
	store    Store
	gw       gateway.Client
	audit    Auditor
	notifier Notifier
	logger   observability.Logger
}

func NewOrchestrator(store Store, gw gateway.Client, audit Auditor, notifier Notifier, logger observability.Logger) *Orchestrator {
	return &Orchestrator{store: store, gw: gw, audit: audit, notifier: notifier, logger: logger}
}

// Cancel cancels a reservation and refunds through the gateway.
//
// refundCents nil means the default policy: refund the full amount paid.
// An explicit amount (administrative actors) is honored but may never exceed
// amount_paid. A canceled reservation cancels again with ErrAlreadyCanceled —
// a distinct error, so callers can tell "nothing to do" from "succeeded now".
//
// Safe to retry: a gateway failure leaves the reservation untouched. A
// timeout is an unknown outcome and is surfaced as ErrRefundOutcomeUnknown
// for manual reconciliation; retrying it automatically could double-refund.
func (o *Orchestrator) Cancel(ctx context.Context, reservationID, actor uuid.UUID, reason string, refundCents *int64) (*domain.Reservation, error) {
	r, err := o.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status == domain.StatusCanceled {
		return nil, domain.ErrAlreadyCanceled
	}

	amount := r.Payment.PaidCents
	if refundCents != nil {
		amount = *refundCents
	}
	if amount < 0 || amount > r.Payment.PaidCents {
		return nil, errors.Wrapf(domain.ErrRefundExceedsPaid, "refund %d, paid %d", amount, r.Payment.PaidCents)
	}

	refundStatus := domain.RefundPending
	if amount > 0 && r.PaymentRef != "" {
		refund, err := o.gw.CreateRefund(ctx, gateway.RefundParams{
			PaymentRef:  r.PaymentRef,
			AmountCents: amount,
			Reason:      reason,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				observability.RefundsTotal.WithLabelValues("unknown").Inc()
				o.logAudit(ctx, "refund.outcome_unknown", r.PaymentRef, map[string]interface{}{
					"reservation_id": r.ID.String(),
					"amount":         amount,
				})
				return nil, errors.Wrap(domain.ErrRefundOutcomeUnknown, err.Error())
			}
			observability.RefundsTotal.WithLabelValues("failed").Inc()
			return nil, errors.Wrap(domain.ErrRefundGateway, err.Error())
		}
		refundStatus = domain.RefundProcessed
		observability.RefundsTotal.WithLabelValues("processed").Inc()
		o.logAudit(ctx, "refund.processed", r.PaymentRef, map[string]interface{}{
			"reservation_id": r.ID.String(),
			"refund_ref":     refund.Reference,
			"amount":         amount,
		})
	}

	if err := r.Transition(domain.StatusCanceled); err != nil {
		return nil, err
	}
	r.Cancellation = &domain.Cancellation{
		CanceledBy:   actor,
		CanceledAt:   time.Now().UTC(),
		RefundCents:  amount,
		RefundStatus: refundStatus,
		Reason:       reason,
	}

	if err := o.store.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	if o.notifier != nil {
		if err := o.notifier.ReservationCanceled(ctx, r); err != nil {
			o.logger.WithField("reservation_id", r.ID).Warn("cancellation notification not queued: ", err)
		}
	}
	return r, nil
}

func (o *Orchestrator) logAudit(ctx context.Context, action, ref string, data map[string]interface{}) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogPaymentEvent(ctx, action, ref, data); err != nil {
		o.logger.WithField("reference", ref).Warn("audit write failed: ", err)
	}
}

type timeoutError interface {
	Timeout() bool
	error
}

func isTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}
