// Package materialize turns verified payment-succeeded events into durable
// reservations, exactly once per payment reference. The unique index on the
// payment reference is the sole arbiter under concurrent webhook redelivery;
// a duplicate-key insert is the expected idempotent-success signal, not an
// error.
package materialize

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/intent"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/webhook"
)

type Store interface {
	GetReservationByPaymentRef(ctx context.Context, ref string) (*domain.Reservation, error)
	CreateReservation(ctx context.Context, r *domain.Reservation) error
	RecordFailure(ctx context.Context, f domain.MaterializationFailure) error
}

type Auditor interface {
	LogPaymentEvent(ctx context.Context, action, ref string, data map[string]interface{}) error
}

// Notifier queues the holder's confirmation. Queueing is best-effort: the
// webhook handler must ack within the gateway's response ceiling, so delivery
// happens on a background path.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, r *domain.Reservation) error
}

type Materializer struct {
	store    Store
	audit    Auditor
	notifier Notifier
	logger   observability.Logger
}

func NewMaterializer(store Store, audit Auditor, notifier Notifier, logger observability.Logger) *Materializer {
	return &Materializer{store: store, audit: audit, notifier: notifier, logger: logger}
}

// Materialize processes a single-reservation payment event. Redelivery of an
// already-materialized event returns the existing reservation unchanged.
// Internal failures (undecodable intent, amount mismatch, category
// validation) leave no reservation behind and land in the operator failure
// queue; the caller still acks the event to the gateway.
func (m *Materializer) Materialize(ctx context.Context, ev webhook.Event) (*domain.Reservation, error) {
	if !ev.Succeeded() {
		m.logger.WithField("reference", ev.Reference).Info("ignoring non-success event ", ev.Type)
		m.logAudit(ctx, "payment."+ev.Type, ev.Reference, map[string]interface{}{"amount": ev.AmountCents})
		return nil, nil
	}

	existing, err := m.store.GetReservationByPaymentRef(ctx, ev.Reference)
	if err == nil {
		observability.MaterializationsTotal.WithLabelValues("duplicate").Inc()
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	it, err := intent.Decode(ev.Metadata, intent.DefaultKey)
	if err != nil {
		m.fail(ctx, ev.Reference, "malformed_intent", err)
		return nil, err
	}

	r, _, err := m.MaterializeIntent(ctx, ev.Reference, ev.AmountCents, it)
	return r, err
}

// MaterializeIntent runs the decode-independent half of materialization. The
// cart checkout orchestrator calls it per item with a derived sub-reference.
// The bool result reports whether this call inserted the reservation, as
// opposed to returning a row an earlier delivery already created.
func (m *Materializer) MaterializeIntent(ctx context.Context, ref string, amountCents int64, it domain.PendingIntent) (*domain.Reservation, bool, error) {
	if amountCents != it.TotalCents {
		err := errors.Wrapf(domain.ErrAmountMismatch, "charged %d, intent total %d", amountCents, it.TotalCents)
		m.fail(ctx, ref, "amount_mismatch", err)
		return nil, false, err
	}

	r, err := domain.NewConfirmedReservation(ref, it, domain.MethodCard)
	if err != nil {
		m.fail(ctx, ref, "category_validation", err)
		return nil, false, err
	}

	if err := m.store.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			// Lost the insert race against a concurrent delivery; the
			// winner's row is the reservation.
			observability.MaterializationsTotal.WithLabelValues("duplicate").Inc()
			existing, err := m.store.GetReservationByPaymentRef(ctx, ref)
			return existing, false, err
		}
		return nil, false, err
	}
	observability.MaterializationsTotal.WithLabelValues("created").Inc()

	if m.notifier != nil {
		if err := m.notifier.ReservationConfirmed(ctx, r); err != nil {
			m.logger.WithField("reservation_id", r.ID).Error("failed to queue confirmation: ", err)
		}
	}
	m.logAudit(ctx, "reservation.materialized", ref, map[string]interface{}{
		"reservation_id": r.ID.String(),
		"category":       string(r.Category),
		"amount":         amountCents,
	})
	return r, true, nil
}

func (m *Materializer) fail(ctx context.Context, ref, reason string, cause error) {
	observability.MaterializationsTotal.WithLabelValues("failed").Inc()
	m.logger.WithField("reference", ref).WithField("reason", reason).Error("materialization failed: ", cause)

	f := domain.NewMaterializationFailure(ref, reason, cause.Error())
	if err := m.store.RecordFailure(ctx, f); err != nil {
		// Worst case: the failure is still in the structured log above.
		m.logger.WithField("reference", ref).Error("failed to record failure: ", err)
	}
	m.logAudit(ctx, "materialization.failed", ref, map[string]interface{}{"reason": reason, "detail": cause.Error()})
}

func (m *Materializer) logAudit(ctx context.Context, action, ref string, data map[string]interface{}) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogPaymentEvent(ctx, action, ref, data); err != nil {
		m.logger.WithField("reference", ref).Warn("audit write failed: ", err)
	}
}
