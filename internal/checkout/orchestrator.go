// Package checkout converts a staged multi-item cart into N reservations
// under one payment, all or nothing. There is no cross-row transaction
// manager; atomicity is compensating rollback of this batch's rows.
package checkout

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	"github.com/tropicbook/resort-reservations-and-payments/internal/intent"
	"github.com/tropicbook/resort-reservations-and-payments/internal/materialize"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/webhook"
)

const (
	metaCartID = "cart_id"
	metaItems  = "items"
)

type Store interface {
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, f domain.MaterializationFailure) error
}

type Orchestrator struct {
	store  Store
	mat    *materialize.Materializer
	gw     gateway.Client
	logger observability.Logger
}

func NewOrchestrator(store Store, mat *materialize.Materializer, gw gateway.Client, logger observability.Logger) *Orchestrator {
	return &Orchestrator{store: store, mat: mat, gw: gw, logger: logger}
}

func itemKey(i int) string { return "item_" + strconv.Itoa(i) }

// SubRef derives the per-item payment reference inside a batch. The unique
// index on it gives every item the same idempotency guarantee a single-item
// payment gets from the raw event reference.
func SubRef(eventRef string, i int) string {
	return eventRef + ":" + strconv.Itoa(i)
}

// IsBatch reports whether the event carries the cart-checkout marker.
func IsBatch(ev webhook.Event) bool {
	return ev.Metadata[metaCartID] != ""
}

// Authorize encodes one intent per cart item plus the batch marker and
// requests a single authorization for the summed total.
func (o *Orchestrator) Authorize(ctx context.Context, cart *domain.Cart, holder domain.Holder, currency string) (*gateway.Authorization, error) {
	if len(cart.Items) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "cart is empty")
	}

	metadata := map[string]string{
		metaCartID: cart.ID.String(),
		metaItems:  strconv.Itoa(len(cart.Items)),
	}
	for i, item := range cart.Items {
		slots, err := intent.Encode(item.Intent(holder, currency), itemKey(i))
		if err != nil {
			return nil, errors.Wrapf(err, "encoding cart item %d", i)
		}
		for k, v := range slots {
			metadata[k] = v
		}
	}

	return o.gw.CreateAuthorization(ctx, gateway.AuthorizationParams{
		AmountCents: cart.TotalCents(),
		Currency:    currency,
		Description: "cart checkout " + cart.ID.String(),
		Metadata:    metadata,
	})
}

// HandleSuccess materializes every item of a batch success event. Items are
// commutative: none depends on another having been created first. On any
// item failure the whole batch is rolled back, the failure is queued for
// operators, and the cart is left uncleared. Only a fully materialized batch
// clears the cart.
func (o *Orchestrator) HandleSuccess(ctx context.Context, ev webhook.Event) ([]*domain.Reservation, error) {
	cartID, err := uuid.Parse(ev.Metadata[metaCartID])
	if err != nil {
		o.failBatch(ctx, ev.Reference, errors.Wrap(domain.ErrMalformedIntent, "bad cart_id"))
		return nil, domain.ErrMalformedIntent
	}
	count, err := strconv.Atoi(ev.Metadata[metaItems])
	if err != nil || count < 1 {
		o.failBatch(ctx, ev.Reference, errors.Wrap(domain.ErrMalformedIntent, "bad item count"))
		return nil, domain.ErrMalformedIntent
	}

	var (
		created  []*domain.Reservation
		sum      int64
		inserted bool
	)
	for i := 0; i < count; i++ {
		it, err := intent.Decode(ev.Metadata, itemKey(i))
		if err != nil {
			o.rollback(ctx, created)
			o.failBatch(ctx, ev.Reference, errors.Wrapf(err, "item %d", i))
			return nil, err
		}
		sum += it.TotalCents

		r, fresh, err := o.mat.MaterializeIntent(ctx, SubRef(ev.Reference, i), it.TotalCents, it)
		if err != nil {
			o.rollback(ctx, created)
			o.failBatch(ctx, ev.Reference, errors.Wrapf(err, "item %d", i))
			return nil, err
		}
		if fresh {
			inserted = true
		}
		created = append(created, r)
	}

	if sum != ev.AmountCents {
		err := errors.Wrapf(domain.ErrAmountMismatch, "charged %d, batch total %d", ev.AmountCents, sum)
		o.rollback(ctx, created)
		o.failBatch(ctx, ev.Reference, err)
		return nil, err
	}

	// A redelivery where every item hit the duplicate path inserted nothing;
	// the owner may have staged new items since the first success, so the
	// cart is cleared only when this delivery actually created rows.
	if inserted {
		if err := o.store.ClearCart(ctx, cartID); err != nil {
			// Reservations exist and money is settled; a stale cart is an
			// inconvenience, not a correctness problem.
			o.logger.WithField("cart_id", cartID).Error("failed to clear cart: ", err)
		}
	}
	observability.MaterializationsTotal.WithLabelValues("batch").Inc()
	return created, nil
}

// rollback deletes the reservations materialized under this batch's event
// reference, including rows left by an earlier partial delivery of the same
// batch. Reservations from unrelated materializations carry other references
// and are never touched.
func (o *Orchestrator) rollback(ctx context.Context, created []*domain.Reservation) {
	for _, r := range created {
		if err := o.store.DeleteReservation(ctx, r.ID); err != nil {
			o.logger.WithField("reservation_id", r.ID).Error("batch rollback delete failed: ", err)
		}
	}
}

func (o *Orchestrator) failBatch(ctx context.Context, ref string, cause error) {
	o.logger.WithField("reference", ref).Error("batch checkout failed: ", cause)
	f := domain.NewMaterializationFailure(ref, "batch_rollback", cause.Error())
	if err := o.store.RecordFailure(ctx, f); err != nil {
		o.logger.WithField("reference", ref).Error("failed to record batch failure: ", err)
	}
}
