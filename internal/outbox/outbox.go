// Package outbox carries reservation notifications out of the request path.
// The webhook handler must ack within the gateway's response ceiling, so
// anything slow (email, downstream consumers) is queued here and published by
// a separate process.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/crdb"
	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
)

const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCanceled  = "reservation.canceled"
)

// Queue writes reservation events into the outbox table.
type Queue struct {
	repo *crdb.Repository
}

func NewQueue(repo *crdb.Repository) *Queue {
	return &Queue{repo: repo}
}

type reservationEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	Category      string    `json:"category"`
	Status        string    `json:"status"`
	GuestEmail    string    `json:"guest_email,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	TotalCents    int64     `json:"total_cents"`
}

func (q *Queue) ReservationConfirmed(ctx context.Context, r *domain.Reservation) error {
	return q.queue(ctx, EventReservationConfirmed, r)
}

func (q *Queue) ReservationCanceled(ctx context.Context, r *domain.Reservation) error {
	return q.queue(ctx, EventReservationCanceled, r)
}

func (q *Queue) queue(ctx context.Context, eventType string, r *domain.Reservation) error {
	ev := reservationEvent{
		ReservationID: r.ID,
		PaymentRef:    r.PaymentRef,
		Category:      string(r.Category),
		Status:        string(r.Status),
		GuestEmail:    r.Holder.GuestEmail,
		TotalCents:    r.Payment.TotalCents,
	}
	if r.Holder.AccountID != nil {
		ev.AccountID = r.Holder.AccountID.String()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.repo.InsertOutbox(ctx, crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "reservation",
		AggregateID:   r.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + r.ID.String(),
	})
}
