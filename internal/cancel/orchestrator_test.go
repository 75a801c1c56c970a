package cancel_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicbook/resort-reservations-and-payments/internal/cancel"
	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
)

type memStore struct {
	reservations map[uuid.UUID]*domain.Reservation
	updates      int
}

func newMemStore() *memStore {
	return &memStore{reservations: make(map[uuid.UUID]*domain.Reservation)}
}

func (s *memStore) GetReservation(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) UpdateReservation(_ context.Context, r *domain.Reservation) error {
	s.reservations[r.ID] = r
	s.updates++
	return nil
}

type refundGateway struct {
	err   error
	calls []gateway.RefundParams
}

func (g *refundGateway) CreateAuthorization(context.Context, gateway.AuthorizationParams) (*gateway.Authorization, error) {
	return nil, errors.New("not used")
}

func (g *refundGateway) GetAuthorization(context.Context, string) (*gateway.Authorization, error) {
	return nil, errors.New("not used")
}

func (g *refundGateway) CreateRefund(_ context.Context, params gateway.RefundParams) (*gateway.Refund, error) {
	g.calls = append(g.calls, params)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Refund{Reference: "re_1", Status: "processed", AmountCents: params.AmountCents}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "gateway: request timed out" }
func (timeoutErr) Timeout() bool { return true }

func paidExcursion(t *testing.T, store *memStore, paidCents int64) *domain.Reservation {
	t.Helper()
	it := domain.PendingIntent{
		Category:   domain.CategoryExcursion,
		ServiceID:  uuid.New(),
		PartySize:  2,
		Holder:     domain.Holder{GuestName: "Noa", GuestEmail: "noa@example.com"},
		Details:    domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"},
		TotalCents: paidCents,
		Currency:   "usd",
	}
	r, err := domain.NewConfirmedReservation("pay_"+uuid.NewString()[:8], it, domain.MethodCard)
	require.NoError(t, err)
	store.reservations[r.ID] = r
	return r
}

func TestCancel_FullRefundByDefault(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)
	actor := uuid.New()

	got, err := o.Cancel(context.Background(), r.ID, actor, "change of plans", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCanceled, got.Status)
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, actor, got.Cancellation.CanceledBy)
	assert.Equal(t, int64(15000), got.Cancellation.RefundCents)
	assert.Equal(t, domain.RefundProcessed, got.Cancellation.RefundStatus)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, r.PaymentRef, gw.calls[0].PaymentRef)
	assert.Equal(t, int64(15000), gw.calls[0].AmountCents)
}

func TestCancel_PartialRefund(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	refund := int64(5000)
	got, err := o.Cancel(context.Background(), r.ID, uuid.New(), "late cancellation fee applies", &refund)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Cancellation.RefundCents)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, int64(5000), gw.calls[0].AmountCents)
}

func TestCancel_RefundExceedsPaid(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	refund := int64(15001)
	_, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", &refund)
	require.True(t, errors.Is(err, domain.ErrRefundExceedsPaid))
	assert.Empty(t, gw.calls)
	assert.Equal(t, 0, store.updates)
}

func TestCancel_GatewayFailureLeavesReservationUntouched(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{err: errors.New("insufficient balance")}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	_, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.True(t, errors.Is(err, domain.ErrRefundGateway))

	got, err := store.GetReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Nil(t, got.Cancellation)
	assert.Equal(t, 0, store.updates)
}

func TestCancel_RetryAfterGatewayFailureSucceeds(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{err: errors.New("provider hiccup")}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	_, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.True(t, errors.Is(err, domain.ErrRefundGateway))

	gw.err = nil
	got, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status)
	assert.Len(t, gw.calls, 2)
}

func TestCancel_TimeoutIsUnknownOutcome(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{err: timeoutErr{}}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	_, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.True(t, errors.Is(err, domain.ErrRefundOutcomeUnknown))
	assert.False(t, errors.Is(err, domain.ErrRefundGateway), "unknown is not a plain failure")

	got, err := store.GetReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, 0, store.updates)
}

func TestCancel_AlreadyCanceled(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())
	r := paidExcursion(t, store, 15000)

	_, err := o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.NoError(t, err)

	_, err = o.Cancel(context.Background(), r.ID, uuid.New(), "", nil)
	require.True(t, errors.Is(err, domain.ErrAlreadyCanceled))
	assert.Len(t, gw.calls, 1, "no second refund on redundant cancel")
}

func TestCancel_UnpaidPendingSkipsGateway(t *testing.T) {
	store := newMemStore()
	gw := &refundGateway{}
	o := cancel.NewOrchestrator(store, gw, nil, nil, observability.NewLogger())

	owner := uuid.New()
	r, err := domain.NewPendingReservation(
		domain.Holder{AccountID: &owner},
		uuid.New(), nil, 2,
		domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"},
		15000,
	)
	require.NoError(t, err)
	store.reservations[r.ID] = r

	got, err := o.Cancel(context.Background(), r.ID, owner, "never paid", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status)
	assert.Empty(t, gw.calls, "nothing paid, nothing to refund")
	assert.Equal(t, domain.RefundPending, got.Cancellation.RefundStatus)
	assert.Equal(t, int64(0), got.Cancellation.RefundCents)
}
