package checkout_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicbook/resort-reservations-and-payments/internal/checkout"
	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	"github.com/tropicbook/resort-reservations-and-payments/internal/materialize"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/webhook"
)

// batchStore backs both the materializer and the orchestrator, mimicking the
// unique payment_ref index and cart clearing.
type batchStore struct {
	mu       sync.Mutex
	byRef    map[string]*domain.Reservation
	byID     map[uuid.UUID]string
	cleared  []uuid.UUID
	failures []domain.MaterializationFailure
}

func newBatchStore() *batchStore {
	return &batchStore{byRef: make(map[string]*domain.Reservation), byID: make(map[uuid.UUID]string)}
}

func (s *batchStore) GetReservationByPaymentRef(_ context.Context, ref string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (s *batchStore) CreateReservation(_ context.Context, r *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRef[r.PaymentRef]; exists {
		return domain.ErrDuplicatePayment
	}
	s.byRef[r.PaymentRef] = r
	s.byID[r.ID] = r.PaymentRef
	return nil
}

func (s *batchStore) DeleteReservation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byRef, ref)
	delete(s.byID, id)
	return nil
}

func (s *batchStore) ClearCart(_ context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, cartID)
	return nil
}

func (s *batchStore) RecordFailure(_ context.Context, f domain.MaterializationFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

func (s *batchStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRef)
}

type fakeGateway struct {
	lastParams gateway.AuthorizationParams
}

func (g *fakeGateway) CreateAuthorization(_ context.Context, params gateway.AuthorizationParams) (*gateway.Authorization, error) {
	g.lastParams = params
	return &gateway.Authorization{
		Reference:    "pay_batch",
		ClientSecret: "cs_test",
		Status:       "requires_payment",
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}, nil
}

func (g *fakeGateway) GetAuthorization(_ context.Context, ref string) (*gateway.Authorization, error) {
	return &gateway.Authorization{Reference: ref}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, params gateway.RefundParams) (*gateway.Refund, error) {
	return &gateway.Refund{Reference: "re_test", Status: "processed", AmountCents: params.AmountCents}, nil
}

func threeItemCart() *domain.Cart {
	return &domain.Cart{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Items: []domain.CartItem{
			{ID: uuid.New(), Category: domain.CategoryExcursion, ServiceID: uuid.New(), PartySize: 2,
				Details: domain.ExcursionDetails{Date: "2026-09-14", Time: "09:30"}, PriceCents: 15000},
			{ID: uuid.New(), Category: domain.CategoryDining, ServiceID: uuid.New(), PartySize: 2,
				Details: domain.DiningDetails{Date: "2026-09-15", Slot: domain.TimeSlot{Start: "19:00"}}, PriceCents: 8000},
			{ID: uuid.New(), Category: domain.CategorySpa, ServiceID: uuid.New(), PartySize: 1,
				Details: domain.SpaDetails{Date: "2026-09-16", Slot: domain.TimeSlot{Start: "11:00"}, Treatment: "lomi lomi"}, PriceCents: 12000},
		},
	}
}

func setup() (*batchStore, *fakeGateway, *checkout.Orchestrator) {
	store := newBatchStore()
	gw := &fakeGateway{}
	logger := observability.NewLogger()
	mat := materialize.NewMaterializer(store, nil, nil, logger)
	return store, gw, checkout.NewOrchestrator(store, mat, gw, logger)
}

func TestAuthorize_SingleAuthorizationForCart(t *testing.T) {
	_, gw, o := setup()
	cart := threeItemCart()
	holder := domain.Holder{AccountID: &cart.OwnerID}

	auth, err := o.Authorize(context.Background(), cart, holder, "usd")
	require.NoError(t, err)

	assert.Equal(t, int64(35000), auth.AmountCents)
	assert.Equal(t, cart.ID.String(), gw.lastParams.Metadata["cart_id"])
	assert.Equal(t, "3", gw.lastParams.Metadata["items"])
	assert.Contains(t, gw.lastParams.Metadata, "item_0")
	assert.Contains(t, gw.lastParams.Metadata, "item_1")
	assert.Contains(t, gw.lastParams.Metadata, "item_2")
}

func TestAuthorize_EmptyCart(t *testing.T) {
	_, _, o := setup()
	cart := &domain.Cart{ID: uuid.New(), OwnerID: uuid.New()}

	_, err := o.Authorize(context.Background(), cart, domain.Holder{AccountID: &cart.OwnerID}, "usd")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func batchEvent(t *testing.T, o *checkout.Orchestrator, gw *fakeGateway, cart *domain.Cart) webhook.Event {
	t.Helper()
	holder := domain.Holder{AccountID: &cart.OwnerID}
	auth, err := o.Authorize(context.Background(), cart, holder, "usd")
	require.NoError(t, err)
	return webhook.Event{
		ID:          "evt_batch",
		Type:        webhook.EventPaymentSucceeded,
		Reference:   auth.Reference,
		AmountCents: auth.AmountCents,
		Currency:    "usd",
		Metadata:    auth.Metadata,
	}
}

func TestHandleSuccess_MaterializesAllItems(t *testing.T) {
	store, gw, o := setup()
	cart := threeItemCart()
	ev := batchEvent(t, o, gw, cart)
	require.True(t, checkout.IsBatch(ev))

	created, err := o.HandleSuccess(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, created, 3)

	for i, r := range created {
		assert.Equal(t, checkout.SubRef(ev.Reference, i), r.PaymentRef)
		assert.Equal(t, domain.StatusConfirmed, r.Status)
		assert.Equal(t, int64(0), r.Payment.RemainingCents)
	}
	assert.Equal(t, []uuid.UUID{cart.ID}, store.cleared)
}

func TestHandleSuccess_MalformedItemRollsBackWholeBatch(t *testing.T) {
	store, gw, o := setup()
	cart := threeItemCart()
	ev := batchEvent(t, o, gw, cart)

	// corrupt the middle item; items 0 and 1 materialize first
	delete(ev.Metadata, "item_2")
	ev.Metadata["item_2"] = "{broken"

	created, err := o.HandleSuccess(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedIntent))
	assert.Nil(t, created)

	assert.Equal(t, 0, store.count(), "partial batch must not survive")
	assert.Empty(t, store.cleared, "cart must stay intact for retry")
	require.Len(t, store.failures, 1)
	assert.Equal(t, "batch_rollback", store.failures[0].Reason)
	assert.Equal(t, ev.Reference, store.failures[0].PaymentRef)
}

func TestHandleSuccess_AmountMismatchRollsBack(t *testing.T) {
	store, gw, o := setup()
	cart := threeItemCart()
	ev := batchEvent(t, o, gw, cart)
	ev.AmountCents = 34999

	_, err := o.HandleSuccess(context.Background(), ev)
	require.True(t, errors.Is(err, domain.ErrAmountMismatch))
	assert.Equal(t, 0, store.count())
	assert.Empty(t, store.cleared)
}

func TestHandleSuccess_RedeliveryReturnsSameReservations(t *testing.T) {
	store, gw, o := setup()
	cart := threeItemCart()
	ev := batchEvent(t, o, gw, cart)

	first, err := o.HandleSuccess(context.Background(), ev)
	require.NoError(t, err)
	second, err := o.HandleSuccess(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, 3, store.count())
	assert.Equal(t, []uuid.UUID{cart.ID}, store.cleared,
		"redelivery must not clear items staged after the first success")
}

func TestHandleSuccess_BadBatchMarkers(t *testing.T) {
	store, gw, o := setup()
	cart := threeItemCart()
	ev := batchEvent(t, o, gw, cart)
	ev.Metadata["items"] = "zero"

	_, err := o.HandleSuccess(context.Background(), ev)
	require.True(t, errors.Is(err, domain.ErrMalformedIntent))
	assert.Equal(t, 0, store.count())
}
