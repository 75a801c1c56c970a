package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tropicbook/resort-reservations-and-payments/internal/adapters/crdb"
	mongoadapter "github.com/tropicbook/resort-reservations-and-payments/internal/adapters/mongo"
	redisadapter "github.com/tropicbook/resort-reservations-and-payments/internal/adapters/redis"
	"github.com/tropicbook/resort-reservations-and-payments/internal/cancel"
	"github.com/tropicbook/resort-reservations-and-payments/internal/checkout"
	"github.com/tropicbook/resort-reservations-and-payments/internal/config"
	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
	"github.com/tropicbook/resort-reservations-and-payments/internal/gateway"
	"github.com/tropicbook/resort-reservations-and-payments/internal/idempotency"
	"github.com/tropicbook/resort-reservations-and-payments/internal/intent"
	"github.com/tropicbook/resort-reservations-and-payments/internal/ledger"
	"github.com/tropicbook/resort-reservations-and-payments/internal/materialize"
	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/webhook"
)

const maxWebhookBody = 1 << 20

type Handlers struct {
	cfg      *config.Config
	repo     *crdb.Repository
	redis    *redisadapter.Cache
	idemp    *idempotency.Idempotency
	catalog  *mongoadapter.CatalogRepository
	gw       gateway.Client
	verifier *webhook.Verifier
	mat      *materialize.Materializer
	checkout *checkout.Orchestrator
	ledger   *ledger.Ledger
	cancel   *cancel.Orchestrator
	logger   observability.Logger
}

func NewHandlers(
	cfg *config.Config,
	repo *crdb.Repository,
	redis *redisadapter.Cache,
	idemp *idempotency.Idempotency,
	catalog *mongoadapter.CatalogRepository,
	gw gateway.Client,
	verifier *webhook.Verifier,
	mat *materialize.Materializer,
	co *checkout.Orchestrator,
	lg *ledger.Ledger,
	cn *cancel.Orchestrator,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		repo:     repo,
		redis:    redis,
		idemp:    idemp,
		catalog:  catalog,
		gw:       gw,
		verifier: verifier,
		mat:      mat,
		checkout: co,
		ledger:   lg,
		cancel:   cn,
		logger:   logger,
	}
}

// intentRequest is the flat JSON shape clients send; it is folded into the
// category-appropriate details variant before anything touches the gateway.
type intentRequest struct {
	Category   string   `json:"category"`
	ServiceID  string   `json:"service_id"`
	OptionID   string   `json:"option_id,omitempty"`
	PartySize  int      `json:"party_size"`
	GuestName  string   `json:"guest_name,omitempty"`
	GuestEmail string   `json:"guest_email,omitempty"`
	Date       string   `json:"date,omitempty"`
	Time       string   `json:"time,omitempty"`
	SlotStart  string   `json:"slot_start,omitempty"`
	SlotEnd    string   `json:"slot_end,omitempty"`
	CheckIn    string   `json:"check_in,omitempty"`
	CheckOut   string   `json:"check_out,omitempty"`
	RoomID     string   `json:"room_id,omitempty"`
	Pickup     string   `json:"pickup,omitempty"`
	Dropoff    string   `json:"dropoff,omitempty"`
	Treatment  string   `json:"treatment,omitempty"`
	Partners   []string `json:"participants,omitempty"`
}

func (req *intentRequest) toIntent(accountID *uuid.UUID, totalCents int64, currency string) (domain.PendingIntent, error) {
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		return domain.PendingIntent{}, domain.ErrInvalidInput
	}

	it := domain.PendingIntent{
		Category:   domain.Category(req.Category),
		ServiceID:  serviceID,
		PartySize:  req.PartySize,
		TotalCents: totalCents,
		Currency:   currency,
		Holder:     domain.Holder{AccountID: accountID, GuestName: req.GuestName, GuestEmail: req.GuestEmail},
	}
	if req.OptionID != "" {
		id, err := uuid.Parse(req.OptionID)
		if err != nil {
			return domain.PendingIntent{}, domain.ErrInvalidInput
		}
		it.OptionID = &id
	}
	for _, p := range req.Partners {
		id, err := uuid.Parse(p)
		if err != nil {
			return domain.PendingIntent{}, domain.ErrInvalidInput
		}
		it.Participants = append(it.Participants, id)
	}

	switch it.Category {
	case domain.CategoryExcursion:
		it.Details = domain.ExcursionDetails{Date: req.Date, Time: req.Time}
	case domain.CategoryLodging:
		d := domain.LodgingDetails{CheckIn: req.CheckIn, CheckOut: req.CheckOut}
		if req.RoomID != "" {
			id, err := uuid.Parse(req.RoomID)
			if err != nil {
				return domain.PendingIntent{}, domain.ErrInvalidInput
			}
			d.RoomID = &id
		}
		it.Details = d
	case domain.CategoryDining:
		it.Details = domain.DiningDetails{Date: req.Date, Slot: domain.TimeSlot{Start: req.SlotStart, End: req.SlotEnd}}
	case domain.CategoryTransport:
		it.Details = domain.TransportDetails{Date: req.Date, Time: req.Time, Pickup: req.Pickup, Dropoff: req.Dropoff}
	case domain.CategorySpa:
		it.Details = domain.SpaDetails{Date: req.Date, Slot: domain.TimeSlot{Start: req.SlotStart, End: req.SlotEnd}, Treatment: req.Treatment}
	default:
		return domain.PendingIntent{}, domain.ErrInvalidInput
	}
	return it, nil
}

// CreatePaymentIntent encodes the pending reservation into the
// authorization's metadata. The reservation itself is only written when the
// gateway's success webhook arrives.
func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replayIdempotent(w, r, key) {
		return
	}

	var req struct {
		AmountCents int64         `json:"amount_cents"`
		Currency    string        `json:"currency"`
		Intent      intentRequest `json:"intent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	it, err := req.Intent.toIntent(accountIDFromContext(r.Context()), req.AmountCents, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid intent")
		return
	}

	if _, err := h.catalog.GetService(r.Context(), it.Category, it.ServiceID); err != nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	slots, err := intent.Encode(it, intent.DefaultKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "intent not encodable")
		return
	}

	auth, err := h.gw.CreateAuthorization(r.Context(), gateway.AuthorizationParams{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: "reservation " + string(it.Category),
		Metadata:    slots,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	h.respond(w, r, key, http.StatusCreated, map[string]interface{}{
		"reference":     auth.Reference,
		"client_secret": auth.ClientSecret,
	})
}

// Webhook receives signed gateway events. The raw body is read before any
// parsing because the signature covers the exact bytes. Verified events are
// always acked with 200, even when processing failed internally — retrying
// cannot fix a malformed intent, and the failure is already queued for
// operators.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := h.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		observability.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	outcome := "ok"
	if ev.Succeeded() && checkout.IsBatch(ev) {
		if _, err := h.checkout.HandleSuccess(r.Context(), ev); err != nil {
			outcome = "failed"
		}
	} else {
		if _, err := h.mat.Materialize(r.Context(), ev); err != nil {
			outcome = "failed"
		}
	}
	observability.WebhookEventsTotal.WithLabelValues(ev.Type, outcome).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

// CreateReservation is the plain creation path for non-payment-gated flows:
// the reservation starts pending and is confirmed by the split-payment
// ledger once fully paid.
func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replayIdempotent(w, r, key) {
		return
	}

	var req struct {
		TotalCents int64         `json:"total_cents"`
		Intent     intentRequest `json:"intent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := req.Intent.toIntent(accountIDFromContext(r.Context()), req.TotalCents, "usd")
	if err != nil || it.Validate() != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation")
		return
	}
	if _, err := h.catalog.GetService(r.Context(), it.Category, it.ServiceID); err != nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	rsv, err := domain.NewPendingReservation(it.Holder, it.ServiceID, it.OptionID, it.PartySize, it.Details, it.TotalCents)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation")
		return
	}
	if err := h.repo.CreateReservation(r.Context(), rsv); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respond(w, r, key, http.StatusCreated, reservationResponse(rsv))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rsv, err := h.repo.GetReservation(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reservationResponse(rsv))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := accountIDFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Reason      string `json:"reason"`
		RefundCents *int64 `json:"refund_cents,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rsv, err := h.cancel.Cancel(r.Context(), id, *actor, req.Reason, req.RefundCents)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	case errors.Is(err, domain.ErrAlreadyCanceled):
		writeError(w, http.StatusConflict, "reservation already canceled")
		return
	case errors.Is(err, domain.ErrRefundExceedsPaid):
		writeError(w, http.StatusBadRequest, "refund exceeds amount paid")
		return
	case errors.Is(err, domain.ErrRefundOutcomeUnknown):
		writeError(w, http.StatusBadGateway, "refund outcome unknown, do not retry; contact support with reference "+id.String())
		return
	case errors.Is(err, domain.ErrRefundGateway):
		writeError(w, http.StatusBadGateway, "refund failed, reservation unchanged")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reservationResponse(rsv))
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		AmountCents int64  `json:"amount_cents"`
		Method      string `json:"method"`
		Pending     bool   `json:"pending,omitempty"`
		GuestName   string `json:"guest_name,omitempty"`
		GuestEmail  string `json:"guest_email,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	participant := domain.Holder{
		AccountID:  accountIDFromContext(r.Context()),
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
	}

	var entry *domain.LedgerEntry
	if req.Pending {
		entry, err = h.ledger.AddPendingEntry(r.Context(), id, participant, req.AmountCents, domain.PaymentMethod(req.Method))
	} else {
		entry, err = h.ledger.RecordPayment(r.Context(), id, participant, req.AmountCents, domain.PaymentMethod(req.Method))
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	case errors.Is(err, domain.ErrOverpayment):
		writeError(w, http.StatusConflict, "payment exceeds remaining balance")
		return
	case errors.Is(err, domain.ErrAlreadyCanceled):
		writeError(w, http.StatusConflict, "reservation is canceled")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entry_id": entry.ID,
		"status":   entry.Status,
	})
}

func (h *Handlers) UpdateEntryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rsv, err := h.ledger.UpdateEntryStatus(r.Context(), id, entryID, domain.EntryStatus(req.Status))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
		return
	case errors.Is(err, domain.ErrOverpayment):
		writeError(w, http.StatusConflict, "entry would exceed total")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reservationResponse(rsv))
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	owner := accountIDFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	cart, err := h.repo.GetOrCreateCart(r.Context(), *owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cartResponse(cart))
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	owner := accountIDFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		PriceCents int64         `json:"price_cents"`
		Item       intentRequest `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := req.Item.toIntent(owner, req.PriceCents, "usd")
	if err != nil || it.Validate() != nil {
		writeError(w, http.StatusBadRequest, "invalid item")
		return
	}
	if _, err := h.catalog.GetService(r.Context(), it.Category, it.ServiceID); err != nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	cart, err := h.repo.GetOrCreateCart(r.Context(), *owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	item := domain.CartItem{
		ID:         uuid.New(),
		Category:   it.Category,
		ServiceID:  it.ServiceID,
		OptionID:   it.OptionID,
		PartySize:  it.PartySize,
		Details:    it.Details,
		PriceCents: req.PriceCents,
		AddedAt:    time.Now().UTC(),
	}
	if err := h.repo.AddCartItem(r.Context(), cart.ID, item); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"item_id": item.ID})
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	owner := accountIDFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	cart, err := h.repo.GetOrCreateCart(r.Context(), *owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.repo.RemoveCartItem(r.Context(), cart.ID, itemID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckoutCart authorizes a single payment for the whole cart. The cart's
// items ride along as per-item intents; the webhook's success event turns
// them into reservations all-or-nothing.
func (h *Handlers) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	owner := accountIDFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	cart, err := h.repo.GetOrCreateCart(r.Context(), *owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(cart.Items) == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	ok, err := h.redis.SetCheckoutLock(r.Context(), cart.ID.String(), 30*time.Second)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "checkout already in progress")
		return
	}
	defer h.redis.ReleaseCheckoutLock(r.Context(), cart.ID.String())

	holder := domain.Holder{AccountID: owner}
	auth, err := h.checkout.Authorize(r.Context(), cart, holder, req.Currency)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "cart not checkoutable")
			return
		}
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reference":     auth.Reference,
		"client_secret": auth.ClientSecret,
		"amount_cents":  auth.AmountCents,
	})
}

// ListFailures exposes the operator reconciliation queue.
func (h *Handlers) ListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.repo.ListFailures(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"failures": failures})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		h.logger.Warn("idempotency lookup failed: ", err)
		return false
	}
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, key string, status int, body interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	if key != "" {
		if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data}); err != nil {
			h.logger.Warn("idempotency store failed: ", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func reservationResponse(rsv *domain.Reservation) map[string]interface{} {
	resp := map[string]interface{}{
		"id":              rsv.ID,
		"category":        rsv.Category,
		"service_id":      rsv.ServiceID,
		"status":          rsv.Status,
		"party_size":      rsv.PartySize,
		"details":         rsv.Details,
		"total_cents":     rsv.Payment.TotalCents,
		"paid_cents":      rsv.Payment.PaidCents,
		"remaining_cents": rsv.Payment.RemainingCents,
		"entries":         rsv.Payment.Entries,
	}
	if rsv.PaymentRef != "" {
		resp["payment_ref"] = rsv.PaymentRef
	}
	if rsv.Cancellation != nil {
		resp["cancellation"] = rsv.Cancellation
	}
	return resp
}

func cartResponse(cart *domain.Cart) map[string]interface{} {
	return map[string]interface{}{
		"id":          cart.ID,
		"items":       cart.Items,
		"total_cents": cart.TotalCents(),
	}
}
