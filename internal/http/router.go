package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tropicbook/resort-reservations-and-payments/internal/observability"
	"github.com/tropicbook/resort-reservations-and-payments/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	// The webhook authenticates by HMAC signature, not JWT, and must never
	// be rate limited: a dropped delivery delays reconciliation.
	r.Post("/v1/payments/webhook", h.Webhook)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(jwtSecret))
		r.Use(RateLimitMiddleware(rl))

		r.Post("/v1/payments/intents", h.CreatePaymentIntent)

		r.Post("/v1/reservations", h.CreateReservation)
		r.Get("/v1/reservations/{id}", h.GetReservation)
		r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)
		r.Post("/v1/reservations/{id}/payments", h.RecordPayment)
		r.Patch("/v1/reservations/{id}/payments/{entryID}", h.UpdateEntryStatus)

		r.Get("/v1/cart", h.GetCart)
		r.Post("/v1/cart/items", h.AddCartItem)
		r.Delete("/v1/cart/items/{id}", h.RemoveCartItem)
		r.Post("/v1/cart/checkout", h.CheckoutCart)

		r.Get("/v1/admin/failures", h.ListFailures)
	})

	return r
}
