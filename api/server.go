/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    unique id per request, echoed in logs
  2. RealIP:       client address from proxy headers
  3. requestLogger: logrus line + Prometheus counters per request
  4. Recoverer:    panic recovery (500 instead of crash)
  5. CORS:         cross-origin requests for the frontend
  6. RateLimiter:  per-client token bucket
  7. authenticate: bearer token -> ledger.Actor (all /api routes but login)

ROUTE GROUPS:
  /api/auth/*          token issuance
  /api/users/*         registration, self service, flags
  /api/transactions/*  purchases, adjustments, processing, suspicion
  /api/promotions/*    promotion administration
  /api/events/*        events, guests, point awards
  /api/admin/*         ledger audit
  /metrics             Prometheus
  /healthz             liveness

SEE ALSO:
  - handlers.go: handler implementations
  - middleware.go: logging, rate limiting, identity
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tune the router. A nil Limiter disables rate limiting.
type Options struct {
	CORSOrigins []string
	Limiter     *RateLimiter
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/tokens", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(h.Tokens, h.Users))

			// User routes
			r.Route("/users", func(r chi.Router) {
				r.Post("/", h.RegisterUser)
				r.Get("/me", h.GetMe)
				r.Get("/me/transactions", h.ListOwnTransactions)
				r.Post("/me/transactions", h.CreateRedemption)
				r.Get("/me/promotions", h.AvailablePromotions)
				r.Patch("/{user}", h.UpdateUser)
				r.Post("/{user}/transactions", h.CreateTransfer)
			})

			// Transaction routes
			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.CreateTransaction)
				r.Get("/", h.ListTransactions)
				r.Get("/{id}", h.GetTransaction)
				r.Patch("/{id}/processed", h.ProcessRedemption)
				r.Patch("/{id}/suspicious", h.SetSuspicious)
			})

			// Promotion routes
			r.Route("/promotions", func(r chi.Router) {
				r.Post("/", h.CreatePromotion)
				r.Get("/{id}", h.GetPromotion)
				r.Patch("/{id}", h.UpdatePromotion)
				r.Delete("/{id}", h.DeletePromotion)
			})

			// Event routes
			r.Route("/events", func(r chi.Router) {
				r.Post("/", h.CreateEvent)
				r.Get("/{id}", h.GetEvent)
				r.Patch("/{id}/points", h.UpdateEventPoints)
				r.Patch("/{id}/published", h.PublishEvent)
				r.Post("/{id}/organizers", h.AddOrganizer)
				r.Post("/{id}/guests", h.AddGuest)
				r.Post("/{id}/guests/me", h.RSVP)
				r.Delete("/{id}/guests/me", h.CancelRSVP)
				r.Delete("/{id}/guests/{userId}", h.RemoveGuest)
				r.Patch("/{id}/guests/{userId}/attended", h.ConfirmAttendance)
				r.Post("/{id}/transactions", h.AwardPoints)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Get("/audit", h.RunAudit)
				r.Get("/audit/last", h.LastAudit)
			})
		})
	})

	return r
}
