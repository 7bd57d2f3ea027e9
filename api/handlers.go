/*
handlers.go - HTTP handlers for the loyalty ledger

PURPOSE:
  Thin adapter between HTTP and the domain services. Each handler decodes
  and validates the body, takes the caller's identity from the request
  context, calls one service operation and serializes the result.

REQUEST FLOW:
  1. Decode JSON body
  2. Validate structure (validator tags) -> 400 with field details
  3. Call the service (capability checks and business rules live there)
  4. Map errors via respondError, or write the result

SEE ALSO:
  - dto.go: request/response bodies
  - errors.go: error kind -> status mapping
  - server.go: routes
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/loyalty-engine/auth"
	"github.com/warp/loyalty-engine/events"
	"github.com/warp/loyalty-engine/jobs"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/promotions"
	"github.com/warp/loyalty-engine/transactions"
	"github.com/warp/loyalty-engine/users"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the services behind every route.
type Handler struct {
	Users        *users.Service
	Transactions *transactions.Service
	Promotions   *promotions.Service
	Events       *events.Service
	Auditor      *jobs.AuditScheduler
	Tokens       *auth.Issuer

	validate *validator.Validate
}

func NewHandler(store ledger.Store, tokens *auth.Issuer, auditor *jobs.AuditScheduler, pointsPerDollar int64) *Handler {
	return &Handler{
		Users:        users.NewService(store),
		Transactions: transactions.NewService(store, pointsPerDollar),
		Promotions:   promotions.NewService(store),
		Events:       events.NewService(store),
		Auditor:      auditor,
		Tokens:       tokens,
		validate:     validator.New(),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads the body into dst and validates it. It writes the 400
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: validationErrors(err),
		})
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ledger.ErrInvalidInput, name, raw)
	}
	return id, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ADMIN
// =============================================================================

// RunAudit recomputes every balance now and returns the report.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if err := actorFrom(r).Require(ledger.CapRunAudit); err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.Auditor.RunOnce(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(report))
}

// LastAudit returns the most recent report, scheduled or on demand.
func (h *Handler) LastAudit(w http.ResponseWriter, r *http.Request) {
	if err := actorFrom(r).Require(ledger.CapRunAudit); err != nil {
		respondError(w, r, err)
		return
	}
	report := h.Auditor.Last()
	if report == nil {
		respondError(w, r, ledger.NewNotFound("audit run", "last"))
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(report))
}
