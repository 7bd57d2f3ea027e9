package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/users"
)

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges a utorid and password for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Users.Authenticate(r.Context(), req.Utorid, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	token, expiresAt, err := h.Tokens.Issue(u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Users.Register(r.Context(), actorFrom(r), users.RegisterInput{
		Utorid:   req.Utorid,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), actorFrom(r).Utorid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateUser sets verification, suspicion or role of the utorid in the path.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := users.UpdateInput{Verified: req.Verified, Suspicious: req.Suspicious}
	if req.Role != nil {
		role := ledger.Role(*req.Role)
		in.Role = &role
	}
	u, err := h.Users.Update(r.Context(), actorFrom(r), chi.URLParam(r, "user"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// AvailablePromotions lists active one-time promotions the caller has not used.
func (h *Handler) AvailablePromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Promotions.AvailableOneTime(r.Context(), actorFrom(r).Utorid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promos)
}
