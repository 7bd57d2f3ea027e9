package api

import (
	"net/http"

	"github.com/warp/loyalty-engine/events"
)

// =============================================================================
// EVENTS
// =============================================================================

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Events.Create(r.Context(), actorFrom(r), events.CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Capacity:     req.Capacity,
		Points:       req.Points,
		Published:    req.Published,
		OrganizerIDs: req.OrganizerIDs,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(e))
}

// GetEvent returns the event with its pool summary.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	e, err := h.Events.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) UpdateEventPoints(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req UpdateEventPointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Events.UpdatePoints(r.Context(), actorFrom(r), id, *req.Points)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req PublishEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Events.SetPublished(r.Context(), actorFrom(r), id, *req.Published)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) AddOrganizer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req UtoridRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Events.AddOrganizer(r.Context(), actorFrom(r), id, req.Utorid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(e))
}

// =============================================================================
// GUESTS
// =============================================================================

// AddGuest lets an organizer or manager put someone on the guest list.
func (h *Handler) AddGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req UtoridRequest
	if !h.decode(w, r, &req) {
		return
	}
	guest, err := h.Events.AddGuest(r.Context(), actorFrom(r), id, req.Utorid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

// RSVP adds the caller to the guest list.
func (h *Handler) RSVP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	actor := actorFrom(r)
	guest, err := h.Events.AddGuest(r.Context(), actor, id, actor.Utorid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

// CancelRSVP removes the caller from the guest list.
func (h *Handler) CancelRSVP(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	actor := actorFrom(r)
	if err := h.Events.RemoveGuest(r.Context(), actor, id, actor.ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Events.RemoveGuest(r.Context(), actorFrom(r), id, userID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ConfirmAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Events.ConfirmAttendance(r.Context(), actorFrom(r), id, userID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AWARDS
// =============================================================================

// AwardPoints pays one guest or every guest from the event pool.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req AwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	rows, err := h.Events.AwardPoints(r.Context(), actorFrom(r), id, events.AwardInput{
		Utorid: req.Utorid,
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.Utorid != "" && len(rows) == 1 {
		writeJSON(w, http.StatusCreated, rows[0])
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}
