package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/transactions"
)

// =============================================================================
// CREATE
// =============================================================================

// CreateTransaction records a purchase or an adjustment depending on type.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)

	switch ledger.Kind(req.Type) {
	case ledger.KindPurchase:
		if req.Spent == nil {
			respondError(w, r, fmt.Errorf("%w: spent is required", ledger.ErrInvalidAmount))
			return
		}
		result, err := h.Transactions.CreatePurchase(r.Context(), actor, transactions.PurchaseInput{
			Utorid:       req.Utorid,
			Spent:        *req.Spent,
			PromotionIDs: req.PromotionIDs,
			Remark:       req.Remark,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, PurchaseResponse{Transaction: result.Transaction, Credited: result.Credited})

	case ledger.KindAdjustment:
		if req.Amount == nil {
			respondError(w, r, fmt.Errorf("%w: amount is required", ledger.ErrInvalidAmount))
			return
		}
		if req.RelatedID == nil {
			respondError(w, r, fmt.Errorf("%w: relatedId is required", ledger.ErrInvalidInput))
			return
		}
		row, err := h.Transactions.CreateAdjustment(r.Context(), actor, transactions.AdjustmentInput{
			Utorid:    req.Utorid,
			Amount:    *req.Amount,
			RelatedID: *req.RelatedID,
			Remark:    req.Remark,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, row)
	}
}

// CreateRedemption records the caller's request to spend points.
func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	var req RedemptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.Transactions.CreateRedemption(r.Context(), actorFrom(r), req.Amount, req.Remark)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// CreateTransfer sends points from the caller to the user id in the path.
// The response is the sender's row.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	recipientID, err := pathID(r, "user")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Transactions.CreateTransfer(r.Context(), actorFrom(r), transactions.TransferInput{
		RecipientID: recipientID,
		Amount:      req.Amount,
		Remark:      req.Remark,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Sent)
}

// =============================================================================
// STATE CHANGES
// =============================================================================

func (h *Handler) ProcessRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req ProcessedRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !*req.Processed {
		respondError(w, r, fmt.Errorf("%w: processed can only be set to true", ledger.ErrInvalidInput))
		return
	}
	row, err := h.Transactions.ProcessRedemption(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) SetSuspicious(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req SuspiciousRequest
	if !h.decode(w, r, &req) {
		return
	}
	row, err := h.Transactions.SetSuspicious(r.Context(), actorFrom(r), id, *req.Suspicious)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// =============================================================================
// QUERIES
// =============================================================================

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	row, err := h.Transactions.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ListTransactions returns a filtered page of every member's rows.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.Transactions.List(r.Context(), actorFrom(r), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListOwnTransactions returns a filtered page of the caller's rows.
func (h *Handler) ListOwnTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.Transactions.ListOwn(r.Context(), actorFrom(r), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseFilter(q url.Values) (ledger.TransactionFilter, error) {
	f := ledger.TransactionFilter{
		Name:      q.Get("name"),
		CreatedBy: q.Get("createdBy"),
		Kind:      ledger.Kind(q.Get("type")),
		Operator:  q.Get("operator"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return f, fmt.Errorf("%w: unknown type %q", ledger.ErrInvalidInput, f.Kind)
	}

	var err error
	if v := q.Get("suspicious"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return f, fmt.Errorf("%w: suspicious must be true or false", ledger.ErrInvalidInput)
		}
		f.Suspicious = &b
	}
	if f.PromotionID, err = queryInt(q, "promotionId"); err != nil {
		return f, err
	}
	if v := q.Get("relatedId"); v != "" {
		id, err := queryInt(q, "relatedId")
		if err != nil {
			return f, err
		}
		f.RelatedID = &id
	}
	if v := q.Get("amount"); v != "" {
		amount, err := queryInt(q, "amount")
		if err != nil {
			return f, err
		}
		f.Amount = &amount
	}
	page, err := queryInt(q, "page")
	if err != nil {
		return f, err
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		return f, err
	}
	f.Page, f.Limit = int(page), int(limit)
	return f, nil
}

// queryInt parses an optional integer parameter; absent yields zero.
func queryInt(q url.Values, name string) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ledger.ErrInvalidInput, name)
	}
	return n, nil
}
