/*
errors.go - Error to HTTP status mapping

PURPOSE:
  Translates ledger error kinds into status codes and a JSON body of the
  form {"error": message, "details": detail}.

STATUS CODES:
  - 400: invalid amounts or input, insufficient points, promotion rules,
         bad references, non-guests, already-processed redemptions
  - 401: missing or bad credentials
  - 403: missing capability or verification
  - 404: unknown user, transaction, promotion or event
  - 409: duplicate utorid, already a guest
  - 410: event ended or full
  - 500: anything else

SEE ALSO:
  - ledger/errors.go: the error taxonomy
*/
package api

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrCapacityExceeded), errors.Is(err, ledger.ErrEventEnded):
		return http.StatusGone
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are
// logged and their text is not echoed to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestID(r),
		}).WithError(err).Error("request failed")
		writeError(w, status, "internal error", nil)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
