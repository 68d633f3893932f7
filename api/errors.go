package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/backoffice/ledger"
)

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(err error) (int, string) {
	switch ledger.KindOf(err) {
	case ledger.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case ledger.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case ledger.ErrConflict:
		return http.StatusConflict, conflictCode(err)
	case ledger.ErrInvalid:
		return http.StatusBadRequest, "invalid"
	}
	return http.StatusInternalServerError, "internal"
}

func conflictCode(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInactiveAccount):
		return "inactive_account"
	case errors.Is(err, ledger.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ledger.ErrNonZeroBalance):
		return "non_zero_balance"
	case errors.Is(err, ledger.ErrDuplicate):
		return "duplicate"
	}
	return "conflict"
}

// writeLedgerError writes err with the status of its kind. Internal errors
// are logged and their details hidden from the client.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: message, Code: code}
	if status == http.StatusInternalServerError {
		h.log.Error(message, "component", "api", "path", r.URL.Path, "error", err)
	} else {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
