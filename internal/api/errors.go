package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/intercom-access/internal/access"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeInternal          = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeInvalidCredential = "invalid_credential"
	ErrCodeMasterPinRequired = "master_pin_required"
	ErrCodeInvalidMasterPin  = "invalid_master_pin"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAccessError maps a core error to its HTTP status. Anything that is
// not an *access.Error is logged and hidden behind a 500.
func (s *Server) writeAccessError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *access.Error
	if !errors.As(err, &ae) {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
		return
	}

	msg := ae.Description()
	switch ae.Kind {
	case access.KindNotFound:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, msg)
	case access.KindNotAllowed:
		writeError(w, http.StatusForbidden, ErrCodeForbidden, msg)
	case access.KindMasterPinRequired:
		writeError(w, http.StatusForbidden, ErrCodeMasterPinRequired, msg)
	case access.KindInvalidMasterPin:
		writeError(w, http.StatusForbidden, ErrCodeInvalidMasterPin, msg)
	case access.KindValidation:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, msg)
	case access.KindInvalidCredential:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidCredential, msg)
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
