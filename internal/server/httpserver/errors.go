package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/onepass/internal/common"
)

// statusFor maps a service error to an HTTP status and a client-facing
// message. Unknown errors become 500 without leaking their text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity, validationDetail(err)
	case errors.Is(err, common.ErrDuplicateEmail):
		return http.StatusConflict, "Account with this email already exists!"
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "Invalid email or password!"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password!"
	case errors.Is(err, common.ErrUnverifiedAccount):
		return http.StatusUnauthorized, "Email has not been verified yet."
	case errors.Is(err, common.ErrExpiredToken):
		return http.StatusUnauthorized, "Signature has expired!"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token!"
	case errors.Is(err, common.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable, please try again later."
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func validationDetail(err error) string {
	prefix := common.ErrValidation.Error() + ": "
	if msg := err.Error(); strings.HasPrefix(msg, prefix) {
		return msg[len(prefix):]
	}
	return err.Error()
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "route", routePattern(r), "error", err)
	}
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
