package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	coreerrors "supplynet/core/errors"
	"supplynet/gateway/middleware"
	"supplynet/native/common"
)

const maxRequestBody = 1 << 20

var (
	errCallerRequired = errors.New("caller account required")
	errInvalidLimit   = errors.New("limit must be a positive integer")
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if trimmed := strings.TrimSpace(err.Error()); trimmed != "" {
			message = trimmed
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

// statusFor maps registry error kinds onto HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, common.ErrModulePaused) {
		return http.StatusServiceUnavailable
	}
	switch coreerrors.Kind(err) {
	case coreerrors.ErrInvalidInput:
		return http.StatusBadRequest
	case coreerrors.ErrUnauthorized:
		return http.StatusForbidden
	case coreerrors.ErrNotFound:
		return http.StatusNotFound
	case coreerrors.ErrClosed, coreerrors.ErrInvalidState, coreerrors.ErrAlreadyRegistered, coreerrors.ErrUnknownProvider:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger operation failed",
			slog.String("route", r.URL.Path),
			slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		writeJSONError(w, status, errors.New("internal error"))
		return
	}
	writeJSONError(w, status, err)
}

func requireCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errCallerRequired)
		return caller, false
	}
	return caller, true
}

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}
