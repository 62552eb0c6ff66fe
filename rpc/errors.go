package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lendcore/native/bank"
	"lendcore/native/collateral"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
	"lendcore/native/registry"
	"lendcore/native/vault"
	"lendcore/observability"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// statusForError maps ledger errors onto HTTP status codes. Unknown errors
// are treated as internal so callers never retry on a bug.
func statusForError(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownVault):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, vault.ErrVaultPaused),
		errors.Is(err, vault.ErrVaultInactive):
		return http.StatusServiceUnavailable
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrNoPriceFeed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errMalformedRequest),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrInsufficientLiquidity),
		errors.Is(err, vault.ErrLiquidityCapExceeded),
		errors.Is(err, vault.ErrExceedsMaxBorrow),
		errors.Is(err, vault.ErrPositionLocked),
		errors.Is(err, vault.ErrNoDebtToRepay),
		errors.Is(err, vault.ErrNotLiquidatable),
		errors.Is(err, vault.ErrCrossDisabled),
		errors.Is(err, vault.ErrProtocolCapExceeded),
		errors.Is(err, collateral.ErrNotLiquidatable),
		errors.Is(err, collateral.ErrNoOutstandingDebt),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientApproval):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// observe records request metrics and a structured access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		duration := time.Since(start)
		observability.APIMetrics().Observe(route, ww.Status(), duration)
		s.log.Info("http request",
			"route", route,
			"method", r.Method,
			"status", ww.Status(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}
