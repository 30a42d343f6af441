package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"paperchat/internal/faults"
	"paperchat/internal/store"
)

// TenantHeader carries the caller's tenant on every API request.
const TenantHeader = "X-Tenant-ID"

// NewRouter creates a chi router with standard middleware (RequestID, Recoverer, Logger, Timeout, RealIP).
func NewRouter(log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(Recoverer(log))
	r.Use(RequestLogger(log))

	return r
}

// WriteJSON writes a JSON response with proper headers.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

// HealthHandler returns a simple health check endpoint.
func HealthHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Warn("healthz write failed", "err", err)
		}
	}
}

// ServeHealth runs a minimal HTTP server exposing only /healthz, for
// worker processes that have no API surface of their own.
func ServeHealth(log *slog.Logger, port int) error {
	r := chi.NewRouter()
	r.Get("/healthz", HealthHandler(log))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), r)
}

// TenantID extracts the tenant from the request header.
func TenantID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantHeader))
}

// RequireTenant wraps handlers that must run inside a tenant namespace.
// Requests without the tenant header are rejected before any handler code runs.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantID(r) == "" {
			http.Error(w, "missing "+TenantHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger is a lightweight HTTP logger that uses slog.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Recoverer logs panics via slog while preserving chi's Recoverer behavior.
func Recoverer(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", "panic", rec, "path", r.URL.Path, "method", r.Method, "request_id", middleware.GetReqID(r.Context()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Fail writes an error response with consistent logging.
func Fail(log *slog.Logger, w http.ResponseWriter, message string, err error, status int) {
	log.Error(message, "err", err)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	http.Error(w, message, status)
}

// FailErr maps an error to its HTTP status and writes it.
func FailErr(log *slog.Logger, w http.ResponseWriter, message string, err error) {
	Fail(log, w, message, err, StatusFromErr(err))
}

// StatusFromErr maps the error taxonomy onto HTTP statuses. Untyped
// errors stay 500 so internal failures never masquerade as client faults.
func StatusFromErr(err error) int {
	switch {
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrInsightNotFound):
		return http.StatusNotFound
	case faults.IsKind(err, faults.KindInput),
		faults.IsKind(err, faults.KindExtraction):
		return http.StatusBadRequest
	case faults.IsKind(err, faults.KindScope):
		return http.StatusForbidden
	case faults.IsKind(err, faults.KindConsistency):
		return http.StatusConflict
	case faults.IsKind(err, faults.KindProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
