// Package api exposes the reservation engine over HTTP for storefront and
// admin clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"slotnik/internal/config"
	"slotnik/internal/domain"
	"slotnik/internal/export"
	"slotnik/internal/metrics"

	"github.com/rs/zerolog"
)

// HTTPServer wires the engine services to the HTTP surface.
type HTTPServer struct {
	cfg          config.APIConfig
	holds        domain.HoldService
	bookings     domain.BookingService
	availability domain.AvailabilityService
	store        domain.Store
	exporter     *export.Exporter
	server       *http.Server
	auth         *HTTPAuth
	logger       *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	holds domain.HoldService,
	bookings domain.BookingService,
	availability domain.AvailabilityService,
	store domain.Store,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:          cfg,
		holds:        holds,
		bookings:     bookings,
		availability: availability,
		store:        store,
		exporter:     exporter,
		logger:       logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	return srv
}

// Handler builds the full middleware chain. Exposed separately so tests can
// drive it through httptest without binding a port.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/holds", s.handleHolds)
	mux.HandleFunc("/api/v1/holds/", s.handleHoldByID)
	mux.HandleFunc("/api/v1/bookings", s.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", s.handleBookingByID)
	mux.HandleFunc("/api/v1/availability", s.handleAvailability)
	mux.HandleFunc("/api/v1/services", s.handleServices)
	mux.HandleFunc("/api/v1/admin/windows", s.handleWindows)
	mux.HandleFunc("/api/v1/admin/windows/", s.handleWindowByID)
	mux.HandleFunc("/api/v1/admin/blocks", s.handleBlocks)
	mux.HandleFunc("/api/v1/admin/blocks/", s.handleBlockByID)
	mux.HandleFunc("/api/v1/admin/export", s.handleExport)
	mux.HandleFunc("/healthz", s.handleHealthz)

	return s.loggingMiddleware(s.auth.Wrap(mux))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

// Stable error codes. Clients switch on code, not on message text.
const (
	codeValidation          = "VALIDATION_ERROR"
	codeOutsideAvailability = "OUTSIDE_AVAILABILITY"
	codeBlocked             = "BLOCKED"
	codeCapacityExceeded    = "CAPACITY_EXCEEDED"
	codeSlotConflict        = "SLOT_CONFLICT"
	codeNotFound            = "NOT_FOUND"
	codeConflict            = "CONFLICT"
	codeRateLimited         = "RATE_LIMITED"
	codeRetryable           = "RETRYABLE"
	codeInternal            = "INTERNAL"
)

// writeDomainError translates engine errors into HTTP statuses and codes.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, domain.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, codeOutsideAvailability, err.Error())
	case errors.Is(err, domain.ErrBlocked):
		writeError(w, http.StatusConflict, codeBlocked, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, codeCapacityExceeded, err.Error())
	case errors.Is(err, domain.ErrSlotConflict):
		writeError(w, http.StatusConflict, codeSlotConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldNotOwned),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrWindowOverlap),
		errors.Is(err, domain.ErrBlockOverlap):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited, err.Error())
	case domain.Retryable(err):
		writeError(w, http.StatusServiceUnavailable, codeRetryable, "temporary failure, retry later")
	default:
		s.logger.Error().Err(err).Msg("unhandled API error")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %q", raw)
	}
	return id, nil
}

func parseRFC3339(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
