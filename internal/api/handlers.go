package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"slotnik/internal/domain"
	"slotnik/internal/models"
)

type holdRequest struct {
	OwnerRef   string    `json:"owner_ref"`
	ServiceID  int64     `json:"service_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Capacity   int       `json:"capacity"`
	TTLSeconds int       `json:"ttl_seconds"`
}

func (s *HTTPServer) handleHolds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	var body holdRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
		return
	}

	ttl := time.Duration(body.TTLSeconds) * time.Second
	hold, err := s.holds.CreateHold(r.Context(), body.OwnerRef, body.ServiceID,
		models.NewTimeRange(body.Start, body.End), body.Capacity, ttl)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, hold)
}

func (s *HTTPServer) handleHoldByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/holds/"
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		hold, err := s.holds.GetHold(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hold)
	case http.MethodDelete:
		if err := s.holds.ReleaseHold(r.Context(), id); err != nil {
			s.writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

type bookingCreateRequest struct {
	ServiceID int64             `json:"service_id"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Capacity  int               `json:"capacity"`
	Client    models.ClientInfo `json:"client"`
	HoldID    string            `json:"hold_id"`
	OwnerRef  string            `json:"owner_ref"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body bookingCreateRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
			return
		}

		booking, err := s.bookings.CreateBooking(r.Context(), domain.BookingRequest{
			ServiceID: body.ServiceID,
			Range:     models.NewTimeRange(body.Start, body.End),
			Capacity:  body.Capacity,
			Client:    body.Client,
			HoldID:    body.HoldID,
			OwnerRef:  body.OwnerRef,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, booking)
	case http.MethodGet:
		from, to, err := parseRangeQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		bookings, err := s.bookings.ListBookings(r.Context(), from, to)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

type statusUpdateRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
		id, err := parseID(rest)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		booking, err := s.bookings.GetBooking(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case r.Method == http.MethodPatch && strings.HasSuffix(rest, "/status"):
		id, err := parseID(strings.TrimSuffix(rest, "/status"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}

		var body statusUpdateRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
			return
		}

		booking, err := s.bookings.UpdateStatus(r.Context(), id, body.Status, body.Version)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	serviceID, err := parseID(r.URL.Query().Get("service_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "service_id is required")
		return
	}
	from, to, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	snapshots, err := s.availability.Snapshots(r.Context(), serviceID, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": s.store.ListServices()})
}

type windowRequest struct {
	ServiceType  string    `json:"service_type"`
	LocationType string    `json:"location_type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Capacity     int       `json:"capacity"`
	IsOpen       bool      `json:"is_open"`
}

func (s *HTTPServer) handleWindows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body windowRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
			return
		}

		window := &models.AvailabilityWindow{
			ServiceType:  body.ServiceType,
			LocationType: body.LocationType,
			Range:        models.NewTimeRange(body.Start, body.End),
			Capacity:     body.Capacity,
			IsOpen:       body.IsOpen,
		}
		if err := s.availability.AddWindow(r.Context(), window); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, window)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"windows": s.availability.ListWindows()})
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

func (s *HTTPServer) handleWindowByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/v1/admin/windows/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPut:
		var body windowRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
			return
		}

		window := &models.AvailabilityWindow{
			ID:           id,
			ServiceType:  body.ServiceType,
			LocationType: body.LocationType,
			Range:        models.NewTimeRange(body.Start, body.End),
			Capacity:     body.Capacity,
			IsOpen:       body.IsOpen,
		}
		if err := s.availability.UpdateWindow(r.Context(), window); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, window)
	case http.MethodDelete:
		if err := s.availability.RemoveWindow(r.Context(), id); err != nil {
			s.writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

type blockRequest struct {
	Scope  string    `json:"scope"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body blockRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
			return
		}

		block := &models.CalendarBlock{
			Scope:  body.Scope,
			Range:  models.NewTimeRange(body.Start, body.End),
			Reason: body.Reason,
		}
		if err := s.availability.AddBlock(r.Context(), block); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, block)
	case http.MethodGet:
		blocks, err := s.availability.ListBlocks(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	}
}

func (s *HTTPServer) handleBlockByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/v1/admin/blocks/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if err := s.availability.RemoveBlock(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "export is not configured")
		return
	}

	from, to, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	path, err := s.exporter.BookingsToExcel(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func parseRangeQuery(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseRFC3339(strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from; expected RFC3339")
	}
	to, err := parseRFC3339(strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to; expected RFC3339")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}
