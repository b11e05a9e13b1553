/*
handlers.go - HTTP API handlers for the dose engine

PURPOSE:
  Exposes the tracker via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the tracker for every read and write.

ENDPOINTS:
  Medications:
    GET    /api/medications                 List all medications
    POST   /api/medications                 Add medication from form JSON
    GET    /api/medications/{id}            Get one medication
    DELETE /api/medications/{id}            Delete medication (doses kept)
    PUT    /api/medications/{id}/schedule   Replace times of day

  Doses:
    POST   /api/medications/{id}/doses      Mark today's dose taken
    DELETE /api/medications/{id}/doses/last Undo the most recent dose
    GET    /api/doses?date=YYYY-MM-DD       Ledger entries for a day

  Supply:
    POST   /api/medications/{id}/refill     Reset supply to total
    GET    /api/refills                     Refill tracker rows

  Views:
    GET    /api/today                       Home screen
    GET    /api/calendar?year=&month=&day=  Calendar month + selected day

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert input (factory for forms, engine parsers for times/days)
  3. Call the tracker
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Medication not found
  - 409: Already taken, nothing to undo, concurrent modification
  - 500: Persistence and internal errors

SECURITY NOTE:
  No authentication or authorization. The server is meant to run on the
  patient's own device or behind the host app.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - tracker/tracker.go: Write sequencing
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/factory"
	"github.com/warp/dose-engine/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker *tracker.Tracker
	Factory *factory.MedicationFactory

	logger *zap.Logger
}

// NewHandler creates a handler. The factory shares the tracker's zone so a
// form without start_date starts on the tracker's today.
func NewHandler(t *tracker.Tracker, clock engine.Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Tracker: t,
		Factory: factory.NewMedicationFactory(t.Location(), clock),
		logger:  logger,
	}
}

// =============================================================================
// MEDICATION ENDPOINTS
// =============================================================================

// ListMedications returns every medication in insertion order.
func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.Tracker.AllMedications(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTOs(meds))
}

// CreateMedication decodes the add form and stores the medication.
func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var req factory.MedicationJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	med, err := h.Factory.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	saved, err := h.Tracker.AddMedication(r.Context(), med)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicationDTO(saved))
}

func (h *Handler) GetMedication(w http.ResponseWriter, r *http.Request) {
	med, err := h.Tracker.Medication(r.Context(), medicationID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(med))
}

func (h *Handler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteMedication(r.Context(), medicationID(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSchedule replaces the medication's times of day.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	times := make([]engine.LocalTime, 0, len(req.Times))
	for _, s := range req.Times {
		lt, err := engine.ParseLocalTime(strings.TrimSpace(s))
		if err != nil {
			h.writeDomainError(w, r, &engine.ValidationError{
				Fields: map[string]string{"schedule": err.Error()},
			})
			return
		}
		times = append(times, lt)
	}

	med, err := h.Tracker.UpdateSchedule(r.Context(), medicationID(r), times)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(med))
}

// =============================================================================
// DOSE ENDPOINTS
// =============================================================================

// TakeDose marks today's dose as taken.
func (h *Handler) TakeDose(w http.ResponseWriter, r *http.Request) {
	med, err := h.Tracker.TakeDose(r.Context(), medicationID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(med))
}

// UndoDose removes the most recent taken dose.
func (h *Handler) UndoDose(w http.ResponseWriter, r *http.Request) {
	med, err := h.Tracker.UndoDose(r.Context(), medicationID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(med))
}

// ListDoses returns ledger entries for ?date=, defaulting to today.
func (h *Handler) ListDoses(w http.ResponseWriter, r *http.Request) {
	day := h.Tracker.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		day = d
	}

	events, err := h.Tracker.Ledger.EventsOnAllMedications(r.Context(), day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoseEventDTOs(events))
}

// =============================================================================
// SUPPLY ENDPOINTS
// =============================================================================

func (h *Handler) Refill(w http.ResponseWriter, r *http.Request) {
	med, err := h.Tracker.Refill(r.Context(), medicationID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(med))
}

// ListRefills returns every medication with its tier and whether it is
// at or under its refill threshold.
func (h *Handler) ListRefills(w http.ResponseWriter, r *http.Request) {
	meds, err := h.Tracker.AllMedications(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rows := tracker.RefillOverview(meds)
	dtos := make([]RefillDTO, len(rows))
	for i, row := range rows {
		dtos[i] = RefillDTO{
			MedicationDTO: toMedicationDTO(row.Medication),
			NeedsRefill:   row.Tier == tracker.TierLow,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VIEW ENDPOINTS
// =============================================================================

// Today returns the home screen: active medications, taken status and
// daily progress.
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Tracker.Dashboard(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(dash))
}

// Calendar returns the month view. Missing parameters default to today.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	today := h.Tracker.Today()
	q := r.URL.Query()

	year, err := intParam(q.Get("year"), today.Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := intParam(q.Get("month"), int(today.Month()))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month (1-12)", err)
		return
	}

	selected := today
	if s := q.Get("day"); s != "" {
		selected, err = engine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
			return
		}
	}

	cal, err := h.Tracker.Calendar(r.Context(), year, time.Month(month), selected)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(cal))
}

// =============================================================================
// HELPERS
// =============================================================================

func medicationID(r *http.Request) engine.MedicationID {
	return engine.MedicationID(chi.URLParam(r, "id"))
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
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

// writeDomainError maps engine sentinels to status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Code:   "validation",
			Fields: verr.Fields,
		})
	case errors.Is(err, engine.ErrMedicationNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Medication not found", Code: "not_found", Details: err.Error()})
	case errors.Is(err, engine.ErrAlreadyTaken):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Dose already taken today", Code: "already_taken", Details: err.Error()})
	case errors.Is(err, engine.ErrNothingToUndo):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "No dose to undo", Code: "nothing_to_undo", Details: err.Error()})
	case errors.Is(err, engine.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Medication changed, reload and retry", Code: "conflict", Details: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
