/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Medication create/list/get/delete and schedule updates
- Take/undo/refill status codes and bodies
- Today, refills, calendar and doses views
- RefillScheduler once-per-day behaviour
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dose-engine/api"
	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/metrics"
	"github.com/warp/dose-engine/reminder"
	"github.com/warp/dose-engine/store/sqlite"
	"github.com/warp/dose-engine/tracker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type countingReminders struct {
	mu      sync.Mutex
	refills int
}

func (c *countingReminders) ScheduleReminder(context.Context, engine.MedicationID, engine.LocalTime) (reminder.Handle, error) {
	return "dose", nil
}

func (c *countingReminders) ScheduleRefillReminder(context.Context, engine.MedicationID) (reminder.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refills++
	return "refill", nil
}

type testServer struct {
	router    *chi.Mux
	tracker   *tracker.Tracker
	reminders *countingReminders
	now       *time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC)
	clock := engine.ClockFunc(func() time.Time { return now })
	rem := &countingReminders{}
	reg := prometheus.NewRegistry()

	tr := tracker.New(store, tracker.Config{
		Location:  time.UTC,
		Clock:     clock,
		Reminders: rem,
		Metrics:   metrics.New(reg),
	})
	h := api.NewHandler(tr, clock, nil)

	return &testServer{
		router:    api.NewRouter(h, api.RouterOptions{Metrics: metrics.Handler(reg)}),
		tracker:   tr,
		reminders: rem,
		now:       &now,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) create(t *testing.T, id string, supply, refillAt int) api.MedicationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/medications", map[string]any{
		"id":              id,
		"name":            "Med " + id,
		"dosage":          "10mg",
		"frequency":       "Twice daily",
		"duration":        "Ongoing",
		"start_date":      "2024-01-01",
		"refill_reminder": true,
		"current_supply":  supply,
		"refill_at":       refillAt,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.MedicationDTO](t, rec)
}

// =============================================================================
// MEDICATIONS
// =============================================================================

func TestCreateMedication(t *testing.T) {
	s := newTestServer(t)

	med := s.create(t, "med-1", 30, 20)
	assert.Equal(t, "med-1", med.ID)
	assert.Equal(t, []string{"09:00", "21:00"}, med.Schedule)
	assert.True(t, med.Ongoing)
	assert.Equal(t, 30, med.TotalSupply)
	assert.Equal(t, "Good", med.SupplyTier)
	assert.Equal(t, 100.0, med.SupplyPercent)

	rec := s.do(t, http.MethodGet, "/api/medications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.MedicationDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/medications/med-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Med med-1", decode[api.MedicationDTO](t, rec).Name)
}

func TestCreateMedication_ValidationError(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/medications", map[string]any{
		"dosage":    "10mg",
		"frequency": "Once daily",
		"duration":  "7 days",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Code)
	assert.Contains(t, resp.Fields, "name")

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/medications", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMedication_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/medications/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[api.ErrorResponse](t, rec).Code)
}

func TestUpdateScheduleAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "med-1", 30, 20)

	rec := s.do(t, http.MethodPut, "/api/medications/med-1/schedule", api.UpdateScheduleRequest{Times: []string{"07:00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"07:00"}, decode[api.MedicationDTO](t, rec).Schedule)

	rec = s.do(t, http.MethodPut, "/api/medications/med-1/schedule", api.UpdateScheduleRequest{Times: []string{"7am"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/medications/med-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/medications/med-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// DOSES
// =============================================================================

func TestTakeUndoFlow(t *testing.T) {
	// GIVEN: A medication with 30 units
	// WHEN: Taking, taking again, undoing, undoing again
	// THEN: 200, 409 already_taken, 200, 409 nothing_to_undo

	s := newTestServer(t)
	s.create(t, "med-1", 30, 20)

	rec := s.do(t, http.MethodPost, "/api/medications/med-1/doses", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 29, decode[api.MedicationDTO](t, rec).CurrentSupply)

	rec = s.do(t, http.MethodPost, "/api/medications/med-1/doses", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_taken", decode[api.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/doses?date=2024-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doses := decode[[]api.DoseEventDTO](t, rec)
	require.Len(t, doses, 1)
	assert.Equal(t, "med-1", doses[0].MedicationID)

	rec = s.do(t, http.MethodDelete, "/api/medications/med-1/doses/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decode[api.MedicationDTO](t, rec).CurrentSupply)

	rec = s.do(t, http.MethodDelete, "/api/medications/med-1/doses/last", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "nothing_to_undo", decode[api.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/doses?date=10-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTakeDose_UnknownMedication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/medications/ghost/doses", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// VIEWS
// =============================================================================

func TestToday(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "med-1", 30, 20)
	s.create(t, "med-2", 30, 20)

	s.do(t, http.MethodPost, "/api/medications/med-1/doses", nil)

	rec := s.do(t, http.MethodGet, "/api/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dash := decode[api.DashboardDTO](t, rec)
	assert.Equal(t, "2024-01-10", dash.Date)
	require.Len(t, dash.Medications, 2)
	assert.True(t, dash.Medications[0].Taken)
	assert.False(t, dash.Medications[1].Taken)
	require.NotNil(t, dash.Medications[1].NextDose)
	assert.Equal(t, "09:00", *dash.Medications[1].NextDose)
	assert.Equal(t, 1, dash.Progress.Completed)
	assert.Equal(t, 4, dash.Progress.Expected)
	assert.Equal(t, 0.25, dash.Progress.Percentage)
}

func TestRefills(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "low", 10, 5)
	s.create(t, "good", 30, 20)

	// One dose a day until the supply runs out.
	for i := 0; i < 10; i++ {
		_, err := s.tracker.TakeDose(context.Background(), "low")
		require.NoError(t, err)
		*s.now = s.now.AddDate(0, 0, 1)
	}

	rec := s.do(t, http.MethodGet, "/api/refills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]api.RefillDTO](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "Low", rows[0].SupplyTier)
	assert.True(t, rows[0].NeedsRefill)
	assert.False(t, rows[1].NeedsRefill)

	rec = s.do(t, http.MethodPost, "/api/medications/low/refill", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refilled := decode[api.MedicationDTO](t, rec)
	assert.Equal(t, 10, refilled.CurrentSupply)
	assert.NotNil(t, refilled.LastRefillDate)
}

func TestCalendar(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "med-1", 30, 20)
	s.do(t, http.MethodPost, "/api/medications/med-1/doses", nil)

	rec := s.do(t, http.MethodGet, "/api/calendar?year=2024&month=1&day=2024-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cal := decode[api.CalendarDTO](t, rec)
	assert.Equal(t, []string{"2024-01-10"}, cal.DaysWithDoses)
	require.Len(t, cal.Entries, 1)
	assert.True(t, cal.Entries[0].Taken)
	assert.True(t, cal.Entries[0].Active)

	rec = s.do(t, http.MethodGet, "/api/calendar?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "med-1", 30, 20)
	s.do(t, http.MethodPost, "/api/medications/med-1/doses", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doses_taken_total 1")
}

// =============================================================================
// REFILL SCHEDULER
// =============================================================================

func TestRefillScheduler_OncePerDay(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "med-1", 10, 5)
	for i := 0; i < 10; i++ {
		_, err := s.tracker.TakeDose(context.Background(), "med-1")
		require.NoError(t, err)
		*s.now = s.now.AddDate(0, 0, 1)
	}
	before := s.reminders.refills

	rs := api.NewRefillScheduler(s.tracker, nil)
	assert.Equal(t, 1, rs.CheckOnce(context.Background()))
	assert.Equal(t, 0, rs.CheckOnce(context.Background()), "already reminded today")

	*s.now = s.now.AddDate(0, 0, 1)
	assert.Equal(t, 1, rs.CheckOnce(context.Background()))
	assert.Equal(t, before+2, s.reminders.refills)
}

func TestRefillScheduler_ForgetsDeletedMedication(t *testing.T) {
	// GIVEN: A low medication already reminded today
	// WHEN: It is deleted and re-created low under the same id that day
	// THEN: The new medication gets its own reminder

	s := newTestServer(t)
	ctx := context.Background()
	low := engine.Medication{
		ID:                    "med-1",
		Name:                  "Med med-1",
		Dosage:                "10mg",
		StartDate:             engine.NewDay(2024, time.January, 1),
		DurationDays:          engine.Ongoing,
		CurrentSupply:         2,
		TotalSupply:           200,
		RefillThreshold:       1,
		RefillReminderEnabled: true,
	}
	_, err := s.tracker.AddMedication(ctx, low)
	require.NoError(t, err)

	rs := api.NewRefillScheduler(s.tracker, nil)
	assert.Equal(t, 1, rs.CheckOnce(ctx))

	require.NoError(t, s.tracker.DeleteMedication(ctx, "med-1"))
	assert.Equal(t, 0, rs.CheckOnce(ctx))

	_, err = s.tracker.AddMedication(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.CheckOnce(ctx))
}

func TestRefillScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)
	rs := api.NewRefillScheduler(s.tracker, nil)
	rs.CheckInterval = time.Millisecond

	rs.Start()
	rs.Start()
	rs.Stop()
	rs.Stop()

	rs.Enabled = false
	rs.Start()
	rs.Stop()
}
