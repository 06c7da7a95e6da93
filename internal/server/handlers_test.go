package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/ingest"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/storage"
	"github.com/claude/ironlog/internal/units"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	env := newTestEnv(t)

	var info UserInfo
	rec := env.do(t, http.MethodGet, "/api/v1/me", nil, &info)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", info.Login)
	assert.Equal(t, "Local Dev User", info.DisplayName)
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "alice@example.com", info.Login)
	assert.Equal(t, "Alice", info.DisplayName)
}

// TestWorkoutEndpointsValidateIDs verifies malformed and unknown workout IDs
// map to 400 and 404.
func TestWorkoutEndpointsValidateIDs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/workouts/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/workouts/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, storage.ErrNotFound.Error(), errorBody(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/v1/workouts/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var list []storage.WorkoutSummary
	rec = env.do(t, http.MethodGet, "/api/v1/workouts", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, list)
}

// TestRoutineLifecycle creates a routine from catalog references, reads it
// back and deletes it.
func TestRoutineLifecycle(t *testing.T) {
	env := newTestEnv(t)

	target := 60.0
	var created models.Routine
	rec := env.do(t, http.MethodPost, "/api/v1/routines", models.Routine{
		Name: "  Upper A ",
		Exercises: []models.RoutineExercise{
			{ExerciseID: benchID.String(), TargetSets: 3, TargetReps: 8, TargetWeightKg: &target},
			{ExerciseID: rowID.String(), TargetSets: 3, TargetReps: 10},
		},
	}, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Upper A", created.Name)
	assert.Equal(t, 1, created.UserID)
	require.Len(t, created.Exercises, 2)
	assert.Equal(t, "Bench Press", created.Exercises[0].Name)
	assert.Equal(t, "Barbell Row", created.Exercises[1].Name)
	assert.Equal(t, 1, created.Exercises[1].Position)

	var got models.Routine
	rec = env.do(t, http.MethodGet, "/api/v1/routines/"+created.ID.String(), nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, got.ID)

	var list []models.Routine
	env.do(t, http.MethodGet, "/api/v1/routines", nil, &list)
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/routines/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/v1/routines/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestCreateRoutineValidation verifies bad routine bodies are rejected
// before anything is stored.
func TestCreateRoutineValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing name", models.Routine{}, http.StatusBadRequest},
		{"unknown field", map[string]any{"name": "A", "colour": "red"}, http.StatusBadRequest},
		{"unknown exercise", models.Routine{Name: "A", Exercises: []models.RoutineExercise{{ExerciseID: uuid.NewString()}}}, http.StatusNotFound},
		{"negative target", models.Routine{Name: "A", Exercises: []models.RoutineExercise{{ExerciseID: benchID.String(), TargetReps: -1}}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/routines", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, env.store.routines)
}

// TestCreateRoutineInPounds verifies target weights sent with ?units=lb are
// stored in kilograms.
func TestCreateRoutineInPounds(t *testing.T) {
	env := newTestEnv(t)

	target := 225.0
	rec := env.do(t, http.MethodPost, "/api/v1/routines?units=lb", models.Routine{
		Name:      "Heavy",
		Exercises: []models.RoutineExercise{{ExerciseID: benchID.String(), TargetSets: 5, TargetReps: 5, TargetWeightKg: &target}},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, env.store.routines, 1)
	for _, r := range env.store.routines {
		require.NotNil(t, r.Exercises[0].TargetWeightKg)
		assert.InDelta(t, 102.06, *r.Exercises[0].TargetWeightKg, 0.01)
	}
}

// TestExerciseCatalogEndpoints covers catalog search and lookup.
func TestExerciseCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var list []models.ExerciseDefinition
	rec := env.do(t, http.MethodGet, "/api/v1/exercises?q=row", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, rowID, list[0].ID)

	var ex models.ExerciseDefinition
	rec = env.do(t, http.MethodGet, "/api/v1/exercises/"+benchID.String(), nil, &ex)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bench Press", ex.Name)

	rec = env.do(t, http.MethodGet, "/api/v1/exercises/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/exercises/bench", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestCustomExerciseEndpoints covers creating, reading and deleting custom
// exercises, including the duplicate name conflict.
func TestCustomExerciseEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var created models.CustomExercise
	rec := env.do(t, http.MethodPost, "/api/v1/exercises/custom",
		customExerciseRequest{Name: "Landmine Press", MuscleGroup: "shoulders"}, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, models.IsCustomExerciseID(created.ID))

	rec = env.do(t, http.MethodPost, "/api/v1/exercises/custom", customExerciseRequest{Name: "landmine press"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/exercises/custom", customExerciseRequest{Name: " "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var got models.CustomExercise
	rec = env.do(t, http.MethodGet, "/api/v1/exercises/"+created.ID, nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Landmine Press", got.Name)

	var list []models.CustomExercise
	env.do(t, http.MethodGet, "/api/v1/exercises/custom", nil, &list)
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/exercises/custom/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/v1/exercises/custom/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestExerciseHistoryInPounds verifies ?units=lb renames and converts weight
// fields.
func TestExerciseHistoryInPounds(t *testing.T) {
	env := newTestEnv(t)
	env.store.history[benchID.String()] = []storage.ExerciseSession{
		{WorkoutName: "Push", Sets: 3, TopWeightKg: 100, TopReps: 5, VolumeKg: 1500, Estimated1RM: 116.67},
	}

	var body []map[string]any
	rec := env.do(t, http.MethodGet, "/api/v1/exercises/"+benchID.String()+"/history?units=lb", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body, 1)

	assert.InDelta(t, 220.5, body[0]["top_weight_lb"], 1e-9)
	assert.InDelta(t, 3306.9, body[0]["volume_lb"], 1e-9)
	assert.NotContains(t, body[0], "top_weight_kg")
	assert.InDelta(t, 5, body[0]["top_reps"], 1e-9)

	rec = env.do(t, http.MethodGet, "/api/v1/exercises/"+benchID.String()+"/history?units=stone", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestDefaultUnits verifies the server-wide unit applies without ?units=.
func TestDefaultUnits(t *testing.T) {
	env := newTestEnv(t, WithUnits(units.Pounds))
	env.store.history[benchID.String()] = []storage.ExerciseSession{{TopWeightKg: 100}}

	var body []map[string]any
	env.do(t, http.MethodGet, "/api/v1/exercises/"+benchID.String()+"/history", nil, &body)
	require.Len(t, body, 1)
	assert.Contains(t, body[0], "top_weight_lb")

	var metric []map[string]any
	env.do(t, http.MethodGet, "/api/v1/exercises/"+benchID.String()+"/history?units=kg", nil, &metric)
	require.Len(t, metric, 1)
	assert.Contains(t, metric[0], "top_weight_kg")
}

// TestTrainingSummaryPeriod verifies period selection and validation.
func TestTrainingSummaryPeriod(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stats/summary", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/stats/summary?period=monthly&start=2026-01-01&end=2026-06-30", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1 week", "1 month"}, env.store.buckets)

	rec = env.do(t, http.MethodGet, "/api/v1/stats/summary?period=daily", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/stats/summary?start=2026-06-30&end=2026-01-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/stats/effort?start=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestAlphaImport verifies the import endpoint requires the API key and hands
// the body to the importer for the calling user.
func TestAlphaImport(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader("csv"))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader("csv"))
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader("csv"))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.WorkoutsInserted)
	assert.Equal(t, "csv", env.importer.body)
	assert.Equal(t, 1, env.importer.userID)

	env.importer.err = fmt.Errorf("parsing CSV: %w: line 3: set without exercise", ingest.ErrInvalidExport)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader("csv"))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.importer.err = errors.New(`saving session "Push" on 2026-02-19: inserting workout: connection refused`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader("csv"))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestStatusFor verifies the mapping from domain errors to status codes,
// including wrapped errors.
func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("nope"), http.StatusBadRequest},
		{session.ErrInvalidSet, http.StatusBadRequest},
		{session.ErrInvalidSuperset, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("exercise id %q: %w", "x", catalog.ErrNotFound), http.StatusNotFound},
		{session.ErrSetNotFound, http.StatusNotFound},
		{session.ErrSessionActive, http.StatusConflict},
		{session.ErrNoActiveSession, http.StatusConflict},
		{session.ErrEmptySession, http.StatusConflict},
		{catalog.ErrDuplicateName, http.StatusConflict},
		{fmt.Errorf("parsing CSV: %w: line 2", ingest.ErrInvalidExport), http.StatusBadRequest},
		{fmt.Errorf("saving session: %w", errors.New("connection reset")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// TestParseTimeRange verifies date formats and the default window.
func TestParseTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=2026-01-01&end=2026-01-31T12:00:00Z", nil)
	start, end, err := parseTimeRange(req, 30)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", start.Format("2006-01-02"))
	assert.Equal(t, 12, end.Hour())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	start, end, err = parseTimeRange(req, 30)
	require.NoError(t, err)
	assert.InDelta(t, 30*24, end.Sub(start).Hours(), 1)
}
