package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/ingest"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/storage"
	"github.com/claude/ironlog/internal/units"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 20)
	if size > 100 {
		size = 100
	}

	workouts, err := s.db.ListWorkouts(r.Context(), userIDFromContext(r), page, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, workouts)
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	detail, err := s.db.GetWorkout(r.Context(), workoutID, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, detail)
}

func (s *Server) handleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.db.DeleteWorkout(r.Context(), workoutID, userIDFromContext(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.db.ListRoutines(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, routines)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	routineID, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	routine, err := s.db.GetRoutine(r.Context(), routineID, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, routine)
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var routine models.Routine
	if err := decodeJSON(r, &routine); err != nil {
		s.writeError(w, err)
		return
	}

	routine.Name = strings.TrimSpace(routine.Name)
	if routine.Name == "" {
		s.writeError(w, badRequest("name is required"))
		return
	}
	u, err := s.unitsFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	for i := range routine.Exercises {
		e := &routine.Exercises[i]
		if e.TargetSets < 0 || e.TargetReps < 0 || (e.TargetWeightKg != nil && *e.TargetWeightKg < 0) {
			s.writeError(w, badRequest("exercise %d: targets must not be negative", i))
			return
		}
		ref, err := s.catalog.Resolve(r.Context(), e.ExerciseID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		e.ExerciseID = ref.ExerciseID
		if e.Name == "" {
			e.Name = ref.Name
		}
		if e.TargetWeightKg != nil {
			kg := u.ToKg(*e.TargetWeightKg)
			e.TargetWeightKg = &kg
		}
	}

	routine.ID = uuid.Nil
	routine.UserID = userIDFromContext(r)
	if routine.Exercises == nil {
		routine.Exercises = []models.RoutineExercise{}
	}
	if err := s.db.CreateRoutine(r.Context(), &routine); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusCreated, routine)
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	routineID, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.db.DeleteRoutine(r.Context(), routineID, userIDFromContext(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetDataStats(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrainingSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r, 90)
	if err != nil {
		s.writeError(w, err)
		return
	}

	bucket := "1 week"
	switch r.URL.Query().Get("period") {
	case "monthly":
		bucket = "1 month"
	case "weekly", "":
	default:
		s.writeError(w, badRequest("period must be weekly or monthly"))
		return
	}

	periods, err := s.db.GetTrainingSummary(r.Context(), start, end, bucket, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, periods)
}

func (s *Server) handleEffort(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r, 30)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.db.GetEffortDistribution(r.Context(), start, end, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit <= 0 {
		limit = 50
	}
	logs, err := s.db.QueryImportLogs(r.Context(), userIDFromContext(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAlphaImport(w http.ResponseWriter, r *http.Request) {
	result, err := s.importer.Ingest(r.Context(), r.Body, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requestError is a client mistake reported as 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, session.ErrInvalidSet),
		errors.Is(err, session.ErrInvalidExercise),
		errors.Is(err, session.ErrInvalidSuperset),
		errors.Is(err, ingest.ErrInvalidExport):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, session.ErrExerciseNotFound),
		errors.Is(err, session.ErrSetNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrAlreadyPaused),
		errors.Is(err, session.ErrNotPaused),
		errors.Is(err, session.ErrEmptySession),
		errors.Is(err, catalog.ErrDuplicateName):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// respond writes v as JSON with weights converted to the requested units.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	u, err := s.unitsFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if u == units.Kilograms {
		writeJSON(w, status, v)
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		s.writeError(w, fmt.Errorf("encoding response: %w", err))
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		s.writeError(w, fmt.Errorf("decoding response: %w", err))
		return
	}
	writeJSON(w, status, units.Convert(generic, u))
}

func (s *Server) unitsFor(r *http.Request) (units.Unit, error) {
	q := r.URL.Query().Get("units")
	if q == "" {
		return s.units, nil
	}
	u, err := units.Parse(q)
	if err != nil {
		return "", badRequest("%s", err.Error())
	}
	return u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON: %s", err.Error())
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// parseTimeRange reads start and end as RFC 3339 or YYYY-MM-DD. Without a
// start the range covers the last defaultDays days.
func parseTimeRange(r *http.Request, defaultDays int) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	end = time.Now()
	if endStr != "" {
		if end, err = parseTime(endStr); err != nil {
			return time.Time{}, time.Time{}, badRequest("invalid end: %s", endStr)
		}
	}
	if startStr == "" {
		return end.AddDate(0, 0, -defaultDays), end, nil
	}
	if start, err = parseTime(startStr); err != nil {
		return time.Time{}, time.Time{}, badRequest("invalid start: %s", startStr)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, badRequest("start must be before end")
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
