package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/ingest"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	benchID = uuid.MustParse("7b0c9f1e-3c1a-4a51-8d2e-0f6a3c2b9d10")
	rowID   = uuid.MustParse("2f1d4c3b-9e8a-4b7c-a6d5-e4f3a2b1c0d9")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	items []models.ExerciseDefinition
}

func (f *fakeSource) GetExercise(_ context.Context, id uuid.UUID) (*models.ExerciseDefinition, error) {
	for _, e := range f.items {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSource) ListExercises(_ context.Context, filter storage.ExerciseFilter) ([]models.ExerciseDefinition, error) {
	out := []models.ExerciseDefinition{}
	for _, e := range f.items {
		if filter.Query == "" || strings.Contains(strings.ToLower(e.Name), strings.ToLower(filter.Query)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) FindExerciseByName(_ context.Context, name string) (*models.ExerciseDefinition, error) {
	for _, e := range f.items {
		if strings.EqualFold(e.Name, name) {
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

// fakeStore keeps workouts and routines in memory.
type fakeStore struct {
	mu       sync.Mutex
	saved    []*models.WorkoutPlan
	saveErr  error
	routines map[uuid.UUID]models.Routine
	users    map[string]int
	history  map[string][]storage.ExerciseSession
	buckets  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		routines: map[uuid.UUID]models.Routine{},
		users:    map[string]int{storage.LocalLogin: 1},
		history:  map[string][]storage.ExerciseSession{},
	}
}

func (f *fakeStore) SaveWorkout(_ context.Context, plan *models.WorkoutPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, plan)
	return nil
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.users[login]
	if !ok {
		id = len(f.users) + 1
		f.users[login] = id
	}
	return id, nil
}

func (f *fakeStore) ListWorkouts(_ context.Context, userID, page, size int) ([]storage.WorkoutSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []storage.WorkoutSummary{}
	for _, p := range f.saved {
		if p.Workout.UserID != userID {
			continue
		}
		sum := storage.WorkoutSummary{WorkoutRow: p.Workout, ExerciseCount: len(p.Exercises), SetCount: len(p.Sets)}
		for _, s := range p.Sets {
			if s.Completed {
				sum.CompletedSets++
				sum.VolumeKg += s.WeightKg * float64(s.Reps)
			}
		}
		out = append(out, sum)
	}
	lo := page * size
	if lo >= len(out) {
		return []storage.WorkoutSummary{}, nil
	}
	return out[lo:min(lo+size, len(out))], nil
}

func (f *fakeStore) GetWorkout(_ context.Context, workoutID uuid.UUID, userID int) (*storage.WorkoutDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.saved {
		if p.Workout.ID != workoutID || p.Workout.UserID != userID {
			continue
		}
		detail := &storage.WorkoutDetail{WorkoutRow: p.Workout}
		for _, e := range p.Exercises {
			ex := storage.WorkoutExerciseDetail{WorkoutExerciseRow: e, Sets: []models.WorkoutSetRow{}}
			for _, s := range p.Sets {
				if s.WorkoutExerciseID == e.ID {
					ex.Sets = append(ex.Sets, s)
				}
			}
			detail.Exercises = append(detail.Exercises, ex)
		}
		return detail, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) DeleteWorkout(_ context.Context, workoutID uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.saved {
		if p.Workout.ID == workoutID && p.Workout.UserID == userID {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ListRoutines(_ context.Context, userID int) ([]models.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Routine{}
	for _, r := range f.routines {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRoutine(_ context.Context, routineID uuid.UUID, userID int) (*models.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[routineID]
	if !ok || r.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) CreateRoutine(_ context.Context, r *models.Routine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	for i := range r.Exercises {
		r.Exercises[i].Position = i
	}
	r.CreatedAt = time.Now()
	f.routines[r.ID] = *r
	return nil
}

func (f *fakeStore) DeleteRoutine(_ context.Context, routineID uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[routineID]
	if !ok || r.UserID != userID {
		return storage.ErrNotFound
	}
	delete(f.routines, routineID)
	return nil
}

func (f *fakeStore) ExerciseHistory(_ context.Context, ref string, _, _ int) ([]storage.ExerciseSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.history[ref]; ok {
		return h, nil
	}
	return []storage.ExerciseSession{}, nil
}

func (f *fakeStore) PersonalRecords(_ context.Context, ref string, _ int) (*storage.PersonalRecords, error) {
	return &storage.PersonalRecords{ExerciseRef: ref}, nil
}

func (f *fakeStore) GetTrainingSummary(_ context.Context, _, _ time.Time, bucket string, _ int) ([]storage.TrainingSummaryPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, bucket)
	return []storage.TrainingSummaryPeriod{{Sessions: 2, TonnageKg: 1000}}, nil
}

func (f *fakeStore) GetEffortDistribution(_ context.Context, _, _ time.Time, _ int) (*storage.EffortResult, error) {
	return &storage.EffortResult{}, nil
}

func (f *fakeStore) GetDataStats(_ context.Context, _ int) (*storage.DataStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &storage.DataStats{TotalWorkouts: int64(len(f.saved))}, nil
}

func (f *fakeStore) QueryImportLogs(_ context.Context, _, _ int) ([]storage.ImportLog, error) {
	return []storage.ImportLog{}, nil
}

type fakeImporter struct {
	body   string
	userID int
	err    error
}

func (f *fakeImporter) Ingest(_ context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body = string(b)
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{SessionsReceived: 1, WorkoutsInserted: 1}, nil
}

type testEnv struct {
	srv      *Server
	store    *fakeStore
	importer *fakeImporter
	catalog  *catalog.Catalog
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	custom, err := catalog.OpenCustomStore(filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { custom.Close() })

	log := discardLogger()
	source := &fakeSource{items: []models.ExerciseDefinition{
		{ID: benchID, Name: "Bench Press", MuscleGroup: "chest", Equipment: "Barbell"},
		{ID: rowID, Name: "Barbell Row", MuscleGroup: "back", Equipment: "Barbell"},
	}}
	cat := catalog.New(source, custom, 1<<20, 0, log)
	store := newFakeStore()
	importer := &fakeImporter{}
	registry := session.NewRegistry(store, log)

	opts = append([]Option{WithAPIKey("secret")}, opts...)
	return &testEnv{
		srv:      New(store, registry, cat, importer, log, opts...),
		store:    store,
		importer: importer,
		catalog:  cat,
	}
}

// do sends a request through the full router and decodes a JSON response
// into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	if out != nil && rec.Code < http.StatusMultipleChoices {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}
