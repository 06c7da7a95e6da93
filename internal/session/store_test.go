package session

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// seqIDs returns a generator of predictable, distinct UUIDs.
func seqIDs() func() uuid.UUID {
	var n uint32
	return func() uuid.UUID {
		n++
		var id uuid.UUID
		binary.BigEndian.PutUint32(id[12:], n)
		return id
	}
}

type fakeSaver struct {
	plans []*models.WorkoutPlan
	err   error
}

func (f *fakeSaver) SaveWorkout(_ context.Context, plan *models.WorkoutPlan) error {
	if f.err != nil {
		return f.err
	}
	f.plans = append(f.plans, plan)
	return nil
}

var (
	benchID = "7b0c9f1e-3c1a-4a51-8d2e-0f6a3c2b9d10"
	rowID   = "2f1d4c3b-9e8a-4b7c-a6d5-e4f3a2b1c0d9"
	squatID = "c3b2a190-8f7e-4d6c-b5a4-9382716f5e4d"
)

func newTestStore(t *testing.T, saver Saver) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(saver, log, WithClock(clock.Now), WithIDs(seqIDs())), clock
}

func addExercise(t *testing.T, s *Store, id, name string) string {
	t.Helper()
	exID, err := s.AddExercise(models.ExerciseRef{ExerciseID: id, Name: name})
	require.NoError(t, err)
	return exID
}

func TestStartTwiceFails(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})

	sess, err := s.Start("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, sess.Name)
	assert.False(t, sess.Paused())

	_, err = s.Start("Push")
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestOperationsWithoutSession(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})

	_, err := s.Active()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.ErrorIs(t, s.Pause(), ErrNoActiveSession)
	assert.ErrorIs(t, s.Discard(), ErrNoActiveSession)
	_, err = s.AddExercise(models.ExerciseRef{ExerciseID: benchID, Name: "Bench Press"})
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = s.Save(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

// TestPauseResumeAccounting verifies that paused time is excluded from the
// elapsed duration and that repeated pause/resume calls are rejected.
func TestPauseResumeAccounting(t *testing.T) {
	s, clock := newTestStore(t, &fakeSaver{})
	_, err := s.Start("Legs")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.NoError(t, s.Pause())
	assert.ErrorIs(t, s.Pause(), ErrAlreadyPaused)

	clock.Advance(5 * time.Minute)
	elapsed, err := s.Elapsed()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, elapsed)

	view, err := s.View()
	require.NoError(t, err)
	assert.True(t, view.Paused)
	assert.Equal(t, 600.0, view.ElapsedSec)

	require.NoError(t, s.Resume())
	assert.ErrorIs(t, s.Resume(), ErrNotPaused)

	clock.Advance(2 * time.Minute)
	elapsed, err = s.Elapsed()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Minute, elapsed)
}

func TestAddExerciseValidation(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)

	_, err = s.AddExercise(models.ExerciseRef{ExerciseID: "bench", Name: "Bench"})
	assert.ErrorIs(t, err, ErrInvalidExercise)

	_, err = s.AddExercise(models.ExerciseRef{ExerciseID: "custom-", Name: "Thing"})
	assert.ErrorIs(t, err, ErrInvalidExercise)

	_, err = s.AddExercise(models.ExerciseRef{ExerciseID: benchID})
	assert.ErrorIs(t, err, ErrInvalidExercise)

	_, err = s.AddExercise(models.ExerciseRef{ExerciseID: "custom-abc", Name: "Sled Push"})
	assert.NoError(t, err)
}

func TestSetMutations(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("Push")
	require.NoError(t, err)
	exID := addExercise(t, s, benchID, "Bench Press")

	sess, err := s.Active()
	require.NoError(t, err)
	require.Len(t, sess.Exercises, 1)
	require.Len(t, sess.Exercises[0].Sets, 1)
	firstSet := sess.Exercises[0].Sets[0].ID

	weight, reps, rpe := 100.0, 5, 8.5
	require.NoError(t, s.UpdateSet(exID, firstSet, models.SetPatch{WeightKg: &weight, Reps: &reps, RPE: &rpe}))

	secondSet, err := s.AddSet(exID)
	require.NoError(t, err)
	require.NoError(t, s.ToggleSet(exID, firstSet))

	sess, err = s.Active()
	require.NoError(t, err)
	sets := sess.Exercises[0].Sets
	require.Len(t, sets, 2)
	assert.True(t, sets[0].Completed)
	assert.Equal(t, 8.5, sets[0].RPE)
	assert.Equal(t, secondSet, sets[1].ID)
	assert.Equal(t, 100.0, sets[1].WeightKg, "new set copies previous weight")
	assert.Equal(t, 5, sets[1].Reps, "new set copies previous reps")
	assert.False(t, sets[1].Completed)
	assert.Zero(t, sets[1].RPE)

	require.NoError(t, s.RemoveSet(exID, firstSet))
	assert.ErrorIs(t, s.RemoveSet(exID, firstSet), ErrSetNotFound)
	assert.ErrorIs(t, s.ToggleSet("nope", secondSet), ErrExerciseNotFound)

	sess, err = s.Active()
	require.NoError(t, err)
	require.Len(t, sess.Exercises[0].Sets, 1)
	assert.Equal(t, secondSet, sess.Exercises[0].Sets[0].ID)
}

func TestUpdateSetValidation(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)
	exID := addExercise(t, s, benchID, "Bench Press")
	sess, _ := s.Active()
	setID := sess.Exercises[0].Sets[0].ID

	neg := -1.0
	negReps := -3
	tooHard := 10.5
	assert.ErrorIs(t, s.UpdateSet(exID, setID, models.SetPatch{WeightKg: &neg}), ErrInvalidSet)
	assert.ErrorIs(t, s.UpdateSet(exID, setID, models.SetPatch{Reps: &negReps}), ErrInvalidSet)
	assert.ErrorIs(t, s.UpdateSet(exID, setID, models.SetPatch{RPE: &tooHard}), ErrInvalidSet)
	for _, bad := range []float64{0.5, 7.3, -0.5} {
		rpe := bad
		assert.ErrorIs(t, s.UpdateSet(exID, setID, models.SetPatch{RPE: &rpe}), ErrInvalidSet, "rpe %v", bad)
	}
	for _, good := range []float64{0, 1, 7.5, 10} {
		rpe := good
		assert.NoError(t, s.UpdateSet(exID, setID, models.SetPatch{RPE: &rpe}), "rpe %v", good)
	}
	assert.ErrorIs(t, s.UpdateSet(exID, "missing", models.SetPatch{}), ErrSetNotFound)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)
	addExercise(t, s, benchID, "Bench Press")

	snap, err := s.Active()
	require.NoError(t, err)
	snap.Exercises[0].Sets[0].Reps = 99
	snap.Exercises[0].Name = "changed"

	again, err := s.Active()
	require.NoError(t, err)
	assert.Equal(t, "Bench Press", again.Exercises[0].Name)
	assert.Zero(t, again.Exercises[0].Sets[0].Reps)
}

func TestMoveExerciseClamps(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)
	a := addExercise(t, s, benchID, "Bench Press")
	b := addExercise(t, s, rowID, "Barbell Row")
	c := addExercise(t, s, squatID, "Squat")

	require.NoError(t, s.MoveExercise(c, -4))
	require.NoError(t, s.MoveExercise(a, 100))
	assert.ErrorIs(t, s.MoveExercise("missing", 0), ErrExerciseNotFound)

	sess, _ := s.Active()
	var order []string
	for _, ex := range sess.Exercises {
		order = append(order, ex.ID)
	}
	assert.Equal(t, []string{c, b, a}, order)
}

// TestSupersetCleanup verifies that a superset left with a single member is
// dissolved, whether by removal, ungrouping, or regrouping.
func TestSupersetCleanup(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)
	a := addExercise(t, s, benchID, "Bench Press")
	b := addExercise(t, s, rowID, "Barbell Row")
	c := addExercise(t, s, squatID, "Squat")

	_, err = s.GroupSuperset(a)
	assert.ErrorIs(t, err, ErrInvalidSuperset)
	_, err = s.GroupSuperset(a, a)
	assert.ErrorIs(t, err, ErrInvalidSuperset)
	_, err = s.GroupSuperset(a, "missing")
	assert.ErrorIs(t, err, ErrExerciseNotFound)

	g1, err := s.GroupSuperset(a, b)
	require.NoError(t, err)
	require.NoError(t, s.RemoveExercise(b))

	sess, _ := s.Active()
	assert.Empty(t, sess.Exercises[0].SupersetID, "lone member is ungrouped")

	c2 := addExercise(t, s, rowID, "Barbell Row")
	g2, err := s.GroupSuperset(a, c)
	require.NoError(t, err)
	assert.NotEqual(t, g1, g2)

	// Moving c into a new group with c2 leaves a alone in g2.
	g3, err := s.GroupSuperset(c, c2)
	require.NoError(t, err)

	sess, _ = s.Active()
	groups := map[string]string{}
	for _, ex := range sess.Exercises {
		groups[ex.ID] = ex.SupersetID
	}
	assert.Empty(t, groups[a])
	assert.Equal(t, g3, groups[c])
	assert.Equal(t, g3, groups[c2])

	require.NoError(t, s.Ungroup(c))
	sess, _ = s.Active()
	for _, ex := range sess.Exercises {
		assert.Empty(t, ex.SupersetID)
	}
}

// TestSaveSharedSuperset covers the save scenario: two exercises sharing a
// local superset id produce exactly one new grouping id shared by both rows,
// and the ungrouped exercise gets none.
func TestSaveSharedSuperset(t *testing.T) {
	saver := &fakeSaver{}
	s, clock := newTestStore(t, saver)
	started, err := s.Start("Upper")
	require.NoError(t, err)
	a := addExercise(t, s, benchID, "Bench Press")
	b := addExercise(t, s, rowID, "Barbell Row")
	addExercise(t, s, "custom-landmine", "Landmine Press")
	local, err := s.GroupSuperset(a, b)
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	workout, err := s.Save(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, started.ID, workout.ID)
	assert.Equal(t, 7, workout.UserID)
	assert.Equal(t, 45*60, workout.DurationSec)

	require.Len(t, saver.plans, 1)
	plan := saver.plans[0]
	require.Len(t, plan.SupersetGroups, 1)
	group := plan.SupersetGroups[0].ID
	assert.NotEqual(t, local, group.String(), "persisted grouping id is freshly generated")
	assert.Equal(t, started.ID, plan.SupersetGroups[0].WorkoutID)

	require.Len(t, plan.Exercises, 3)
	require.NotNil(t, plan.Exercises[0].SupersetGroupID)
	require.NotNil(t, plan.Exercises[1].SupersetGroupID)
	assert.Equal(t, group, *plan.Exercises[0].SupersetGroupID)
	assert.Equal(t, group, *plan.Exercises[1].SupersetGroupID)
	assert.Nil(t, plan.Exercises[2].SupersetGroupID)
	assert.Nil(t, plan.Exercises[2].ExerciseID)
	require.NotNil(t, plan.Exercises[2].CustomExerciseID)
	assert.Equal(t, "custom-landmine", *plan.Exercises[2].CustomExerciseID)

	_, err = s.Active()
	assert.ErrorIs(t, err, ErrNoActiveSession, "session is discarded after a successful save")
}

// TestSaveSeparateSupersets verifies each grouping gets its own persisted id.
func TestSaveSeparateSupersets(t *testing.T) {
	saver := &fakeSaver{}
	s, _ := newTestStore(t, saver)
	_, err := s.Start("Full Body")
	require.NoError(t, err)
	a := addExercise(t, s, benchID, "Bench Press")
	b := addExercise(t, s, rowID, "Barbell Row")
	c := addExercise(t, s, "custom-curl", "Cable Curl")
	d := addExercise(t, s, "custom-pushdown", "Rope Pushdown")
	addExercise(t, s, "custom-plank", "Plank")
	first, err := s.GroupSuperset(a, b)
	require.NoError(t, err)
	second, err := s.GroupSuperset(c, d)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = s.Save(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, saver.plans, 1)
	plan := saver.plans[0]
	require.Len(t, plan.SupersetGroups, 2)
	assert.NotEqual(t, plan.SupersetGroups[0].ID, plan.SupersetGroups[1].ID)

	require.Len(t, plan.Exercises, 5)
	for i := 0; i < 4; i++ {
		require.NotNil(t, plan.Exercises[i].SupersetGroupID, "exercise %d", i)
	}
	assert.Equal(t, *plan.Exercises[0].SupersetGroupID, *plan.Exercises[1].SupersetGroupID)
	assert.Equal(t, *plan.Exercises[2].SupersetGroupID, *plan.Exercises[3].SupersetGroupID)
	assert.NotEqual(t, *plan.Exercises[0].SupersetGroupID, *plan.Exercises[2].SupersetGroupID)
	assert.Equal(t, plan.SupersetGroups[0].ID, *plan.Exercises[0].SupersetGroupID)
	assert.Equal(t, plan.SupersetGroups[1].ID, *plan.Exercises[2].SupersetGroupID)
	assert.Nil(t, plan.Exercises[4].SupersetGroupID)
}

// TestSaveFailureKeepsSession verifies a failed save is reported and the
// session stays active instead of being treated as saved.
func TestSaveFailureKeepsSession(t *testing.T) {
	boom := errors.New("insert workout_sets: connection reset")
	saver := &fakeSaver{err: boom}

	var observed []error
	clock := &fakeClock{t: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)}
	s := NewStore(saver, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(clock.Now), WithIDs(seqIDs()),
		WithSaveObserver(func(_ time.Duration, err error) { observed = append(observed, err) }),
	)
	_, err := s.Start("Push")
	require.NoError(t, err)
	addExercise(t, s, benchID, "Bench Press")

	_, err = s.Save(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	sess, err := s.Active()
	require.NoError(t, err)
	assert.Len(t, sess.Exercises, 1)
	require.Len(t, observed, 1)
	assert.ErrorIs(t, observed[0], boom)

	// A retry after the backend recovers succeeds and clears the session.
	saver.err = nil
	_, err = s.Save(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, s.HasActive())
}

func TestSaveEmptySession(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	_, err := s.Start("")
	require.NoError(t, err)

	_, err = s.Save(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEmptySession)
	assert.True(t, s.HasActive())
}

func TestSaveExcludesPausedTime(t *testing.T) {
	saver := &fakeSaver{}
	s, clock := newTestStore(t, saver)
	_, err := s.Start("")
	require.NoError(t, err)
	addExercise(t, s, benchID, "Bench Press")

	clock.Advance(20 * time.Minute)
	require.NoError(t, s.Pause())
	clock.Advance(time.Hour)

	workout, err := s.Save(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 20*60, workout.DurationSec)
}

func TestStartFromRoutine(t *testing.T) {
	s, _ := newTestStore(t, &fakeSaver{})
	target := 60.0
	routine := &models.Routine{
		ID:   uuid.MustParse("0e6f2d3c-1b4a-4f5e-8d7c-6b5a49382716"),
		Name: "Pull Day",
		Exercises: []models.RoutineExercise{
			{Position: 2, ExerciseID: squatID, Name: "Squat", TargetSets: 0, TargetReps: 5},
			{Position: 0, ExerciseID: rowID, Name: "Barbell Row", TargetSets: 3, TargetReps: 8, TargetWeightKg: &target, SupersetKey: "A"},
			{Position: 1, ExerciseID: benchID, Name: "Bench Press", TargetSets: 2, TargetReps: 10, SupersetKey: "A"},
		},
	}

	sess, err := s.StartFromRoutine(routine)
	require.NoError(t, err)
	assert.Equal(t, "Pull Day", sess.Name)
	require.NotNil(t, sess.RoutineID)
	assert.Equal(t, routine.ID, *sess.RoutineID)

	require.Len(t, sess.Exercises, 3)
	assert.Equal(t, "Barbell Row", sess.Exercises[0].Name)
	assert.Equal(t, "Bench Press", sess.Exercises[1].Name)
	assert.Equal(t, "Squat", sess.Exercises[2].Name)

	assert.NotEmpty(t, sess.Exercises[0].SupersetID)
	assert.Equal(t, sess.Exercises[0].SupersetID, sess.Exercises[1].SupersetID)
	assert.Empty(t, sess.Exercises[2].SupersetID)

	require.Len(t, sess.Exercises[0].Sets, 3)
	assert.Equal(t, 60.0, sess.Exercises[0].Sets[0].WeightKg)
	assert.Equal(t, 8, sess.Exercises[0].Sets[2].Reps)
	assert.Len(t, sess.Exercises[2].Sets, 1, "at least one set per exercise")
	for _, ex := range sess.Exercises {
		for _, set := range ex.Sets {
			assert.False(t, set.Completed)
		}
	}

	_, err = s.StartFromRoutine(routine)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestDiscard(t *testing.T) {
	saver := &fakeSaver{}
	s, _ := newTestStore(t, saver)
	_, err := s.Start("")
	require.NoError(t, err)
	addExercise(t, s, benchID, "Bench Press")

	require.NoError(t, s.Discard())
	assert.False(t, s.HasActive())
	assert.Empty(t, saver.plans)

	_, err = s.Start("Again")
	assert.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&fakeSaver{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	a := r.For(1)
	assert.Same(t, a, r.For(1))
	b := r.For(2)
	assert.NotSame(t, a, b)

	assert.Equal(t, 0, r.ActiveCount())
	_, err := a.Start("")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ActiveCount())

	_, err = b.Active()
	assert.ErrorIs(t, err, ErrNoActiveSession, "sessions are per user")
}
