// Package session holds the in-progress workout state machine: timer
// accounting, exercise and set mutation, superset grouping, and saving.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNoActiveSession  = errors.New("no active session")
	ErrSessionActive    = errors.New("a session is already active")
	ErrAlreadyPaused    = errors.New("session is already paused")
	ErrNotPaused        = errors.New("session is not paused")
	ErrExerciseNotFound = errors.New("exercise not found in session")
	ErrSetNotFound      = errors.New("set not found")
	ErrInvalidSet       = errors.New("invalid set values")
	ErrInvalidExercise  = errors.New("invalid exercise reference")
	ErrInvalidSuperset  = errors.New("a superset needs at least two distinct exercises")
	ErrEmptySession     = errors.New("session has no exercises")
)

// DefaultName is used when a session is started without a name.
const DefaultName = "Workout"

// Saver persists a workout plan. Implementations must be all-or-nothing.
type Saver interface {
	SaveWorkout(ctx context.Context, plan *models.WorkoutPlan) error
}

// SaveObserver is notified after every save attempt.
type SaveObserver func(took time.Duration, err error)

// Store holds at most one active session for a single user.
type Store struct {
	mu     sync.Mutex
	active *models.Session

	saver    Saver
	log      *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
	observer SaveObserver
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs replaces uuid.New for session, exercise, set and grouping ids.
func WithIDs(newID func() uuid.UUID) Option {
	return func(s *Store) { s.newID = newID }
}

// WithSaveObserver registers a callback for save attempts.
func WithSaveObserver(fn SaveObserver) Option {
	return func(s *Store) { s.observer = fn }
}

// NewStore creates an empty Store.
func NewStore(saver Saver, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		saver: saver,
		log:   log,
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins an empty running session.
func (s *Store) Start(name string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrSessionActive
	}
	if name == "" {
		name = DefaultName
	}
	now := s.now()
	s.active = &models.Session{
		ID:        s.newID(),
		StartedAt: now,
		Name:      name,
		Exercises: []models.SessionExercise{},
		ResumedAt: &now,
	}
	s.log.Info("session started", "session_id", s.active.ID, "name", name)
	return s.active.Clone(), nil
}

// StartFromRoutine begins a running session prefilled with the routine's
// exercises and target sets.
func (s *Store) StartFromRoutine(routine *models.Routine) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrSessionActive
	}

	slots := slices.Clone(routine.Exercises)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })

	groups := map[string]string{}
	exercises := make([]models.SessionExercise, 0, len(slots))
	for _, slot := range slots {
		if !validExerciseID(slot.ExerciseID) {
			return nil, fmt.Errorf("routine exercise %q: %w", slot.Name, ErrInvalidExercise)
		}
		ex := models.SessionExercise{
			ID:         s.newID().String(),
			ExerciseID: slot.ExerciseID,
			Name:       slot.Name,
		}
		if slot.SupersetKey != "" {
			local, ok := groups[slot.SupersetKey]
			if !ok {
				local = s.newID().String()
				groups[slot.SupersetKey] = local
			}
			ex.SupersetID = local
		}
		n := max(slot.TargetSets, 1)
		for range n {
			set := models.SessionSet{ID: s.newID().String(), Reps: slot.TargetReps}
			if slot.TargetWeightKg != nil {
				set.WeightKg = *slot.TargetWeightKg
			}
			ex.Sets = append(ex.Sets, set)
		}
		exercises = append(exercises, ex)
	}

	now := s.now()
	routineID := routine.ID
	name := routine.Name
	if name == "" {
		name = DefaultName
	}
	s.active = &models.Session{
		ID:        s.newID(),
		StartedAt: now,
		RoutineID: &routineID,
		Name:      name,
		Exercises: exercises,
		ResumedAt: &now,
	}
	cleanupSupersets(s.active)
	s.log.Info("session started from routine", "session_id", s.active.ID, "routine_id", routine.ID)
	return s.active.Clone(), nil
}

// Active returns a copy of the active session.
func (s *Store) Active() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSession
	}
	return s.active.Clone(), nil
}

// View returns the active session together with its timer state.
func (s *Store) View() (models.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return models.SessionView{}, ErrNoActiveSession
	}
	return models.NewSessionView(s.active.Clone(), s.now()), nil
}

// Elapsed returns the session's running time so far.
func (s *Store) Elapsed() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return 0, ErrNoActiveSession
	}
	return s.active.Elapsed(s.now()), nil
}

// HasActive reports whether a session is in progress.
func (s *Store) HasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Pause stops the timer, folding the current run segment into the duration.
func (s *Store) Pause() error {
	return s.mutate(func(sess *models.Session) error {
		if sess.Paused() {
			return ErrAlreadyPaused
		}
		now := s.now()
		sess.Duration = sess.Elapsed(now)
		sess.ResumedAt = nil
		return nil
	})
}

// Resume restarts the timer.
func (s *Store) Resume() error {
	return s.mutate(func(sess *models.Session) error {
		if !sess.Paused() {
			return ErrNotPaused
		}
		now := s.now()
		sess.ResumedAt = &now
		return nil
	})
}

// Rename sets the session name. An empty name restores the default.
func (s *Store) Rename(name string) error {
	return s.mutate(func(sess *models.Session) error {
		if name == "" {
			name = DefaultName
		}
		sess.Name = name
		return nil
	})
}

// SetNotes replaces the session notes.
func (s *Store) SetNotes(notes string) error {
	return s.mutate(func(sess *models.Session) error {
		sess.Notes = notes
		return nil
	})
}

// AddExercise appends an exercise with one empty set and returns its id.
func (s *Store) AddExercise(ref models.ExerciseRef) (string, error) {
	if !validExerciseID(ref.ExerciseID) || ref.Name == "" {
		return "", ErrInvalidExercise
	}
	var id string
	err := s.mutate(func(sess *models.Session) error {
		id = s.newID().String()
		sess.Exercises = append(sess.Exercises, models.SessionExercise{
			ID:         id,
			ExerciseID: ref.ExerciseID,
			Name:       ref.Name,
			Sets:       []models.SessionSet{{ID: s.newID().String()}},
		})
		return nil
	})
	return id, err
}

// RemoveExercise drops an exercise and dissolves any superset it leaves
// with a single member.
func (s *Store) RemoveExercise(exerciseID string) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		sess.Exercises = slices.Delete(sess.Exercises, i, i+1)
		cleanupSupersets(sess)
		return nil
	})
}

// MoveExercise moves an exercise to index, clamped to the list bounds.
func (s *Store) MoveExercise(exerciseID string, index int) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		ex := sess.Exercises[i]
		sess.Exercises = slices.Delete(sess.Exercises, i, i+1)
		index = min(max(index, 0), len(sess.Exercises))
		sess.Exercises = slices.Insert(sess.Exercises, index, ex)
		return nil
	})
}

// SetExerciseNotes replaces one exercise's notes.
func (s *Store) SetExerciseNotes(exerciseID, notes string) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		sess.Exercises[i].Notes = notes
		return nil
	})
}

// AddSet appends a set that copies weight and reps from the previous one.
func (s *Store) AddSet(exerciseID string) (string, error) {
	var id string
	err := s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		ex := &sess.Exercises[i]
		set := models.SessionSet{ID: s.newID().String()}
		if n := len(ex.Sets); n > 0 {
			set.WeightKg = ex.Sets[n-1].WeightKg
			set.Reps = ex.Sets[n-1].Reps
		}
		ex.Sets = append(ex.Sets, set)
		id = set.ID
		return nil
	})
	return id, err
}

// UpdateSet applies the non-nil fields of patch.
func (s *Store) UpdateSet(exerciseID, setID string, patch models.SetPatch) error {
	if patch.WeightKg != nil && *patch.WeightKg < 0 {
		return ErrInvalidSet
	}
	if patch.Reps != nil && *patch.Reps < 0 {
		return ErrInvalidSet
	}
	if patch.RPE != nil && !validRPE(*patch.RPE) {
		return ErrInvalidSet
	}
	return s.mutateSet(exerciseID, setID, func(set *models.SessionSet) {
		if patch.WeightKg != nil {
			set.WeightKg = *patch.WeightKg
		}
		if patch.Reps != nil {
			set.Reps = *patch.Reps
		}
		if patch.RPE != nil {
			set.RPE = *patch.RPE
		}
		if patch.Completed != nil {
			set.Completed = *patch.Completed
		}
	})
}

// validRPE accepts 0 (not recorded) or 1..10 in half steps.
func validRPE(rpe float64) bool {
	if rpe == 0 {
		return true
	}
	return rpe >= 1 && rpe <= 10 && math.Mod(rpe*2, 1) == 0
}

// ToggleSet flips a set's completion flag.
func (s *Store) ToggleSet(exerciseID, setID string) error {
	return s.mutateSet(exerciseID, setID, func(set *models.SessionSet) {
		set.Completed = !set.Completed
	})
}

// RemoveSet drops a set from an exercise.
func (s *Store) RemoveSet(exerciseID, setID string) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		ex := &sess.Exercises[i]
		j := slices.IndexFunc(ex.Sets, func(set models.SessionSet) bool { return set.ID == setID })
		if j < 0 {
			return ErrSetNotFound
		}
		ex.Sets = slices.Delete(ex.Sets, j, j+1)
		return nil
	})
}

// GroupSuperset puts the given exercises into a new superset and returns
// its local id. Exercises already grouped are moved out of their old group.
func (s *Store) GroupSuperset(exerciseIDs ...string) (string, error) {
	ids := slices.Clone(exerciseIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) < 2 {
		return "", ErrInvalidSuperset
	}

	var group string
	err := s.mutate(func(sess *models.Session) error {
		idx := make([]int, 0, len(ids))
		for _, id := range ids {
			i := indexOfExercise(sess, id)
			if i < 0 {
				return fmt.Errorf("%s: %w", id, ErrExerciseNotFound)
			}
			idx = append(idx, i)
		}
		group = s.newID().String()
		for _, i := range idx {
			sess.Exercises[i].SupersetID = group
		}
		cleanupSupersets(sess)
		return nil
	})
	return group, err
}

// Ungroup removes an exercise from its superset.
func (s *Store) Ungroup(exerciseID string) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		sess.Exercises[i].SupersetID = ""
		cleanupSupersets(sess)
		return nil
	})
}

// Discard drops the active session without saving it.
func (s *Store) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSession
	}
	s.log.Info("session discarded", "session_id", s.active.ID)
	s.active = nil
	return nil
}

// Save persists the active session for userID. The session is cleared only
// when the saver reports success; on failure it stays active so the caller
// can retry.
func (s *Store) Save(ctx context.Context, userID int) (*models.WorkoutRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSession
	}
	if len(s.active.Exercises) == 0 {
		return nil, ErrEmptySession
	}

	plan, err := BuildPlan(s.active, userID, s.now(), s.newID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.saver.SaveWorkout(ctx, plan)
	if s.observer != nil {
		s.observer(time.Since(start), err)
	}
	if err != nil {
		s.log.Error("session save failed", "session_id", s.active.ID, "error", err)
		return nil, fmt.Errorf("saving session: %w", err)
	}

	s.log.Info("session saved",
		"session_id", s.active.ID,
		"exercises", len(plan.Exercises),
		"sets", len(plan.Sets),
		"supersets", len(plan.SupersetGroups),
	)
	s.active = nil
	return &plan.Workout, nil
}

func (s *Store) mutate(fn func(sess *models.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSession
	}
	return fn(s.active)
}

func (s *Store) mutateSet(exerciseID, setID string, fn func(set *models.SessionSet)) error {
	return s.mutate(func(sess *models.Session) error {
		i := indexOfExercise(sess, exerciseID)
		if i < 0 {
			return ErrExerciseNotFound
		}
		ex := &sess.Exercises[i]
		j := slices.IndexFunc(ex.Sets, func(set models.SessionSet) bool { return set.ID == setID })
		if j < 0 {
			return ErrSetNotFound
		}
		fn(&ex.Sets[j])
		return nil
	})
}

func indexOfExercise(sess *models.Session, id string) int {
	return slices.IndexFunc(sess.Exercises, func(ex models.SessionExercise) bool { return ex.ID == id })
}

// cleanupSupersets clears superset ids shared by fewer than two exercises.
func cleanupSupersets(sess *models.Session) {
	counts := map[string]int{}
	for _, ex := range sess.Exercises {
		if ex.SupersetID != "" {
			counts[ex.SupersetID]++
		}
	}
	for i := range sess.Exercises {
		if id := sess.Exercises[i].SupersetID; id != "" && counts[id] < 2 {
			sess.Exercises[i].SupersetID = ""
		}
	}
}

func validExerciseID(id string) bool {
	if models.IsCustomExerciseID(id) {
		return len(id) > len(models.CustomExercisePrefix)
	}
	_, err := uuid.Parse(id)
	return err == nil
}
