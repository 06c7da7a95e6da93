package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CustomExercisePrefix marks exercise references that point at a user-defined
// exercise instead of the canonical catalog.
const CustomExercisePrefix = "custom-"

// IsCustomExerciseID reports whether id refers to a user-defined exercise.
func IsCustomExerciseID(id string) bool {
	return strings.HasPrefix(id, CustomExercisePrefix)
}

// Session is an in-progress workout held in memory until it is saved.
type Session struct {
	ID        uuid.UUID         `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	RoutineID *uuid.UUID        `json:"routine_id,omitempty"`
	Name      string            `json:"name"`
	Exercises []SessionExercise `json:"exercises"`
	Notes     string            `json:"notes,omitempty"`

	// Duration is the running time accumulated before the current run segment.
	Duration time.Duration `json:"-"`
	// ResumedAt is the start of the current run segment, nil while paused.
	ResumedAt *time.Time `json:"-"`
}

// Paused reports whether the session timer is stopped.
func (s *Session) Paused() bool {
	return s.ResumedAt == nil
}

// Elapsed returns the total running time of the session at now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.ResumedAt == nil {
		return s.Duration
	}
	run := now.Sub(*s.ResumedAt)
	if run < 0 {
		run = 0
	}
	return s.Duration + run
}

// Clone returns a deep copy safe to hand out of a lock.
func (s *Session) Clone() *Session {
	c := *s
	if s.RoutineID != nil {
		id := *s.RoutineID
		c.RoutineID = &id
	}
	if s.ResumedAt != nil {
		t := *s.ResumedAt
		c.ResumedAt = &t
	}
	c.Exercises = make([]SessionExercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		c.Exercises[i] = ex
		c.Exercises[i].Sets = append([]SessionSet(nil), ex.Sets...)
	}
	return &c
}

// SessionExercise is one exercise slot within a session.
type SessionExercise struct {
	ID         string       `json:"id"`
	ExerciseID string       `json:"exercise_id"`
	Name       string       `json:"name"`
	Notes      string       `json:"notes,omitempty"`
	SupersetID string       `json:"superset_id,omitempty"`
	Sets       []SessionSet `json:"sets"`
}

// SessionSet is a single set. RPE 0 means exertion was not recorded.
type SessionSet struct {
	ID        string  `json:"id"`
	WeightKg  float64 `json:"weight_kg"`
	Reps      int     `json:"reps"`
	RPE       float64 `json:"rpe"`
	Completed bool    `json:"completed"`
}

// SessionView is the JSON shape returned to clients for the active session.
type SessionView struct {
	*Session
	Paused     bool    `json:"paused"`
	ElapsedSec float64 `json:"elapsed_sec"`
}

// NewSessionView renders s as seen at now.
func NewSessionView(s *Session, now time.Time) SessionView {
	return SessionView{
		Session:    s,
		Paused:     s.Paused(),
		ElapsedSec: s.Elapsed(now).Seconds(),
	}
}

// ExerciseRef identifies the exercise to add to a session.
type ExerciseRef struct {
	ExerciseID string `json:"exercise_id"`
	Name       string `json:"name"`
}

// SetPatch holds optional set field updates.
type SetPatch struct {
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	Reps      *int     `json:"reps,omitempty"`
	RPE       *float64 `json:"rpe,omitempty"`
	Completed *bool    `json:"completed,omitempty"`
}
