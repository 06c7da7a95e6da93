package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkoutRow is a row for the workouts table.
type WorkoutRow struct {
	ID          uuid.UUID  `json:"id"`
	UserID      int        `json:"user_id"`
	RoutineID   *uuid.UUID `json:"routine_id,omitempty"`
	Name        string     `json:"name"`
	StartedAt   time.Time  `json:"started_at"`
	DurationSec int        `json:"duration_sec"`
	Notes       string     `json:"notes,omitempty"`
	Source      string     `json:"source"`
}

// SupersetGroupRow is a row for the superset_groups table.
type SupersetGroupRow struct {
	ID        uuid.UUID `json:"id"`
	WorkoutID uuid.UUID `json:"workout_id"`
}

// WorkoutExerciseRow is a row for the workout_exercises table.
// Exactly one of ExerciseID and CustomExerciseID is set.
type WorkoutExerciseRow struct {
	ID               uuid.UUID  `json:"id"`
	WorkoutID        uuid.UUID  `json:"workout_id"`
	Position         int        `json:"position"`
	ExerciseID       *uuid.UUID `json:"exercise_id,omitempty"`
	CustomExerciseID *string    `json:"custom_exercise_id,omitempty"`
	Name             string     `json:"name"`
	Notes            string     `json:"notes,omitempty"`
	SupersetGroupID  *uuid.UUID `json:"superset_group_id,omitempty"`
}

// WorkoutSetRow is a row for the workout_sets table.
type WorkoutSetRow struct {
	ID                uuid.UUID `json:"id"`
	WorkoutExerciseID uuid.UUID `json:"workout_exercise_id"`
	Position          int       `json:"position"`
	WeightKg          float64   `json:"weight_kg"`
	Reps              int       `json:"reps"`
	RPE               *float64  `json:"rpe,omitempty"`
	Completed         bool      `json:"completed"`
}

// WorkoutPlan is everything needed to persist one session, in insert order.
type WorkoutPlan struct {
	Workout        WorkoutRow
	SupersetGroups []SupersetGroupRow
	Exercises      []WorkoutExerciseRow
	Sets           []WorkoutSetRow
}

// ExerciseDefinition is a canonical exercise from the catalog.
type ExerciseDefinition struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	MuscleGroup  string    `json:"muscle_group"`
	Equipment    string    `json:"equipment,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
}

// CustomExercise is a user-defined exercise kept in the local store.
type CustomExercise struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MuscleGroup string    `json:"muscle_group,omitempty"`
	Equipment   string    `json:"equipment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Routine is a reusable workout template.
type Routine struct {
	ID        uuid.UUID         `json:"id"`
	UserID    int               `json:"user_id"`
	Name      string            `json:"name"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Exercises []RoutineExercise `json:"exercises"`
}

// RoutineExercise is one exercise slot within a routine.
type RoutineExercise struct {
	Position       int      `json:"position"`
	ExerciseID     string   `json:"exercise_id"`
	Name           string   `json:"name"`
	TargetSets     int      `json:"target_sets"`
	TargetReps     int      `json:"target_reps"`
	TargetWeightKg *float64 `json:"target_weight_kg,omitempty"`
	SupersetKey    string   `json:"superset_key,omitempty"`
}
