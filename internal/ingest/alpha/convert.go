package alpha

import (
	"context"
	"fmt"
	"math"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
)

// Source is the workouts.source value of imported workouts.
const Source = "alpha_progression"

// Resolver maps an exported exercise name onto a catalog or custom exercise.
type Resolver interface {
	ResolveName(ctx context.Context, name string) (models.ExerciseRef, error)
}

// RPEFromRIR converts reps in reserve to an exertion score: RPE = 10 - RIR.
// Untracked RIR yields nil.
func RPEFromRIR(rir float64) *float64 {
	if rir < 0 {
		return nil
	}
	rpe := math.Max(1, 10-rir)
	return &rpe
}

// ToPlan converts an exported session into workout rows. Warmup sets are
// dropped; working sets are recorded as completed. Exercises without
// working sets are skipped.
func ToPlan(ctx context.Context, s Session, userID int, res Resolver, newID func() uuid.UUID) (*models.WorkoutPlan, error) {
	workoutID := newID()
	plan := &models.WorkoutPlan{
		Workout: models.WorkoutRow{
			ID:          workoutID,
			UserID:      userID,
			Name:        s.Name,
			StartedAt:   s.Date,
			DurationSec: int(s.Duration.Seconds()),
			Source:      Source,
		},
	}

	for _, ex := range s.Exercises {
		working := make([]Set, 0, len(ex.Sets))
		for _, set := range ex.Sets {
			if !set.IsWarmup {
				working = append(working, set)
			}
		}
		if len(working) == 0 {
			continue
		}

		ref, err := res.ResolveName(ctx, ex.Name)
		if err != nil {
			return nil, fmt.Errorf("resolving exercise %q: %w", ex.Name, err)
		}

		row := models.WorkoutExerciseRow{
			ID:        newID(),
			WorkoutID: workoutID,
			Position:  len(plan.Exercises),
			Name:      ref.Name,
			Notes:     exerciseNotes(ex),
		}
		if models.IsCustomExerciseID(ref.ExerciseID) {
			custom := ref.ExerciseID
			row.CustomExerciseID = &custom
		} else {
			id, err := uuid.Parse(ref.ExerciseID)
			if err != nil {
				return nil, fmt.Errorf("exercise %q has invalid id %q: %w", ex.Name, ref.ExerciseID, err)
			}
			row.ExerciseID = &id
		}
		plan.Exercises = append(plan.Exercises, row)

		for i, set := range working {
			plan.Sets = append(plan.Sets, models.WorkoutSetRow{
				ID:                newID(),
				WorkoutExerciseID: row.ID,
				Position:          i,
				WeightKg:          set.WeightKg,
				Reps:              set.Reps,
				RPE:               RPEFromRIR(set.RIR),
				Completed:         true,
			})
		}
	}
	return plan, nil
}

func exerciseNotes(ex Exercise) string {
	notes := ""
	if ex.Equipment != "" {
		notes = ex.Equipment
	}
	if ex.TargetReps > 0 {
		notes = joinNote(notes, fmt.Sprintf("target %d reps", ex.TargetReps))
	}
	if ex.Modifiers != "" {
		notes = joinNote(notes, ex.Modifiers)
	}
	for _, set := range ex.Sets {
		if set.IsBodyweightPlus && !set.IsWarmup {
			notes = joinNote(notes, "bodyweight plus load")
			break
		}
	}
	return notes
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + " · " + b
}
