package session

import (
	"fmt"
	"math"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
)

// SourceSession marks workouts recorded through a live session.
const SourceSession = "session"

// BuildPlan translates a session into the rows that persist it. Every
// distinct local superset id gets exactly one new grouping id, shared by all
// of its exercises; ungrouped exercises get none. The workout reuses the
// session id so a retried save targets the same row.
func BuildPlan(sess *models.Session, userID int, now time.Time, newID func() uuid.UUID) (*models.WorkoutPlan, error) {
	name := sess.Name
	if name == "" {
		name = DefaultName
	}

	plan := &models.WorkoutPlan{
		Workout: models.WorkoutRow{
			ID:          sess.ID,
			UserID:      userID,
			RoutineID:   sess.RoutineID,
			Name:        name,
			StartedAt:   sess.StartedAt,
			DurationSec: int(math.Round(sess.Elapsed(now).Seconds())),
			Notes:       sess.Notes,
			Source:      SourceSession,
		},
	}

	groups := map[string]uuid.UUID{}
	for pos, ex := range sess.Exercises {
		row := models.WorkoutExerciseRow{
			ID:        newID(),
			WorkoutID: sess.ID,
			Position:  pos,
			Name:      ex.Name,
			Notes:     ex.Notes,
		}

		if models.IsCustomExerciseID(ex.ExerciseID) {
			custom := ex.ExerciseID
			row.CustomExerciseID = &custom
		} else {
			id, err := uuid.Parse(ex.ExerciseID)
			if err != nil {
				return nil, fmt.Errorf("exercise %q: %w", ex.Name, ErrInvalidExercise)
			}
			row.ExerciseID = &id
		}

		if ex.SupersetID != "" {
			gid, ok := groups[ex.SupersetID]
			if !ok {
				gid = newID()
				groups[ex.SupersetID] = gid
				plan.SupersetGroups = append(plan.SupersetGroups, models.SupersetGroupRow{
					ID:        gid,
					WorkoutID: sess.ID,
				})
			}
			row.SupersetGroupID = &gid
		}
		plan.Exercises = append(plan.Exercises, row)

		for setPos, set := range ex.Sets {
			setRow := models.WorkoutSetRow{
				ID:                newID(),
				WorkoutExerciseID: row.ID,
				Position:          setPos,
				WeightKg:          set.WeightKg,
				Reps:              set.Reps,
				Completed:         set.Completed,
			}
			if set.RPE > 0 {
				rpe := set.RPE
				setRow.RPE = &rpe
			}
			plan.Sets = append(plan.Sets, setRow)
		}
	}

	return plan, nil
}
