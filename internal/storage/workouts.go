package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveWorkout writes a session plan in a single transaction: the workout row,
// its superset groups, exercises and sets. Any failure rolls everything back.
func (db *DB) SaveWorkout(ctx context.Context, plan *models.WorkoutPlan) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		_, err := insertPlan(ctx, tx, plan, false)
		return err
	})
}

// ImportWorkout is SaveWorkout for imported history. Returns false without
// writing anything when the workout was already imported.
func (db *DB) ImportWorkout(ctx context.Context, plan *models.WorkoutPlan) (bool, error) {
	var inserted bool
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = insertPlan(ctx, tx, plan, true)
		return err
	})
	return inserted, err
}

func insertPlan(ctx context.Context, tx pgx.Tx, plan *models.WorkoutPlan, skipDuplicate bool) (bool, error) {
	w := plan.Workout
	// A routine deleted while the session was running is stored as NULL.
	query := `INSERT INTO workouts (id, user_id, routine_id, name, started_at, duration_sec, notes, source)
		 VALUES ($1,$2,(SELECT id FROM routines WHERE id = $3 AND user_id = $2),$4,$5,$6,$7,$8)`
	if skipDuplicate {
		query += ` ON CONFLICT DO NOTHING`
	}
	tag, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.RoutineID, w.Name, w.StartedAt, w.DurationSec, w.Notes, w.Source)
	if err != nil {
		return false, fmt.Errorf("inserting workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, g := range plan.SupersetGroups {
		if _, err := tx.Exec(ctx,
			`INSERT INTO superset_groups (id, workout_id) VALUES ($1, $2)`,
			g.ID, g.WorkoutID); err != nil {
			return false, fmt.Errorf("inserting superset group: %w", err)
		}
	}

	if err := insertWorkoutExercises(ctx, tx, plan.Exercises); err != nil {
		return false, err
	}
	if err := insertWorkoutSets(ctx, tx, plan.Sets); err != nil {
		return false, err
	}
	return true, nil
}

func insertWorkoutExercises(ctx context.Context, tx pgx.Tx, rows []models.WorkoutExerciseRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO workout_exercises (id, workout_id, position, exercise_id, custom_exercise_id, name, notes, superset_group_id) VALUES `
	args := make([]any, 0, len(rows)*8)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 8
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args, r.ID, r.WorkoutID, r.Position, r.ExerciseID, r.CustomExerciseID,
			r.Name, r.Notes, r.SupersetGroupID)
	}

	if _, err := tx.Exec(ctx, query+strings.Join(valueStrings, ","), args...); err != nil {
		return fmt.Errorf("inserting workout exercises: %w", err)
	}
	return nil
}

func insertWorkoutSets(ctx context.Context, tx pgx.Tx, rows []models.WorkoutSetRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO workout_sets (id, workout_exercise_id, position, weight_kg, reps, rpe, completed) VALUES `
	args := make([]any, 0, len(rows)*7)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 7
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, r.ID, r.WorkoutExerciseID, r.Position, r.WeightKg, r.Reps, r.RPE, r.Completed)
	}

	if _, err := tx.Exec(ctx, query+strings.Join(valueStrings, ","), args...); err != nil {
		return fmt.Errorf("inserting workout sets: %w", err)
	}
	return nil
}

// WorkoutSummary is a history list entry.
type WorkoutSummary struct {
	models.WorkoutRow
	ExerciseCount int     `json:"exercise_count"`
	SetCount      int     `json:"set_count"`
	CompletedSets int     `json:"completed_sets"`
	VolumeKg      float64 `json:"volume_kg"`
}

// ListWorkouts returns one page of a user's workout history, newest first.
func (db *DB) ListWorkouts(ctx context.Context, userID, page, size int) ([]WorkoutSummary, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT w.id, w.user_id, w.routine_id, w.name, w.started_at, w.duration_sec, w.notes, w.source,
		        COUNT(DISTINCT we.id)::int,
		        COUNT(ws.id)::int,
		        COUNT(ws.id) FILTER (WHERE ws.completed)::int,
		        COALESCE(SUM(ws.weight_kg * ws.reps) FILTER (WHERE ws.completed), 0)
		 FROM workouts w
		 LEFT JOIN workout_exercises we ON we.workout_id = w.id
		 LEFT JOIN workout_sets ws ON ws.workout_exercise_id = we.id
		 WHERE w.user_id = $1
		 GROUP BY w.id
		 ORDER BY w.started_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	result := []WorkoutSummary{}
	for rows.Next() {
		var s WorkoutSummary
		w := &s.WorkoutRow
		if err := rows.Scan(&w.ID, &w.UserID, &w.RoutineID, &w.Name, &w.StartedAt, &w.DurationSec,
			&w.Notes, &w.Source, &s.ExerciseCount, &s.SetCount, &s.CompletedSets, &s.VolumeKg); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// WorkoutDetail is a workout with its exercises and sets.
type WorkoutDetail struct {
	models.WorkoutRow
	Exercises []WorkoutExerciseDetail `json:"exercises"`
}

// WorkoutExerciseDetail is one persisted exercise with its sets.
type WorkoutExerciseDetail struct {
	models.WorkoutExerciseRow
	Sets []models.WorkoutSetRow `json:"sets"`
}

// GetWorkout retrieves a single workout by ID with all exercises and sets.
func (db *DB) GetWorkout(ctx context.Context, workoutID uuid.UUID, userID int) (*WorkoutDetail, error) {
	var detail WorkoutDetail
	w := &detail.WorkoutRow
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, routine_id, name, started_at, duration_sec, notes, source
		 FROM workouts
		 WHERE id = $1 AND user_id = $2`,
		workoutID, userID,
	).Scan(&w.ID, &w.UserID, &w.RoutineID, &w.Name, &w.StartedAt, &w.DurationSec, &w.Notes, &w.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workout: %w", err)
	}

	exRows, err := db.Pool.Query(ctx,
		`SELECT id, workout_id, position, exercise_id, custom_exercise_id, name, notes, superset_group_id
		 FROM workout_exercises
		 WHERE workout_id = $1
		 ORDER BY position ASC`,
		workoutID)
	if err != nil {
		return nil, fmt.Errorf("querying workout exercises: %w", err)
	}
	defer exRows.Close()

	index := map[uuid.UUID]int{}
	detail.Exercises = []WorkoutExerciseDetail{}
	for exRows.Next() {
		var e WorkoutExerciseDetail
		r := &e.WorkoutExerciseRow
		if err := exRows.Scan(&r.ID, &r.WorkoutID, &r.Position, &r.ExerciseID, &r.CustomExerciseID,
			&r.Name, &r.Notes, &r.SupersetGroupID); err != nil {
			return nil, fmt.Errorf("scanning workout exercise: %w", err)
		}
		e.Sets = []models.WorkoutSetRow{}
		index[r.ID] = len(detail.Exercises)
		detail.Exercises = append(detail.Exercises, e)
	}
	if err := exRows.Err(); err != nil {
		return nil, err
	}

	setRows, err := db.Pool.Query(ctx,
		`SELECT ws.id, ws.workout_exercise_id, ws.position, ws.weight_kg, ws.reps, ws.rpe, ws.completed
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 WHERE we.workout_id = $1
		 ORDER BY we.position ASC, ws.position ASC`,
		workoutID)
	if err != nil {
		return nil, fmt.Errorf("querying workout sets: %w", err)
	}
	defer setRows.Close()

	for setRows.Next() {
		var s models.WorkoutSetRow
		if err := setRows.Scan(&s.ID, &s.WorkoutExerciseID, &s.Position, &s.WeightKg, &s.Reps, &s.RPE, &s.Completed); err != nil {
			return nil, fmt.Errorf("scanning workout set: %w", err)
		}
		if i, ok := index[s.WorkoutExerciseID]; ok {
			detail.Exercises[i].Sets = append(detail.Exercises[i].Sets, s)
		}
	}

	return &detail, setRows.Err()
}

// DeleteWorkout removes a workout and, by cascade, its exercises and sets.
func (db *DB) DeleteWorkout(ctx context.Context, workoutID uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM workouts WHERE id = $1 AND user_id = $2`,
		workoutID, userID)
	if err != nil {
		return fmt.Errorf("deleting workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
