package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListRoutines returns a user's routines with their exercise slots, ordered by name.
func (db *DB) ListRoutines(ctx context.Context, userID int) ([]models.Routine, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, notes, created_at
		 FROM routines
		 WHERE user_id = $1
		 ORDER BY name ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	result := []models.Routine{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var r models.Routine
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		r.Exercises = []models.RoutineExercise{}
		index[r.ID] = len(result)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	exRows, err := db.Pool.Query(ctx,
		`SELECT re.routine_id, re.position, re.exercise_ref, re.name, re.target_sets,
		        re.target_reps, re.target_weight_kg, re.superset_key
		 FROM routine_exercises re
		 JOIN routines r ON r.id = re.routine_id
		 WHERE r.user_id = $1
		 ORDER BY re.routine_id, re.position ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying routine exercises: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var routineID uuid.UUID
		var e models.RoutineExercise
		if err := exRows.Scan(&routineID, &e.Position, &e.ExerciseID, &e.Name, &e.TargetSets,
			&e.TargetReps, &e.TargetWeightKg, &e.SupersetKey); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		if i, ok := index[routineID]; ok {
			result[i].Exercises = append(result[i].Exercises, e)
		}
	}
	return result, exRows.Err()
}

// GetRoutine retrieves a single routine owned by userID.
func (db *DB) GetRoutine(ctx context.Context, routineID uuid.UUID, userID int) (*models.Routine, error) {
	var r models.Routine
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, notes, created_at
		 FROM routines
		 WHERE id = $1 AND user_id = $2`,
		routineID, userID,
	).Scan(&r.ID, &r.UserID, &r.Name, &r.Notes, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying routine: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT position, exercise_ref, name, target_sets, target_reps, target_weight_kg, superset_key
		 FROM routine_exercises
		 WHERE routine_id = $1
		 ORDER BY position ASC`,
		routineID)
	if err != nil {
		return nil, fmt.Errorf("querying routine exercises: %w", err)
	}
	defer rows.Close()

	r.Exercises = []models.RoutineExercise{}
	for rows.Next() {
		var e models.RoutineExercise
		if err := rows.Scan(&e.Position, &e.ExerciseID, &e.Name, &e.TargetSets,
			&e.TargetReps, &e.TargetWeightKg, &e.SupersetKey); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		r.Exercises = append(r.Exercises, e)
	}
	return &r, rows.Err()
}

// CreateRoutine inserts a routine and its exercise slots in one transaction.
// Slot positions are renumbered in slice order.
func (db *DB) CreateRoutine(ctx context.Context, r *models.Routine) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO routines (id, user_id, name, notes)
			 VALUES ($1, $2, $3, $4)
			 RETURNING created_at`,
			r.ID, r.UserID, r.Name, r.Notes,
		).Scan(&r.CreatedAt); err != nil {
			return fmt.Errorf("inserting routine: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range r.Exercises {
			e := &r.Exercises[i]
			e.Position = i
			batch.Queue(
				`INSERT INTO routine_exercises (routine_id, position, exercise_ref, name, target_sets,
				 target_reps, target_weight_kg, superset_key)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				r.ID, e.Position, e.ExerciseID, e.Name, e.TargetSets, e.TargetReps, e.TargetWeightKg, e.SupersetKey)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting routine exercises: %w", err)
		}
		return nil
	})
}

// DeleteRoutine removes a routine. Workouts started from it keep their history.
func (db *DB) DeleteRoutine(ctx context.Context, routineID uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM routines WHERE id = $1 AND user_id = $2`,
		routineID, userID)
	if err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
