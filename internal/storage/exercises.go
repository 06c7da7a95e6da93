package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ExerciseFilter narrows ListExercises. Empty fields match everything.
type ExerciseFilter struct {
	Query       string
	MuscleGroup string
	Equipment   string
}

// ListExercises returns catalog exercises matching the filter, ordered by name.
func (db *DB) ListExercises(ctx context.Context, f ExerciseFilter) ([]models.ExerciseDefinition, error) {
	var conds []string
	var args []any
	if f.Query != "" {
		args = append(args, f.Query)
		conds = append(conds, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if f.MuscleGroup != "" {
		args = append(args, f.MuscleGroup)
		conds = append(conds, fmt.Sprintf("muscle_group = $%d", len(args)))
	}
	if f.Equipment != "" {
		args = append(args, f.Equipment)
		conds = append(conds, fmt.Sprintf("equipment = $%d", len(args)))
	}

	query := `SELECT id, name, muscle_group, equipment, instructions FROM exercises`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	result := []models.ExerciseDefinition{}
	for rows.Next() {
		var e models.ExerciseDefinition
		if err := rows.Scan(&e.ID, &e.Name, &e.MuscleGroup, &e.Equipment, &e.Instructions); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetExercise returns one catalog exercise.
func (db *DB) GetExercise(ctx context.Context, id uuid.UUID) (*models.ExerciseDefinition, error) {
	var e models.ExerciseDefinition
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, muscle_group, equipment, instructions FROM exercises WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.MuscleGroup, &e.Equipment, &e.Instructions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying exercise: %w", err)
	}
	return &e, nil
}

// FindExerciseByName looks up a catalog exercise by case-insensitive name.
func (db *DB) FindExerciseByName(ctx context.Context, name string) (*models.ExerciseDefinition, error) {
	var e models.ExerciseDefinition
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, muscle_group, equipment, instructions FROM exercises WHERE lower(name) = lower($1)`, name,
	).Scan(&e.ID, &e.Name, &e.MuscleGroup, &e.Equipment, &e.Instructions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying exercise by name: %w", err)
	}
	return &e, nil
}

// ExerciseSession is one workout's completed work for a single exercise.
type ExerciseSession struct {
	WorkoutID    uuid.UUID `json:"workout_id"`
	WorkoutName  string    `json:"workout_name"`
	Date         time.Time `json:"date"`
	Sets         int       `json:"sets"`
	TotalReps    int       `json:"total_reps"`
	VolumeKg     float64   `json:"volume_kg"`
	TopWeightKg  float64   `json:"top_weight_kg"`
	TopReps      int       `json:"top_reps"`
	Estimated1RM float64   `json:"estimated_1rm_kg"`
}

// ExerciseHistory returns the most recent workouts containing completed sets
// of exerciseRef, which is a catalog uuid or a custom exercise id.
func (db *DB) ExerciseHistory(ctx context.Context, exerciseRef string, userID, limit int) ([]ExerciseSession, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT w.id, w.name, w.started_at, ws.weight_kg, ws.reps
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.id IN (
		     SELECT w2.id
		     FROM workouts w2
		     JOIN workout_exercises we2 ON we2.workout_id = w2.id
		     WHERE w2.user_id = $2
		       AND COALESCE(we2.exercise_id::text, we2.custom_exercise_id) = $1
		     GROUP BY w2.id
		     ORDER BY MAX(w2.started_at) DESC
		     LIMIT $3
		 )
		   AND COALESCE(we.exercise_id::text, we.custom_exercise_id) = $1
		   AND ws.completed
		 ORDER BY w.started_at DESC, we.position ASC, ws.position ASC`,
		exerciseRef, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying exercise history: %w", err)
	}
	defer rows.Close()

	result := []ExerciseSession{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var id uuid.UUID
		var name string
		var started time.Time
		var weight float64
		var reps int
		if err := rows.Scan(&id, &name, &started, &weight, &reps); err != nil {
			return nil, fmt.Errorf("scanning exercise history: %w", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(result)
			index[id] = i
			result = append(result, ExerciseSession{WorkoutID: id, WorkoutName: name, Date: started})
		}
		addSet(&result[i], weight, reps)
	}
	return result, rows.Err()
}

func addSet(s *ExerciseSession, weight float64, reps int) {
	s.Sets++
	s.TotalReps += reps
	s.VolumeKg += weight * float64(reps)
	if weight > s.TopWeightKg || (weight == s.TopWeightKg && reps > s.TopReps) {
		s.TopWeightKg = weight
		s.TopReps = reps
	}
	if e := EstimateOneRepMax(weight, reps); e > s.Estimated1RM {
		s.Estimated1RM = e
	}
}

// PersonalRecord is a single best set.
type PersonalRecord struct {
	WorkoutID uuid.UUID `json:"workout_id"`
	Date      time.Time `json:"date"`
	WeightKg  float64   `json:"weight_kg"`
	Reps      int       `json:"reps"`
	Value     float64   `json:"value"`
}

// PersonalRecords holds a user's bests for one exercise. Nil fields mean no
// completed set has been logged.
type PersonalRecords struct {
	ExerciseRef  string          `json:"exercise_ref"`
	HeaviestSet  *PersonalRecord `json:"heaviest_set"`
	MostReps     *PersonalRecord `json:"most_reps"`
	BestEstimate *PersonalRecord `json:"best_estimated_1rm"`
}

// PersonalRecords scans all completed sets of exerciseRef for the heaviest
// weight, the most reps and the best estimated one-rep max.
func (db *DB) PersonalRecords(ctx context.Context, exerciseRef string, userID int) (*PersonalRecords, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT w.id, w.started_at, ws.weight_kg, ws.reps
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.user_id = $2
		   AND COALESCE(we.exercise_id::text, we.custom_exercise_id) = $1
		   AND ws.completed
		   AND ws.reps > 0
		 ORDER BY w.started_at ASC`,
		exerciseRef, userID)
	if err != nil {
		return nil, fmt.Errorf("querying personal records: %w", err)
	}
	defer rows.Close()

	prs := &PersonalRecords{ExerciseRef: exerciseRef}
	for rows.Next() {
		var r PersonalRecord
		if err := rows.Scan(&r.WorkoutID, &r.Date, &r.WeightKg, &r.Reps); err != nil {
			return nil, fmt.Errorf("scanning personal record: %w", err)
		}
		prs.consider(r)
	}
	return prs, rows.Err()
}

// consider updates the records with r. Ties keep the earlier set.
func (p *PersonalRecords) consider(r PersonalRecord) {
	if p.HeaviestSet == nil || r.WeightKg > p.HeaviestSet.WeightKg {
		h := r
		h.Value = r.WeightKg
		p.HeaviestSet = &h
	}
	if p.MostReps == nil || r.Reps > p.MostReps.Reps {
		m := r
		m.Value = float64(r.Reps)
		p.MostReps = &m
	}
	if e := EstimateOneRepMax(r.WeightKg, r.Reps); p.BestEstimate == nil || e > p.BestEstimate.Value {
		b := r
		b.Value = e
		p.BestEstimate = &b
	}
}

// EstimateOneRepMax uses the Epley formula. A single rep is its own max.
func EstimateOneRepMax(weightKg float64, reps int) float64 {
	switch {
	case reps <= 0 || weightKg <= 0:
		return 0
	case reps == 1:
		return weightKg
	default:
		return weightKg * (1 + float64(reps)/30)
	}
}
