package storage

import (
	"context"
	"fmt"
	"time"
)

// EffortBand holds the count and share of completed sets in one RPE range.
type EffortBand struct {
	Band     string  `json:"band"`
	RPERange string  `json:"rpe_range"`
	Sets     int     `json:"sets"`
	Pct      float64 `json:"pct"`
}

// ExerciseEffort holds aggregated completed-set stats for a single exercise.
type ExerciseEffort struct {
	Name      string   `json:"name"`
	TotalSets int      `json:"total_sets"`
	TotalReps int      `json:"total_reps"`
	TonnageKg float64  `json:"tonnage_kg"`
	MaxWeight float64  `json:"max_weight_kg"`
	AvgRPE    *float64 `json:"avg_rpe,omitempty"`
}

// EffortResult is the effort distribution for a date range.
type EffortResult struct {
	Distribution   []EffortBand     `json:"distribution"`
	FailureRatePct float64          `json:"failure_rate_pct"`
	TotalSets      int              `json:"total_sets"`
	TrackedSets    int              `json:"tracked_sets"`
	Exercises      []ExerciseEffort `json:"exercises"`
}

// Band names, hardest first.
const (
	BandMax       = "max"
	BandHard      = "hard"
	BandModerate  = "moderate"
	BandEasy      = "easy"
	BandUntracked = "untracked"
)

// GetEffortDistribution buckets completed sets by RPE and summarises effort
// per exercise. Sets without an RPE count as untracked.
func (db *DB) GetEffortDistribution(ctx context.Context, start, end time.Time, userID int) (*EffortResult, error) {
	bandRows, err := db.Pool.Query(ctx,
		`SELECT band, rpe_range, sets FROM (
			SELECT
				CASE
					WHEN ws.rpe IS NULL THEN 'untracked'
					WHEN ws.rpe >= 9.5 THEN 'max'
					WHEN ws.rpe >= 8.5 THEN 'hard'
					WHEN ws.rpe >= 7 THEN 'moderate'
					ELSE 'easy'
				END AS band,
				CASE
					WHEN ws.rpe IS NULL THEN 'untracked'
					WHEN ws.rpe >= 9.5 THEN '9.5-10'
					WHEN ws.rpe >= 8.5 THEN '8.5-9'
					WHEN ws.rpe >= 7 THEN '7-8'
					ELSE '<7'
				END AS rpe_range,
				COUNT(*)::int AS sets
			FROM workout_sets ws
			JOIN workout_exercises we ON we.id = ws.workout_exercise_id
			JOIN workouts w ON w.id = we.workout_id
			WHERE w.started_at >= $1 AND w.started_at < $2
				AND w.user_id = $3
				AND ws.completed
			GROUP BY band, rpe_range
		) sub
		ORDER BY CASE band
			WHEN 'max' THEN 1
			WHEN 'hard' THEN 2
			WHEN 'moderate' THEN 3
			WHEN 'easy' THEN 4
			WHEN 'untracked' THEN 5
		END`,
		start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying effort distribution: %w", err)
	}
	defer bandRows.Close()

	var bands []EffortBand
	for bandRows.Next() {
		var b EffortBand
		if err := bandRows.Scan(&b.Band, &b.RPERange, &b.Sets); err != nil {
			return nil, fmt.Errorf("scanning effort band: %w", err)
		}
		bands = append(bands, b)
	}
	if err := bandRows.Err(); err != nil {
		return nil, err
	}

	result := summarizeBands(bands)

	exRows, err := db.Pool.Query(ctx,
		`SELECT we.name,
		        COUNT(*)::int,
		        COALESCE(SUM(ws.reps), 0)::int,
		        COALESCE(SUM(ws.weight_kg * ws.reps), 0),
		        COALESCE(MAX(ws.weight_kg), 0),
		        AVG(ws.rpe)
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.started_at >= $1 AND w.started_at < $2
		   AND w.user_id = $3
		   AND ws.completed
		 GROUP BY we.name
		 ORDER BY SUM(ws.weight_kg * ws.reps) DESC`,
		start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise effort: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var e ExerciseEffort
		if err := exRows.Scan(&e.Name, &e.TotalSets, &e.TotalReps, &e.TonnageKg, &e.MaxWeight, &e.AvgRPE); err != nil {
			return nil, fmt.Errorf("scanning exercise effort: %w", err)
		}
		result.Exercises = append(result.Exercises, e)
	}
	return result, exRows.Err()
}

// summarizeBands fills in totals and percentages. The failure rate is the
// share of tracked sets in the max band.
func summarizeBands(bands []EffortBand) *EffortResult {
	result := &EffortResult{Distribution: bands, Exercises: []ExerciseEffort{}}
	if result.Distribution == nil {
		result.Distribution = []EffortBand{}
	}

	var failureSets int
	for _, b := range bands {
		result.TotalSets += b.Sets
		if b.Band != BandUntracked {
			result.TrackedSets += b.Sets
		}
		if b.Band == BandMax {
			failureSets += b.Sets
		}
	}

	for i := range result.Distribution {
		if result.TotalSets > 0 {
			result.Distribution[i].Pct = float64(result.Distribution[i].Sets) / float64(result.TotalSets) * 100
		}
	}
	if result.TrackedSets > 0 {
		result.FailureRatePct = float64(failureSets) / float64(result.TrackedSets) * 100
	}
	return result
}
