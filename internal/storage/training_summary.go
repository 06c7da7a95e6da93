package storage

import (
	"context"
	"fmt"
	"time"
)

// TrainingSummaryPeriod holds strength volume for one time period.
type TrainingSummaryPeriod struct {
	Period            string  `json:"period"`
	Sessions          int     `json:"sessions"`
	DurationSec       int     `json:"duration_sec"`
	CompletedSets     int     `json:"completed_sets"`
	TotalReps         int     `json:"total_reps"`
	TonnageKg         float64 `json:"tonnage_kg"`
	AvgSetsPerSession float64 `json:"avg_sets_per_session"`
}

// GetTrainingSummary returns session count and completed-set volume per
// period, newest first. bucket is "1 week" or "1 month".
func (db *DB) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]TrainingSummaryPeriod, error) {
	trunc := truncInterval(bucket)

	sessionRows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, started_at)::date AS period,
		        COUNT(*)::int,
		        COALESCE(SUM(duration_sec), 0)::int
		 FROM workouts
		 WHERE started_at >= $2 AND started_at < $3 AND user_id = $4
		 GROUP BY period
		 ORDER BY period DESC`,
		trunc, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying session summary: %w", err)
	}
	defer sessionRows.Close()

	periodMap := make(map[string]*TrainingSummaryPeriod)
	var periodOrder []string

	for sessionRows.Next() {
		var periodTime time.Time
		p := &TrainingSummaryPeriod{}
		if err := sessionRows.Scan(&periodTime, &p.Sessions, &p.DurationSec); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		p.Period = periodTime.Format("2006-01-02")
		periodMap[p.Period] = p
		periodOrder = append(periodOrder, p.Period)
	}
	if err := sessionRows.Err(); err != nil {
		return nil, err
	}

	volumeRows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, w.started_at)::date AS period,
		        COUNT(*)::int,
		        COALESCE(SUM(ws.reps), 0)::int,
		        COALESCE(SUM(ws.weight_kg * ws.reps), 0)
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.started_at >= $2 AND w.started_at < $3 AND w.user_id = $4
		   AND ws.completed
		 GROUP BY period`,
		trunc, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying volume summary: %w", err)
	}
	defer volumeRows.Close()

	for volumeRows.Next() {
		var periodTime time.Time
		var sets, reps int
		var tonnage float64
		if err := volumeRows.Scan(&periodTime, &sets, &reps, &tonnage); err != nil {
			return nil, fmt.Errorf("scanning volume summary: %w", err)
		}
		if p, ok := periodMap[periodTime.Format("2006-01-02")]; ok {
			p.CompletedSets = sets
			p.TotalReps = reps
			p.TonnageKg = tonnage
		}
	}
	if err := volumeRows.Err(); err != nil {
		return nil, err
	}

	result := make([]TrainingSummaryPeriod, 0, len(periodOrder))
	for _, key := range periodOrder {
		p := periodMap[key]
		if p.Sessions > 0 {
			p.AvgSetsPerSession = float64(p.CompletedSets) / float64(p.Sessions)
		}
		result = append(result, *p)
	}
	return result, nil
}

// truncInterval converts bucket strings like "1 month" to the interval name
// that date_trunc expects (e.g. "month", "week").
func truncInterval(bucket string) string {
	switch bucket {
	case "1 week", "week":
		return "week"
	default:
		return "month"
	}
}
