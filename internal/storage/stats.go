package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about a user's stored data.
type DataStats struct {
	TotalWorkouts  int64             `json:"total_workouts"`
	TotalRoutines  int64             `json:"total_routines"`
	TotalSets      int64             `json:"total_sets"`
	CompletedSets  int64             `json:"completed_sets"`
	EarliestData   *time.Time        `json:"earliest_data"`
	LatestData     *time.Time        `json:"latest_data"`
	WorkoutsByName []WorkoutNameStat `json:"workouts_by_name"`
}

// WorkoutNameStat holds summary stats for workouts sharing a name.
type WorkoutNameStat struct {
	Name          string  `json:"name"`
	Count         int64   `json:"count"`
	TotalDuration float64 `json:"total_duration_sec"`
}

// GetDataStats returns aggregate statistics for a user's stored data.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{WorkoutsByName: []WorkoutNameStat{}}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(started_at), MAX(started_at) FROM workouts WHERE user_id = $1`, userID,
	).Scan(&stats.TotalWorkouts, &stats.EarliestData, &stats.LatestData)
	if err != nil {
		return nil, fmt.Errorf("counting workouts: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM routines WHERE user_id = $1`, userID,
	).Scan(&stats.TotalRoutines)
	if err != nil {
		return nil, fmt.Errorf("counting routines: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE ws.completed)
		 FROM workout_sets ws
		 JOIN workout_exercises we ON we.id = ws.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.user_id = $1`, userID,
	).Scan(&stats.TotalSets, &stats.CompletedSets)
	if err != nil {
		return nil, fmt.Errorf("counting sets: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT name, COUNT(*), COALESCE(SUM(duration_sec), 0)
		 FROM workouts
		 WHERE user_id = $1
		 GROUP BY name
		 ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying workouts by name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s WorkoutNameStat
		if err := rows.Scan(&s.Name, &s.Count, &s.TotalDuration); err != nil {
			return nil, fmt.Errorf("scanning workout name stat: %w", err)
		}
		stats.WorkoutsByName = append(stats.WorkoutsByName, s)
	}
	return stats, rows.Err()
}
