package mcp

import (
	"context"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListWorkouts(ctx context.Context, userID, page, size int) ([]storage.WorkoutSummary, error)
	GetWorkout(ctx context.Context, workoutID uuid.UUID, userID int) (*storage.WorkoutDetail, error)
	ListRoutines(ctx context.Context, userID int) ([]models.Routine, error)
	ListExercises(ctx context.Context, f storage.ExerciseFilter) ([]models.ExerciseDefinition, error)
	ExerciseHistory(ctx context.Context, exerciseRef string, userID, limit int) ([]storage.ExerciseSession, error)
	PersonalRecords(ctx context.Context, exerciseRef string, userID int) (*storage.PersonalRecords, error)
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.TrainingSummaryPeriod, error)
	GetEffortDistribution(ctx context.Context, start, end time.Time, userID int) (*storage.EffortResult, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
