package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange parses start and end. A missing end is now and a missing
// start is days before end.
func defaultTimeRange(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.New("start must be before end")
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// exerciseRef validates a canonical uuid or custom exercise id.
func exerciseRef(s string) (string, error) {
	s = strings.TrimSpace(s)
	if models.IsCustomExerciseID(s) {
		return s, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid exercise id %q", s)
	}
	return id.String(), nil
}

// --- Tool definitions ---

var toolGetWorkouts = mcp.NewTool("get_workouts",
	mcp.WithDescription("List saved workouts, newest first, with exercise and set counts and completed volume in kg."),
	mcp.WithNumber("page", mcp.Description("Zero-based page number. Defaults to 0.")),
	mcp.WithNumber("size", mcp.Description("Page size, at most 100. Defaults to 20.")),
)

var toolGetWorkout = mcp.NewTool("get_workout",
	mcp.WithDescription("Get one saved workout with its exercises in order, every set (weight, reps, RPE, completed) and superset group ids."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout ID (UUID)")),
)

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List workout routine templates with their exercises, target sets, reps and weights."),
)

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("Search the exercise catalog. Returns exercise IDs usable with get_exercise_history and get_personal_records."),
	mcp.WithString("query", mcp.Description("Case-insensitive name search (e.g. 'bench', 'squat')")),
	mcp.WithString("muscle_group", mcp.Description("Filter by primary muscle group (e.g. chest, back, legs)")),
	mcp.WithString("equipment", mcp.Description("Filter by equipment (e.g. Barbell, Dumbbell, Machine)")),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Per-workout history for one exercise: completed sets, total reps, volume, top set and estimated 1RM (Epley)."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise ID from list_exercises, or a custom-... ID")),
	mcp.WithNumber("limit", mcp.Description("Maximum number of workouts. Defaults to 20.")),
)

var toolGetPersonalRecords = mcp.NewTool("get_personal_records",
	mcp.WithDescription("Personal records for one exercise: heaviest completed set, most reps in a set, best estimated 1RM."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise ID from list_exercises, or a custom-... ID")),
)

var toolGetTrainingSummary = mcp.NewTool("get_training_summary",
	mcp.WithDescription("Training volume per week or month: sessions, duration, completed sets, reps, tonnage and average sets per session."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("period", mcp.Description("Aggregation period. Defaults to 'weekly'."), mcp.Enum("weekly", "monthly")),
)

var toolGetEffortDistribution = mcp.NewTool("get_effort_distribution",
	mcp.WithDescription("Distribution of completed sets across RPE bands (max, hard, moderate, easy), failure rate and per-exercise average RPE."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

// --- Tool handlers ---

func jsonResult(v any) *mcp.CallToolResult {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed")
	}
	return result
}

func (h *handlers) getWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := max(req.GetInt("page", 0), 0)
	size := req.GetInt("size", 20)
	if size <= 0 || size > 100 {
		size = 20
	}

	workouts, err := h.ds.ListWorkouts(ctx, UserIDFromContext(ctx), page, size)
	if err != nil {
		h.log.Error("mcp get_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(workouts), nil
}

func (h *handlers) getWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid workout id"), nil
	}

	workout, err := h.ds.GetWorkout(ctx, id, UserIDFromContext(ctx))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("workout not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_workout", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(workout), nil
}

func (h *handlers) listRoutines(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routines, err := h.ds.ListRoutines(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(routines), nil
}

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercises, err := h.ds.ListExercises(ctx, storage.ExerciseFilter{
		Query:       strings.TrimSpace(req.GetString("query", "")),
		MuscleGroup: req.GetString("muscle_group", ""),
		Equipment:   req.GetString("equipment", ""),
	})
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(exercises), nil
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	ref, err := exerciseRef(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}

	history, err := h.ds.ExerciseHistory(ctx, ref, UserIDFromContext(ctx), limit)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(history), nil
}

func (h *handlers) getPersonalRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	ref, err := exerciseRef(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := h.ds.PersonalRecords(ctx, ref, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_personal_records", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(records), nil
}

func (h *handlers) getTrainingSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 90)
	if err != nil {
		return mcp.NewToolResultError("invalid date range: " + err.Error()), nil
	}

	bucket := "1 week"
	switch req.GetString("period", "weekly") {
	case "weekly":
	case "monthly":
		bucket = "1 month"
	default:
		return mcp.NewToolResultError("period must be weekly or monthly"), nil
	}

	periods, err := h.ds.GetTrainingSummary(ctx, start, end, bucket, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_training_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(periods), nil
}

func (h *handlers) getEffortDistribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date range: " + err.Error()), nil
	}

	result, err := h.ds.GetEffortDistribution(ctx, start, end, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_effort_distribution", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(result), nil
}
