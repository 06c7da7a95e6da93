package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/google/uuid"
)

// HTTPClient implements DataSource by calling the IronLog REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). The server
// resolves the user from the tailnet identity, so userID arguments are ignored.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// bucketToPeriod maps storage bucket sizes to the REST API period parameter.
func bucketToPeriod(bucket string) string {
	if bucket == "1 month" {
		return "monthly"
	}
	return "weekly"
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) ListWorkouts(ctx context.Context, _, page, size int) ([]storage.WorkoutSummary, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))

	var workouts []storage.WorkoutSummary
	if err := c.get(ctx, "/api/v1/workouts", params, &workouts); err != nil {
		return nil, err
	}
	return workouts, nil
}

func (c *HTTPClient) GetWorkout(ctx context.Context, workoutID uuid.UUID, _ int) (*storage.WorkoutDetail, error) {
	var workout storage.WorkoutDetail
	if err := c.get(ctx, "/api/v1/workouts/"+workoutID.String(), nil, &workout); err != nil {
		return nil, err
	}
	return &workout, nil
}

func (c *HTTPClient) ListRoutines(ctx context.Context, _ int) ([]models.Routine, error) {
	var routines []models.Routine
	if err := c.get(ctx, "/api/v1/routines", nil, &routines); err != nil {
		return nil, err
	}
	return routines, nil
}

func (c *HTTPClient) ListExercises(ctx context.Context, f storage.ExerciseFilter) ([]models.ExerciseDefinition, error) {
	params := url.Values{}
	if f.Query != "" {
		params.Set("q", f.Query)
	}
	if f.MuscleGroup != "" {
		params.Set("muscle_group", f.MuscleGroup)
	}
	if f.Equipment != "" {
		params.Set("equipment", f.Equipment)
	}

	var exercises []models.ExerciseDefinition
	if err := c.get(ctx, "/api/v1/exercises", params, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

func (c *HTTPClient) ExerciseHistory(ctx context.Context, exerciseRef string, _, limit int) ([]storage.ExerciseSession, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var history []storage.ExerciseSession
	if err := c.get(ctx, "/api/v1/exercises/"+url.PathEscape(exerciseRef)+"/history", params, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *HTTPClient) PersonalRecords(ctx context.Context, exerciseRef string, _ int) (*storage.PersonalRecords, error) {
	var records storage.PersonalRecords
	if err := c.get(ctx, "/api/v1/exercises/"+url.PathEscape(exerciseRef)+"/records", nil, &records); err != nil {
		return nil, err
	}
	return &records, nil
}

func (c *HTTPClient) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, _ int) ([]storage.TrainingSummaryPeriod, error) {
	params := timeParams(start, end)
	params.Set("period", bucketToPeriod(bucket))

	var periods []storage.TrainingSummaryPeriod
	if err := c.get(ctx, "/api/v1/stats/summary", params, &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

func (c *HTTPClient) GetEffortDistribution(ctx context.Context, start, end time.Time, _ int) (*storage.EffortResult, error) {
	var result storage.EffortResult
	if err := c.get(ctx, "/api/v1/stats/effort", timeParams(start, end), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
