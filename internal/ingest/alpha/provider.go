package alpha

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/claude/ironlog/internal/ingest"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/google/uuid"
)

// Store is the persistence the provider needs.
type Store interface {
	ImportWorkout(ctx context.Context, plan *models.WorkoutPlan) (bool, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
}

// Provider imports Alpha Progression CSV exports as saved workouts.
type Provider struct {
	store    Store
	resolver Resolver
	log      *slog.Logger
	loc      *time.Location
	newID    func() uuid.UUID
	now      func() time.Time
	onInsert func(workouts int)
}

// Option configures a Provider.
type Option func(*Provider)

// WithLocation sets the zone export timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(p *Provider) { p.loc = loc }
}

// WithInsertObserver is called with the number of inserted workouts after
// each successful import.
func WithInsertObserver(fn func(workouts int)) Option {
	return func(p *Provider) { p.onInsert = fn }
}

// NewProvider creates a new Alpha Progression ingest provider.
func NewProvider(store Store, resolver Resolver, log *slog.Logger, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		resolver: resolver,
		log:      log,
		loc:      time.UTC,
		newID:    uuid.New,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest parses an export and saves each session as a workout in its own
// transaction. Sessions imported before are skipped. The outcome is
// recorded in import_logs.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	start := p.now()
	logID, err := p.store.InsertImportLog(ctx, storage.ImportLog{
		UserID: userID,
		Source: Source,
		Status: storage.ImportRunning,
	})
	if err != nil {
		p.log.Error("failed to create import log", "error", err)
	}

	result, err := p.ingest(ctx, r, userID)
	p.finish(logID, result, err, p.now().Sub(start))
	if err != nil {
		return result, err
	}

	if p.onInsert != nil {
		p.onInsert(result.WorkoutsInserted)
	}
	p.log.Info("alpha import finished",
		"user_id", userID,
		"sessions", result.SessionsReceived,
		"inserted", result.WorkoutsInserted,
		"skipped", result.WorkoutsSkipped,
		"sets", result.SetsInserted,
	)
	return result, nil
}

func (p *Provider) ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	result := &ingest.Result{}

	sessions, err := Parse(r, p.loc)
	if err != nil {
		return result, fmt.Errorf("parsing CSV: %w: %w", ingest.ErrInvalidExport, err)
	}
	result.SessionsReceived = len(sessions)

	for _, s := range sessions {
		plan, err := ToPlan(ctx, s, userID, p.resolver, p.newID)
		if err != nil {
			return result, fmt.Errorf("session %q on %s: %w", s.Name, s.Date.Format("2006-01-02"), err)
		}
		if len(plan.Exercises) == 0 {
			result.WorkoutsSkipped++
			p.log.Debug("skipping session without working sets", "session", s.Name, "date", s.Date)
			continue
		}
		result.SetsReceived += len(plan.Sets)

		inserted, err := p.store.ImportWorkout(ctx, plan)
		if err != nil {
			return result, fmt.Errorf("saving session %q on %s: %w", s.Name, s.Date.Format("2006-01-02"), err)
		}
		if !inserted {
			result.WorkoutsSkipped++
			continue
		}
		result.WorkoutsInserted++
		result.SetsInserted += len(plan.Sets)
	}

	if result.WorkoutsInserted == 0 && result.SessionsReceived > 0 {
		result.Message = "all sessions were already imported"
	}
	return result, nil
}

// finish moves the import log out of running. It uses its own context so
// a cancelled request still gets its outcome recorded.
func (p *Provider) finish(logID int64, result *ingest.Result, importErr error, took time.Duration) {
	if logID == 0 {
		return
	}
	status := storage.ImportSuccess
	var errMsg *string
	if importErr != nil {
		status = storage.ImportError
		msg := importErr.Error()
		errMsg = &msg
	}
	durationMs := int(took.Milliseconds())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.UpdateImportLog(ctx, logID, storage.ImportLog{
		Status:           status,
		SessionsReceived: result.SessionsReceived,
		WorkoutsInserted: result.WorkoutsInserted,
		WorkoutsSkipped:  result.WorkoutsSkipped,
		SetsInserted:     result.SetsInserted,
		DurationMs:       &durationMs,
		ErrorMessage:     errMsg,
	}); err != nil {
		p.log.Error("failed to finalize import log", "log_id", logID, "error", err)
	}
}
