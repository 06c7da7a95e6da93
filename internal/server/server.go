package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/ingest"
	ironmcp "github.com/claude/ironlog/internal/mcp"
	"github.com/claude/ironlog/internal/metrics"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/storage"
	"github.com/claude/ironlog/internal/units"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the persistence the HTTP handlers read and write.
// *storage.DB satisfies it.
type Store interface {
	UserStore

	ListWorkouts(ctx context.Context, userID, page, size int) ([]storage.WorkoutSummary, error)
	GetWorkout(ctx context.Context, workoutID uuid.UUID, userID int) (*storage.WorkoutDetail, error)
	DeleteWorkout(ctx context.Context, workoutID uuid.UUID, userID int) error

	ListRoutines(ctx context.Context, userID int) ([]models.Routine, error)
	GetRoutine(ctx context.Context, routineID uuid.UUID, userID int) (*models.Routine, error)
	CreateRoutine(ctx context.Context, r *models.Routine) error
	DeleteRoutine(ctx context.Context, routineID uuid.UUID, userID int) error

	ExerciseHistory(ctx context.Context, exerciseRef string, userID, limit int) ([]storage.ExerciseSession, error)
	PersonalRecords(ctx context.Context, exerciseRef string, userID int) (*storage.PersonalRecords, error)

	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.TrainingSummaryPeriod, error)
	GetEffortDistribution(ctx context.Context, start, end time.Time, userID int) (*storage.EffortResult, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
}

var _ Store = (*storage.DB)(nil)

// Importer ingests a workout export for a user.
type Importer interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	sessions *session.Registry
	catalog  *catalog.Catalog
	importer Importer
	log      *slog.Logger

	apiKey   string
	units    units.Unit
	metrics  *metrics.Manager
	gatherer prometheus.Gatherer
	identity func(http.Handler) http.Handler
	mcp      *mcpserver.MCPServer

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey sets the key required by the import endpoint.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithUnits sets the weight unit used when a request has no ?units=.
func WithUnits(u units.Unit) Option {
	return func(s *Server) { s.units = u }
}

// WithMetrics records request metrics on m and serves g on /metrics.
func WithMetrics(m *metrics.Manager, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithTailscale resolves callers through the tailnet instead of treating
// everyone as the local user.
func WithTailscale(lc WhoIser) Option {
	return func(s *Server) {
		s.identity = TailscaleIdentity(lc, s.db, s.log)
	}
}

// WithMCP mounts the MCP server on /mcp.
func WithMCP(m *mcpserver.MCPServer) Option {
	return func(s *Server) { s.mcp = m }
}

// New creates a new Server with all routes configured.
func New(db Store, sessions *session.Registry, cat *catalog.Catalog, importer Importer, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		catalog:  cat,
		importer: importer,
		log:      log,
		units:    units.Kilograms,
		identity: DevIdentity,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	if s.metrics != nil {
		s.router.Use(RequestMetrics(s.metrics))
	}
	s.router.Use(CORS)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		if s.mcp != nil {
			r.Handle("/mcp", s.mcpHandler())
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/me", s.handleMe)

			r.Get("/workouts", s.handleListWorkouts)
			r.Get("/workouts/{id}", s.handleGetWorkout)
			r.Delete("/workouts/{id}", s.handleDeleteWorkout)

			r.Get("/routines", s.handleListRoutines)
			r.Post("/routines", s.handleCreateRoutine)
			r.Get("/routines/{id}", s.handleGetRoutine)
			r.Delete("/routines/{id}", s.handleDeleteRoutine)

			r.Get("/exercises", s.handleListExercises)
			r.Get("/exercises/custom", s.handleListCustomExercises)
			r.Post("/exercises/custom", s.handleCreateCustomExercise)
			r.Delete("/exercises/custom/{id}", s.handleDeleteCustomExercise)
			r.Get("/exercises/{id}", s.handleGetExercise)
			r.Get("/exercises/{id}/history", s.handleExerciseHistory)
			r.Get("/exercises/{id}/records", s.handlePersonalRecords)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/", s.handleStartSession)
				r.Patch("/", s.handleUpdateSession)
				r.Delete("/", s.handleDiscardSession)
				r.Post("/pause", s.handlePauseSession)
				r.Post("/resume", s.handleResumeSession)
				r.Post("/save", s.handleSaveSession)

				r.Post("/exercises", s.handleAddExercise)
				r.Patch("/exercises/{eid}", s.handleUpdateExercise)
				r.Delete("/exercises/{eid}", s.handleRemoveExercise)
				r.Post("/exercises/{eid}/move", s.handleMoveExercise)
				r.Post("/exercises/{eid}/sets", s.handleAddSet)
				r.Patch("/exercises/{eid}/sets/{sid}", s.handleUpdateSet)
				r.Post("/exercises/{eid}/sets/{sid}/toggle", s.handleToggleSet)
				r.Delete("/exercises/{eid}/sets/{sid}", s.handleRemoveSet)

				r.Post("/supersets", s.handleGroupSuperset)
				r.Delete("/supersets/{eid}", s.handleUngroup)
			})

			r.Get("/stats", s.handleStats)
			r.Get("/stats/summary", s.handleTrainingSummary)
			r.Get("/stats/effort", s.handleEffort)
			r.Get("/imports", s.handleImportLogs)

			r.With(APIKeyAuth(s.apiKey)).Post("/import/alpha", s.handleAlphaImport)
		})
	})
}

// mcpHandler serves MCP over streamable HTTP, carrying the caller's user ID
// into tool handlers.
func (s *Server) mcpHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return ironmcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)
}
