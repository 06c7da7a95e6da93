package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrDuplicateName is returned when a custom exercise name is already taken.
var ErrDuplicateName = errors.New("exercise name already exists")

// CustomStore keeps user-defined exercises in a local SQLite file. They never
// enter the shared catalog; workouts reference them by their custom- id.
type CustomStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenCustomStore opens (or creates) the SQLite database at path.
func OpenCustomStore(path string) (*CustomStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating custom exercise dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening custom exercise db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS custom_exercises (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		name_key     TEXT NOT NULL UNIQUE,
		muscle_group TEXT NOT NULL DEFAULT '',
		equipment    TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating custom exercise table: %w", err)
	}

	return &CustomStore{db: db, now: time.Now}, nil
}

// Add stores a new custom exercise and returns it with its generated id.
func (s *CustomStore) Add(ctx context.Context, name, muscleGroup, equipment string) (*models.CustomExercise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("custom exercise name is required")
	}

	if _, err := s.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ex := &models.CustomExercise{
		ID:          models.CustomExercisePrefix + uuid.NewString(),
		Name:        name,
		MuscleGroup: muscleGroup,
		Equipment:   equipment,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
	}
	if err := s.insert(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// insert writes ex. A concurrent Add of the same name can pass the lookup
// above, so the unique index on name_key has the final say.
func (s *CustomStore) insert(ctx context.Context, ex *models.CustomExercise) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_exercises (id, name, name_key, muscle_group, equipment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Name, nameKey(ex.Name), ex.MuscleGroup, ex.Equipment, ex.CreatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%q: %w", ex.Name, ErrDuplicateName)
	}
	if err != nil {
		return fmt.Errorf("inserting custom exercise: %w", err)
	}
	return nil
}

// Get returns a custom exercise by id.
func (s *CustomStore) Get(ctx context.Context, id string) (*models.CustomExercise, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, muscle_group, equipment, created_at FROM custom_exercises WHERE id = ?`, id)
	return scanCustom(row)
}

// FindByName returns a custom exercise by case-insensitive name.
func (s *CustomStore) FindByName(ctx context.Context, name string) (*models.CustomExercise, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, muscle_group, equipment, created_at FROM custom_exercises WHERE name_key = ?`, nameKey(name))
	return scanCustom(row)
}

// List returns all custom exercises ordered by name.
func (s *CustomStore) List(ctx context.Context) ([]models.CustomExercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, muscle_group, equipment, created_at FROM custom_exercises ORDER BY name_key`)
	if err != nil {
		return nil, fmt.Errorf("querying custom exercises: %w", err)
	}
	defer rows.Close()

	result := []models.CustomExercise{}
	for rows.Next() {
		ex, err := scanCustom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}
	return result, rows.Err()
}

// Delete removes a custom exercise. Saved workouts keep the id and name they
// were recorded with.
func (s *CustomStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_exercises WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting custom exercise: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *CustomStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustom(row scanner) (*models.CustomExercise, error) {
	var ex models.CustomExercise
	var created int64
	err := row.Scan(&ex.ID, &ex.Name, &ex.MuscleGroup, &ex.Equipment, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning custom exercise: %w", err)
	}
	ex.CreatedAt = time.Unix(created, 0).UTC()
	return &ex, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
