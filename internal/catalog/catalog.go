// Package catalog serves exercise definitions: the shared catalog from
// PostgreSQL behind an in-process cache, plus custom exercises kept locally.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/coocood/freecache"
	"github.com/google/uuid"
)

// ErrNotFound is returned when neither the catalog nor the custom store
// knows an exercise.
var ErrNotFound = errors.New("exercise not found")

// DefaultTTLSeconds is how long catalog entries stay cached.
const DefaultTTLSeconds = 60 * 60

// Source is the persistent exercise catalog.
type Source interface {
	GetExercise(ctx context.Context, id uuid.UUID) (*models.ExerciseDefinition, error)
	ListExercises(ctx context.Context, f storage.ExerciseFilter) ([]models.ExerciseDefinition, error)
	FindExerciseByName(ctx context.Context, name string) (*models.ExerciseDefinition, error)
}

// Catalog is a read-through cache over Source combined with the custom store.
type Catalog struct {
	source Source
	custom *CustomStore
	cache  *freecache.Cache
	ttl    int
	log    *slog.Logger
}

// New creates a Catalog with a cache of cacheBytes. freecache enforces a
// 512KB minimum.
func New(source Source, custom *CustomStore, cacheBytes, ttlSeconds int, log *slog.Logger) *Catalog {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	return &Catalog{
		source: source,
		custom: custom,
		cache:  freecache.NewCache(cacheBytes),
		ttl:    ttlSeconds,
		log:    log,
	}
}

// Custom exposes the custom exercise store.
func (c *Catalog) Custom() *CustomStore {
	return c.custom
}

// Exercise returns a catalog exercise, from cache when possible.
func (c *Catalog) Exercise(ctx context.Context, id uuid.UUID) (*models.ExerciseDefinition, error) {
	key := "exercise::" + id.String()
	var ex models.ExerciseDefinition
	if c.cached(key, &ex) {
		return &ex, nil
	}

	got, err := c.source.GetExercise(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.store(key, got)
	return got, nil
}

// List returns catalog exercises matching f, from cache when possible.
func (c *Catalog) List(ctx context.Context, f storage.ExerciseFilter) ([]models.ExerciseDefinition, error) {
	key := fmt.Sprintf("list::%s|%s|%s", strings.ToLower(f.Query), f.MuscleGroup, f.Equipment)
	var list []models.ExerciseDefinition
	if c.cached(key, &list) {
		return list, nil
	}

	list, err := c.source.ListExercises(ctx, f)
	if err != nil {
		return nil, err
	}
	c.store(key, list)
	return list, nil
}

// Resolve turns an exercise reference into a session reference with its
// display name. ref is a catalog uuid or a custom- id.
func (c *Catalog) Resolve(ctx context.Context, ref string) (models.ExerciseRef, error) {
	if models.IsCustomExerciseID(ref) {
		if c.custom == nil {
			return models.ExerciseRef{}, ErrNotFound
		}
		ex, err := c.custom.Get(ctx, ref)
		if err != nil {
			return models.ExerciseRef{}, err
		}
		return models.ExerciseRef{ExerciseID: ex.ID, Name: ex.Name}, nil
	}

	id, err := uuid.Parse(ref)
	if err != nil {
		return models.ExerciseRef{}, fmt.Errorf("exercise id %q: %w", ref, ErrNotFound)
	}
	ex, err := c.Exercise(ctx, id)
	if err != nil {
		return models.ExerciseRef{}, err
	}
	return models.ExerciseRef{ExerciseID: ex.ID.String(), Name: ex.Name}, nil
}

// ResolveName finds an exercise by name in the catalog, then among custom
// exercises, and creates a custom exercise when neither has it.
func (c *Catalog) ResolveName(ctx context.Context, name string) (models.ExerciseRef, error) {
	key := "name::" + strings.ToLower(strings.TrimSpace(name))
	var ref models.ExerciseRef
	if c.cached(key, &ref) {
		return ref, nil
	}

	ex, err := c.source.FindExerciseByName(ctx, name)
	switch {
	case err == nil:
		ref = models.ExerciseRef{ExerciseID: ex.ID.String(), Name: ex.Name}
		c.store(key, ref)
		return ref, nil
	case !errors.Is(err, storage.ErrNotFound):
		return models.ExerciseRef{}, err
	}

	if c.custom == nil {
		return models.ExerciseRef{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	custom, err := c.custom.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		custom, err = c.custom.Add(ctx, name, "", "")
		if err == nil {
			c.log.Info("created custom exercise", "id", custom.ID, "name", custom.Name)
		}
	}
	if err != nil {
		return models.ExerciseRef{}, err
	}
	return models.ExerciseRef{ExerciseID: custom.ID, Name: custom.Name}, nil
}

// CacheStats reports cache hits, misses and entries.
func (c *Catalog) CacheStats() (hits, misses, entries int64) {
	return c.cache.HitCount(), c.cache.MissCount(), c.cache.EntryCount()
}

func (c *Catalog) cached(key string, dst any) bool {
	b, err := c.cache.Get([]byte(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.log.Warn("dropping undecodable cache entry", "key", key, "error", err)
		c.cache.Del([]byte(key))
		return false
	}
	return true
}

func (c *Catalog) store(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("encoding cache entry", "key", key, "error", err)
		return
	}
	if err := c.cache.Set([]byte(key), b, c.ttl); err != nil {
		c.log.Debug("cache set failed", "key", key, "size", len(b), "error", err)
	}
}
