package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/claude/ironlog/internal/ingest/alpha"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	SessionsSent     int
	WorkoutsInserted int
	WorkoutsSkipped  int
}

// Uploader walks a directory of Alpha Progression CSV exports and POSTs each
// new or changed file to the IronLog server.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader. client may be nil in dry-run mode.
func New(client *Client, state *StateDB, dir string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		state:  state,
		dir:    dir,
		dryRun: dryRun,
		log:    log,
	}
}

// Run uploads every pending export. A file that fails is counted and logged;
// the run continues with the next one.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	files, err := findExports(u.dir)
	if err != nil {
		return &u.stats, err
	}
	u.stats.FilesTotal = len(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		if err := u.processFile(ctx, path); err != nil {
			u.stats.FilesErrored++
			u.log.Error("upload failed", "file", path, "error", err)
		}
	}
	return &u.stats, nil
}

func (u *Uploader) processFile(ctx context.Context, path string) error {
	rel, err := filepath.Rel(u.dir, path)
	if err != nil {
		rel = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	hash := hashBytes(data)

	done, err := u.state.IsUploaded(ctx, rel, hash)
	if err != nil {
		return err
	}
	if done {
		u.stats.FilesSkipped++
		u.log.Debug("already uploaded", "file", rel)
		return nil
	}

	if u.dryRun {
		sessions, err := alpha.Parse(bytes.NewReader(data), time.Local)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", rel, err)
		}
		u.stats.SessionsSent += len(sessions)
		u.log.Info("dry run", "file", rel, "sessions", len(sessions))
		return nil
	}

	result, err := u.client.SendAlphaCSV(ctx, data)
	if err != nil {
		return err
	}
	u.stats.FilesUploaded++
	u.stats.SessionsSent += result.SessionsReceived
	u.stats.WorkoutsInserted += result.WorkoutsInserted
	u.stats.WorkoutsSkipped += result.WorkoutsSkipped
	u.log.Info("uploaded", "file", rel,
		"sessions", result.SessionsReceived,
		"inserted", result.WorkoutsInserted,
		"skipped", result.WorkoutsSkipped,
	)

	return u.state.MarkUploaded(ctx, rel, hash, result.WorkoutsInserted)
}

// findExports returns the CSV files under dir, oldest name first.
func findExports(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
