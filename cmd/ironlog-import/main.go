package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/config"
	"github.com/claude/ironlog/internal/ingest"
	"github.com/claude/ironlog/internal/ingest/alpha"
	"github.com/claude/ironlog/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	filePath := flag.String("file", "", "path to an Alpha Progression CSV export (required)")
	login := flag.String("user", storage.LocalLogin, "login of the user that owns the imported workouts")
	dryRun := flag.Bool("dry-run", false, "parse the export and report counts without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *filePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: ironlog-import -config config.yaml -file export.csv [-user login] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Error("cannot open export", "path", *filePath, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	if *dryRun {
		log.Info("DRY RUN mode, no data will be written to the database")
		sessions, err := alpha.Parse(f, time.Local)
		if err != nil {
			log.Error("parse failed", "error", err)
			os.Exit(1)
		}
		sets := 0
		for _, s := range sessions {
			for _, ex := range s.Exercises {
				for _, set := range ex.Sets {
					if !set.IsWarmup {
						sets++
					}
				}
			}
		}
		log.Info("export parsed", "sessions", len(sessions), "working_sets", sets)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, cfg.Server.MigrationsPath); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	custom, err := catalog.OpenCustomStore(cfg.Catalog.CustomDBPath)
	if err != nil {
		log.Error("failed to open custom exercise store", "error", err)
		os.Exit(1)
	}
	defer custom.Close()

	userID, err := db.GetOrCreateUser(ctx, *login, "")
	if err != nil {
		log.Error("failed to resolve user", "login", *login, "error", err)
		os.Exit(1)
	}

	cat := catalog.New(db, custom, cfg.Catalog.CacheSizeMB<<20, cfg.Catalog.CacheTTLSeconds, log)
	provider := alpha.NewProvider(db, cat, log, alpha.WithLocation(time.Local))

	result, err := provider.Ingest(ctx, f, userID)
	if err != nil {
		log.Error("import failed", "error", err)
		os.Exit(1)
	}
	printResult(log, result)
	log.Info("import complete")
}

func printResult(log *slog.Logger, r *ingest.Result) {
	log.Info("import stats",
		"sessions_received", r.SessionsReceived,
		"workouts_inserted", r.WorkoutsInserted,
		"workouts_skipped", r.WorkoutsSkipped,
		"sets_received", r.SetsReceived,
		"sets_inserted", r.SetsInserted,
	)
}
