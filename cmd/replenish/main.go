// cmd/replenish/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/stockpilot/replenisher/internal/cache"
	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/cycle"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/ingest"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/journal/postgres"
	"github.com/stockpilot/replenisher/internal/orders"
	"github.com/stockpilot/replenisher/internal/storage"
	"github.com/stockpilot/replenisher/internal/supplier"
	"github.com/stockpilot/replenisher/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Log.Debug().Msg("loaded environment from .env")
	}

	app := &cli.App{
		Name:  "replenish",
		Usage: "Run automated inventory replenishment cycles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write logs to this file",
				EnvVars: []string{"LOG_FILE"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			if path := c.String("log-file"); path != "" {
				if err := logger.AddFileOutput(path); err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "cycle",
				Usage: "Run one replenishment cycle over a sales/inventory CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "Path to the input CSV",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Submit orders against an in-memory supplier instead of the real API",
					},
					&cli.StringFlag{
						Name:    "db-url",
						Usage:   "Postgres connection string for the order journal",
						EnvVars: []string{"DATABASE_URL"},
					},
				},
				Action: runCycle,
			},
			{
				Name:  "reconcile",
				Usage: "Resolve journaled orders without a terminal outcome",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Postgres connection string for the order journal",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
				},
				Action: runReconcile,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitErr.ExitCode())
		}
		logger.Log.Fatal().Err(err).Msg("command failed")
	}
}

func runCycle(c *cli.Context) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jnl, closeDB, err := buildJournal(ctx, cfg, c.String("db-url"))
	if err != nil {
		return err
	}
	defer closeDB()

	statusCache, err := cache.NewStatusCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("status cache unavailable, continuing without it")
		statusCache = cache.NewNoopStatusCache()
	}

	var api supplier.OrderAPI
	if c.Bool("dry-run") {
		logger.Log.Info().Msg("dry run: orders go to an in-memory supplier")
		api = supplier.NewSimulator(time.Now().UnixNano())
	} else {
		api = supplier.NewClient(cfg.Supplier)
	}

	coord := orders.NewCoordinator(api, jnl, statusCache, cfg.Cycle)
	runner := cycle.NewRunner(cfg.Cycle, coord, jnl)

	if cfg.Archive.Enabled {
		store, err := storage.NewMinioClient(cfg.Archive)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("report archive unavailable, continuing without it")
		} else {
			runner = runner.WithArchive(store)
		}
	}

	records, err := ingest.ReadFile(c.String("csv"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	rep, err := runner.Run(ctx, records)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	rep.RenderTable(os.Stdout)

	if rep.HasFailures() {
		return cli.Exit("cycle completed with failed orders", 1)
	}
	return nil
}

func runReconcile(c *cli.Context) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jnl, closeDB, err := buildJournal(ctx, cfg, c.String("db-url"))
	if err != nil {
		return err
	}
	defer closeDB()

	statusCache, err := cache.NewStatusCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("status cache unavailable, continuing without it")
		statusCache = cache.NewNoopStatusCache()
	}

	coord := orders.NewCoordinator(supplier.NewClient(cfg.Supplier), jnl, statusCache, cfg.Cycle)
	results, err := coord.Reconcile(ctx)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	failed := 0
	for _, res := range results {
		logger.Log.Info().
			Str("key", res.IdempotencyKey).
			Str("sku", res.SKU).
			Str("status", string(res.Status)).
			Msg("order resolved")
		if res.Status == domain.OrderFailed || res.Status == domain.OrderRejected {
			failed++
		}
	}
	logger.Log.Info().Int("resolved", len(results)).Msg("reconciliation complete")

	if failed > 0 {
		return cli.Exit("reconciliation found failed orders", 1)
	}
	return nil
}

// buildJournal returns a Postgres journal when a connection string is
// available, otherwise the in-memory journal.
func buildJournal(ctx context.Context, cfg *config.Config, dbURL string) (journal.Journal, func(), error) {
	if dbURL == "" {
		dbURL = cfg.Database.URL
	}
	if dbURL == "" {
		return journal.NewMemory(), func() {}, nil
	}

	dbCfg := cfg.Database
	dbCfg.URL = dbURL
	db, err := postgres.NewDB(&dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}
	jnl := postgres.NewJournal(db)
	if err := jnl.Init(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return jnl, func() { db.Close() }, nil
}
