// cmd/seed/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/stockpilot/replenisher/internal/ingest"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "seed",
		Usage: "Load SKU master data and demand history into the database",
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "Seed demand history and SKU master data from a sales export CSV",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "Path to the sales export CSV",
						Required: true,
						EnvVars:  []string{"SEED_CSV_PATH"},
					},
					&cli.BoolFlag{
						Name:  "truncate",
						Usage: "Truncate history tables before loading",
					},
				},
				Action: seedHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seedHistory(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	records, err := ingest.ReadFile(c.String("csv"))
	if err != nil {
		return fmt.Errorf("failed to read sales export: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createHistoryTables(ctx, tx); err != nil {
		return err
	}

	if c.Bool("truncate") {
		if _, err := tx.ExecContext(ctx, "TRUNCATE demand_history, sku_master"); err != nil {
			return fmt.Errorf("failed to truncate history tables: %w", err)
		}
	}

	log.Printf("Seeding %d rows from %s", len(records), c.String("csv"))

	inserted, skipped, err := loadRecords(ctx, tx, records)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Seeding completed: %d rows inserted, %d skipped", inserted, skipped)
	return nil
}

func createHistoryTables(ctx context.Context, tx *sql.Tx) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sku_master (
			sku TEXT PRIMARY KEY,
			company TEXT NOT NULL DEFAULT '',
			warehouse TEXT NOT NULL DEFAULT '',
			on_hand BIGINT NOT NULL DEFAULT 0,
			on_order BIGINT NOT NULL DEFAULT 0,
			open_so BIGINT NOT NULL DEFAULT 0,
			unit_cost NUMERIC NOT NULL DEFAULT 0,
			lead_time_days INT NOT NULL DEFAULT 0,
			pack_size INT NOT NULL DEFAULT 0,
			min_order_qty INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS demand_history (
			sku TEXT NOT NULL,
			observed_at DATE NOT NULL,
			units_sold DOUBLE PRECISION NOT NULL,
			promotion BOOLEAN NOT NULL DEFAULT FALSE,
			festival BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (sku, observed_at)
		)`,
	}
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history tables: %w", err)
		}
	}
	return nil
}

func loadRecords(ctx context.Context, tx *sql.Tx, records []ingest.RawRecord) (inserted, skipped int, err error) {
	masterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sku_master (sku, company, warehouse, on_hand, on_order, open_so, unit_cost, lead_time_days, pack_size, min_order_qty, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (sku) DO UPDATE SET
			company = EXCLUDED.company,
			warehouse = EXCLUDED.warehouse,
			on_hand = EXCLUDED.on_hand,
			on_order = EXCLUDED.on_order,
			open_so = EXCLUDED.open_so,
			unit_cost = EXCLUDED.unit_cost,
			lead_time_days = EXCLUDED.lead_time_days,
			pack_size = EXCLUDED.pack_size,
			min_order_qty = EXCLUDED.min_order_qty,
			updated_at = NOW()`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare sku_master statement: %w", err)
	}
	defer masterStmt.Close()

	historyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO demand_history (sku, observed_at, units_sold, promotion, festival)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sku, observed_at) DO UPDATE SET
			units_sold = demand_history.units_sold + EXCLUDED.units_sold,
			promotion = demand_history.promotion OR EXCLUDED.promotion,
			festival = demand_history.festival OR EXCLUDED.festival`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare demand_history statement: %w", err)
	}
	defer historyStmt.Close()

	for _, rec := range records {
		if rec.SKU == "" || rec.Date == "" {
			skipped++
			continue
		}

		if _, err := masterStmt.ExecContext(ctx,
			rec.SKU,
			rec.Company,
			rec.Warehouse,
			parseInt(rec.OnHand),
			parseInt(rec.OnOrder),
			parseInt(rec.OpenSO),
			parseCost(rec.UnitCost),
			parseInt(rec.LeadTimeDays),
			parseInt(rec.PackSize),
			parseInt(rec.MinOrderQty),
		); err != nil {
			return inserted, skipped, fmt.Errorf("failed to upsert sku %s: %w", rec.SKU, err)
		}

		// Rows without a sales figure carry stock levels only.
		if strings.TrimSpace(rec.Sales) == "" {
			skipped++
			continue
		}
		sales, err := strconv.ParseFloat(strings.TrimSpace(rec.Sales), 64)
		if err != nil {
			log.Printf("skipping line %d: invalid sales value %q", rec.Line, rec.Sales)
			skipped++
			continue
		}

		if _, err := historyStmt.ExecContext(ctx,
			rec.SKU,
			rec.Date,
			sales,
			parseBool(rec.Promotion),
			parseBool(rec.Festival),
		); err != nil {
			return inserted, skipped, fmt.Errorf("failed to insert history for sku %s: %w", rec.SKU, err)
		}
		inserted++

		if inserted%5000 == 0 {
			log.Printf("Seeded %d history rows...", inserted)
		}
	}

	return inserted, skipped, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseCost(s string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, _ := strconv.ParseFloat(cleaned, 64)
	return f
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
