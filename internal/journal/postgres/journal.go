// internal/journal/postgres/journal.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/journal"
)

// Journal is the Postgres-backed order journal.
type Journal struct {
	db *DB
}

var _ journal.Journal = (*Journal)(nil)

func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// Init creates the journal tables when they do not exist yet.
func (j *Journal) Init(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS replenishment_decisions (
			idempotency_key TEXT PRIMARY KEY,
			cycle_id        TEXT NOT NULL,
			sku             TEXT NOT NULL,
			reorder_point   DOUBLE PRECISION NOT NULL,
			safety_stock    DOUBLE PRECISION NOT NULL,
			order_qty       BIGINT NOT NULL,
			order_value     NUMERIC NOT NULL,
			triggered       BOOLEAN NOT NULL,
			low_confidence  BOOLEAN NOT NULL,
			decided_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_requests (
			idempotency_key TEXT PRIMARY KEY,
			cycle_id        TEXT NOT NULL,
			sku             TEXT NOT NULL,
			quantity        BIGINT NOT NULL,
			decided_at      TIMESTAMPTZ NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS order_results (
			idempotency_key TEXT PRIMARY KEY,
			sku             TEXT NOT NULL,
			quantity        BIGINT NOT NULL,
			status          TEXT NOT NULL,
			supplier_ref    TEXT NOT NULL DEFAULT '',
			reason          TEXT NOT NULL DEFAULT '',
			attempts        INT NOT NULL,
			completed_at    TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}

func (j *Journal) RecordDecision(ctx context.Context, cycleID string, d domain.Decision) error {
	return j.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO replenishment_decisions
				(idempotency_key, cycle_id, sku, reorder_point, safety_stock,
				 order_qty, order_value, triggered, low_confidence, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			d.IdempotencyKey(), cycleID, d.SKU, d.ReorderPoint, d.SafetyStock,
			d.OrderQty, d.OrderValue, d.Triggered, d.LowConfidence, d.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to record decision for %s: %w", d.SKU, err)
		}
		return nil
	})
}

func (j *Journal) MarkPending(ctx context.Context, cycleID string, req domain.OrderRequest) error {
	return j.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_requests (idempotency_key, cycle_id, sku, quantity, decided_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			req.IdempotencyKey, cycleID, req.SKU, req.Quantity, req.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to journal order request %s: %w", req.IdempotencyKey, err)
		}
		return nil
	})
}

func (j *Journal) RecordResult(ctx context.Context, res domain.OrderResult) error {
	return j.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_results
				(idempotency_key, sku, quantity, status, supplier_ref, reason, attempts, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (idempotency_key) DO UPDATE SET
				status = EXCLUDED.status,
				supplier_ref = EXCLUDED.supplier_ref,
				reason = EXCLUDED.reason,
				attempts = EXCLUDED.attempts,
				completed_at = EXCLUDED.completed_at`,
			res.IdempotencyKey, res.SKU, res.Quantity, res.Status,
			res.SupplierRef, res.Reason, res.Attempts, res.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to record result %s: %w", res.IdempotencyKey, err)
		}
		return nil
	})
}

func (j *Journal) Result(ctx context.Context, key string) (*domain.OrderResult, error) {
	var res domain.OrderResult
	err := j.db.GetContext(ctx, &res, `
		SELECT idempotency_key, sku, quantity, status, supplier_ref, reason, attempts, completed_at
		FROM order_results
		WHERE idempotency_key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", key, err)
	}
	return &res, nil
}

func (j *Journal) PendingRequests(ctx context.Context) ([]domain.OrderRequest, error) {
	reqs := make([]domain.OrderRequest, 0)
	err := j.db.SelectContext(ctx, &reqs, `
		SELECT r.idempotency_key, r.sku, r.quantity, r.decided_at
		FROM order_requests r
		LEFT JOIN order_results res ON res.idempotency_key = r.idempotency_key
		WHERE res.idempotency_key IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}
	return reqs, nil
}
