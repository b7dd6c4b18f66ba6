// internal/cycle/runner.go
package cycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/forecast"
	"github.com/stockpilot/replenisher/internal/ingest"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/normalize"
	"github.com/stockpilot/replenisher/internal/orders"
	"github.com/stockpilot/replenisher/internal/policy"
	"github.com/stockpilot/replenisher/internal/report"
	"github.com/stockpilot/replenisher/internal/storage"
)

// Runner executes one replenishment cycle: normalize, forecast and decide per
// SKU in parallel, then submit triggered decisions and assemble the report.
type Runner struct {
	cfg     config.CycleConfig
	coord   *orders.Coordinator
	journal journal.Journal
	archive storage.ObjectStorage
}

func NewRunner(cfg config.CycleConfig, coord *orders.Coordinator, jnl journal.Journal) *Runner {
	if jnl == nil {
		jnl = journal.NewMemory()
	}
	return &Runner{cfg: cfg, coord: coord, journal: jnl}
}

// WithArchive makes the runner upload each cycle's CSV report to object
// storage after submission.
func (r *Runner) WithArchive(store storage.ObjectStorage) *Runner {
	r.archive = store
	return r
}

// Run processes one cycle over the given raw records.
func (r *Runner) Run(ctx context.Context, records []ingest.RawRecord) (*report.CycleReport, error) {
	cycleID := uuid.NewString()
	startedAt := time.Now().UTC()

	snap := normalize.New(r.cfg).Normalize(records)
	log.Info().
		Str("cycle_id", cycleID).
		Int("records", len(records)).
		Int("skus", len(snap.SKUs)).
		Int("rejected_records", len(snap.Issues)).
		Msg("snapshot normalized")

	rows, decisions, decideErrs := r.decideAll(ctx, snap, startedAt)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cycle cancelled: %w", err)
	}

	rep := &report.CycleReport{
		CycleID:         cycleID,
		StartedAt:       startedAt,
		SKUsEvaluated:   len(snap.SKUs),
		TotalOrderValue: decimal.Zero,
		Rows:            rows,
	}
	rep.Errors = append(rep.Errors, snap.Issues...)
	rep.Errors = append(rep.Errors, decideErrs...)

	triggered := make([]domain.Decision, 0, len(decisions))
	for _, d := range decisions {
		if !d.Triggered {
			continue
		}
		triggered = append(triggered, d)
		rep.TotalOrderValue = rep.TotalOrderValue.Add(d.OrderValue)
		if err := r.journal.RecordDecision(ctx, cycleID, d); err != nil {
			log.Error().Err(err).Str("sku", d.SKU).Msg("failed to journal decision")
		}
	}
	rep.OrdersTriggered = len(triggered)

	results := r.coord.SubmitAll(ctx, cycleID, triggered)
	for _, res := range results {
		rep.AddResult(res)
		switch res.Status {
		case domain.OrderRejected:
			rep.Errors = append(rep.Errors, domain.NewCycleError(
				domain.KindTerminalAPIRejection, res.SKU, errors.New(res.Reason)))
		case domain.OrderFailed:
			rep.Errors = append(rep.Errors, domain.NewCycleError(
				domain.KindTransientAPIFailure, res.SKU, errors.New(res.Reason)))
		}
	}

	rep.CompletedAt = time.Now().UTC()

	if r.archive != nil {
		r.archiveReport(ctx, rep)
	}

	log.Info().
		Str("cycle_id", cycleID).
		Int("triggered", rep.OrdersTriggered).
		Int("confirmed", rep.OrdersConfirmed).
		Int("rejected", rep.OrdersRejected).
		Int("failed", rep.OrdersFailed).
		Dur("duration", rep.CompletedAt.Sub(rep.StartedAt)).
		Msg("cycle completed")

	return rep, nil
}

// decideAll runs forecast and policy per SKU on a worker pool. SKUs are
// independent, so a failure in one never affects the others.
func (r *Runner) decideAll(ctx context.Context, snap *normalize.Snapshot, decidedAt time.Time) ([]report.Row, []domain.Decision, []*domain.CycleError) {
	forecaster := forecast.New(r.cfg)
	engine := policy.New(r.cfg)

	workerCount := r.cfg.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	var (
		mu        sync.Mutex
		rows      []report.Row
		decisions []domain.Decision
		errs      []*domain.CycleError
	)

	jobCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sku := range jobCh {
				rec := snap.Records[sku]
				est := forecaster.Estimate(sku, snap.Observations[sku], rec.LeadTimeDays)
				d, err := engine.Decide(rec, est, decidedAt)

				mu.Lock()
				if err != nil {
					var cErr *domain.CycleError
					if !errors.As(err, &cErr) {
						cErr = domain.NewCycleError(domain.KindInvalidLeadTime, sku, err)
					}
					errs = append(errs, cErr)
				} else {
					decisions = append(decisions, d)
					rows = append(rows, report.Row{
						SKU:           sku,
						Forecast:      est.MeanPerDay,
						OnHand:        rec.OnHand,
						OnOrder:       rec.OnOrder,
						ReorderPoint:  d.ReorderPoint,
						SafetyStock:   d.SafetyStock,
						OrderQty:      d.OrderQty,
						LowConfidence: d.LowConfidence,
					})
				}
				mu.Unlock()
			}
		}()
	}

	for _, sku := range snap.SKUs {
		select {
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return rows, decisions, errs
		case jobCh <- sku:
		}
	}
	close(jobCh)
	wg.Wait()

	sort.Slice(rows, func(i, j int) bool { return rows[i].SKU < rows[j].SKU })
	return rows, decisions, errs
}

func (r *Runner) archiveReport(ctx context.Context, rep *report.CycleReport) {
	var buf bytes.Buffer
	if err := rep.WriteCSV(&buf); err != nil {
		log.Warn().Err(err).Str("cycle_id", rep.CycleID).Msg("failed to encode report for archive")
		return
	}
	key := fmt.Sprintf("reports/%s/%s.csv", rep.StartedAt.Format("2006-01-02"), rep.CycleID)
	if err := r.archive.UploadObject(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to archive cycle report")
		return
	}
	log.Info().Str("key", key).Msg("cycle report archived")
}
