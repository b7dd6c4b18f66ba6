// internal/orders/coordinator.go
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/stockpilot/replenisher/internal/cache"
	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/supplier"
)

// Coordinator batches triggered decisions and submits them to the supplier
// API. Its central correctness property: once a request has been dispatched,
// it is never blindly resubmitted — the coordinator re-queries status by
// idempotency key first, so a retried submission cannot double-order.
type Coordinator struct {
	api     supplier.OrderAPI
	journal journal.Journal
	cache   cache.StatusCache
	cfg     config.CycleConfig
}

func NewCoordinator(api supplier.OrderAPI, jnl journal.Journal, statusCache cache.StatusCache, cfg config.CycleConfig) *Coordinator {
	if jnl == nil {
		jnl = journal.NewMemory()
	}
	if statusCache == nil {
		statusCache = cache.NewNoopStatusCache()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.SubmitConcurrency < 1 {
		cfg.SubmitConcurrency = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Coordinator{api: api, journal: jnl, cache: statusCache, cfg: cfg}
}

// SubmitAll submits the cycle's triggered decisions and returns one result
// per decision. Batches are independent: a failing batch never blocks the
// others. Requests for the same idempotency key are collapsed so no two
// concurrent submissions can exist for one decision.
func (c *Coordinator) SubmitAll(ctx context.Context, cycleID string, decisions []domain.Decision) []domain.OrderResult {
	seen := make(map[string]struct{}, len(decisions))
	requests := make([]domain.OrderRequest, 0, len(decisions))
	for _, d := range decisions {
		if !d.Triggered {
			log.Warn().Str("sku", d.SKU).Msg("non-triggered decision reached submission, skipping")
			continue
		}
		req := domain.NewOrderRequest(d)
		if _, dup := seen[req.IdempotencyKey]; dup {
			continue
		}
		seen[req.IdempotencyKey] = struct{}{}
		requests = append(requests, req)
	}
	if len(requests) == 0 {
		return nil
	}

	batches := chunk(requests, c.cfg.BatchSize)
	out := make([][]domain.OrderResult, len(batches))

	sem := semaphore.NewWeighted(int64(c.cfg.SubmitConcurrency))
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []domain.OrderRequest) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				out[i] = abortedResults(batch, err)
				return
			}
			defer sem.Release(1)
			out[i] = c.submitBatch(ctx, cycleID, batch)
		}(i, batch)
	}
	wg.Wait()

	results := make([]domain.OrderResult, 0, len(requests))
	for _, batch := range out {
		results = append(results, batch...)
	}
	return results
}

// submitBatch resolves one batch sequentially, keeping submissions for the
// batch's keys serialized.
func (c *Coordinator) submitBatch(ctx context.Context, cycleID string, batch []domain.OrderRequest) []domain.OrderResult {
	results := make([]domain.OrderResult, 0, len(batch))
	for _, req := range batch {
		results = append(results, c.submitOne(ctx, cycleID, req))
	}
	return results
}

// submitOne drives a single order request to a terminal result.
func (c *Coordinator) submitOne(ctx context.Context, cycleID string, req domain.OrderRequest) domain.OrderResult {
	// A terminal outcome recorded earlier (this run or an interrupted one)
	// wins outright; resubmitting would risk a duplicate order.
	if prev, err := c.journal.Result(ctx, req.IdempotencyKey); err == nil && prev != nil {
		return *prev
	} else if err != nil {
		log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("journal lookup failed")
	}
	if status, ok, err := c.cache.Get(ctx, req.IdempotencyKey); err == nil && ok && status.Terminal() {
		return c.finalize(ctx, req, status, "", "resolved from status cache", 0)
	} else if err != nil {
		log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("status cache lookup failed")
	}

	// The request is journaled before the first dispatch so an interrupted
	// run can find and reconcile it.
	if err := c.journal.MarkPending(ctx, cycleID, req); err != nil {
		log.Error().Err(err).Str("key", req.IdempotencyKey).Msg("failed to journal order request")
	}

	dispatched := false
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt); err != nil {
				return c.failResult(req, attempt-1, fmt.Errorf("cycle cancelled during backoff: %w", err))
			}
		}

		// Once a request may have reached the supplier, the outcome has to
		// be reconciled by key before anything is sent again.
		if dispatched {
			status, err := c.api.QueryStatus(ctx, req.IdempotencyKey)
			switch {
			case err == nil && status.Terminal():
				return c.finalize(ctx, req, status, "", "resolved by status re-query", attempt)
			case err == nil:
				// Still pending on the supplier side; poll again.
				lastErr = fmt.Errorf("order still pending at supplier")
				continue
			case errors.Is(err, supplier.ErrStatusUnknown):
				// Provably never executed; safe to submit again.
				dispatched = false
			default:
				lastErr = err
				continue
			}
		}

		sub, err := c.api.Submit(ctx, req)
		if err == nil {
			if sub.Status.Terminal() {
				return c.finalize(ctx, req, sub.Status, sub.Ref, sub.Reason, attempt)
			}
			// Accepted but still processing: poll by key.
			dispatched = true
			lastErr = fmt.Errorf("supplier accepted order but it is still pending")
			continue
		}

		if supplier.WasDispatched(err) {
			dispatched = true
		}
		if !supplier.IsTransient(err) {
			var apiErr *supplier.APIError
			if errors.As(err, &apiErr) {
				// Terminal rejection: surfaced, never retried.
				return c.finalize(ctx, req, domain.OrderRejected, "", apiErr.Reason, attempt)
			}
			if !dispatched {
				return c.failResult(req, attempt, err)
			}
			// Ambiguous failure after dispatch (e.g. unreadable response):
			// the next attempt reconciles by key instead of resubmitting.
		}
		lastErr = err
		log.Warn().Err(err).
			Str("key", req.IdempotencyKey).
			Str("sku", req.SKU).
			Int("attempt", attempt).
			Bool("dispatched", dispatched).
			Msg("transient supplier failure")
	}

	return c.failResult(req, c.cfg.RetryAttempts, fmt.Errorf("retry attempts exhausted: %w", lastErr))
}

// Reconcile resolves every journaled request without a terminal outcome. Keys
// the supplier confirms or rejects are recorded; keys the supplier has never
// seen are resubmitted. This is how a cancelled cycle resumes without leaving
// batches in an unknown state.
func (c *Coordinator) Reconcile(ctx context.Context) ([]domain.OrderResult, error) {
	pending, err := c.journal.PendingRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}

	results := make([]domain.OrderResult, 0, len(pending))
	for _, req := range pending {
		status, err := c.api.QueryStatus(ctx, req.IdempotencyKey)
		switch {
		case err == nil && status.Terminal():
			results = append(results, c.finalize(ctx, req, status, "", "resolved during reconciliation", 1))
		case err == nil:
			log.Info().Str("key", req.IdempotencyKey).Msg("order still pending at supplier")
		case errors.Is(err, supplier.ErrStatusUnknown):
			results = append(results, c.submitOne(ctx, "reconcile", req))
		default:
			log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("status query failed during reconciliation")
		}
	}
	return results, nil
}

func (c *Coordinator) finalize(ctx context.Context, req domain.OrderRequest, status domain.OrderStatus, ref, reason string, attempts int) domain.OrderResult {
	res := domain.OrderResult{
		IdempotencyKey: req.IdempotencyKey,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
		Status:         status,
		SupplierRef:    ref,
		Reason:         reason,
		Attempts:       attempts,
		CompletedAt:    time.Now().UTC(),
	}
	if err := c.journal.RecordResult(ctx, res); err != nil {
		log.Error().Err(err).Str("key", req.IdempotencyKey).Msg("failed to journal order result")
	}
	if err := c.cache.Set(ctx, req.IdempotencyKey, status); err != nil {
		log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("failed to cache order status")
	}
	return res
}

func (c *Coordinator) failResult(req domain.OrderRequest, attempts int, err error) domain.OrderResult {
	res := domain.OrderResult{
		IdempotencyKey: req.IdempotencyKey,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
		Status:         domain.OrderFailed,
		Reason:         err.Error(),
		Attempts:       attempts,
		CompletedAt:    time.Now().UTC(),
	}
	if jErr := c.journal.RecordResult(context.Background(), res); jErr != nil {
		log.Error().Err(jErr).Str("key", req.IdempotencyKey).Msg("failed to journal order result")
	}
	return res
}

// backoff sleeps for an exponentially growing duration, capped at the
// configured maximum.
func (c *Coordinator) backoff(ctx context.Context, attempt int) error {
	d := c.cfg.RetryBackoff << (attempt - 2)
	if c.cfg.MaxRetryBackoff > 0 && d > c.cfg.MaxRetryBackoff {
		d = c.cfg.MaxRetryBackoff
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func chunk(reqs []domain.OrderRequest, size int) [][]domain.OrderRequest {
	batches := make([][]domain.OrderRequest, 0, (len(reqs)+size-1)/size)
	for start := 0; start < len(reqs); start += size {
		end := start + size
		if end > len(reqs) {
			end = len(reqs)
		}
		batches = append(batches, reqs[start:end])
	}
	return batches
}

func abortedResults(batch []domain.OrderRequest, err error) []domain.OrderResult {
	results := make([]domain.OrderResult, 0, len(batch))
	for _, req := range batch {
		results = append(results, domain.OrderResult{
			IdempotencyKey: req.IdempotencyKey,
			SKU:            req.SKU,
			Quantity:       req.Quantity,
			Status:         domain.OrderFailed,
			Reason:         fmt.Sprintf("batch aborted: %v", err),
			CompletedAt:    time.Now().UTC(),
		})
	}
	return results
}
