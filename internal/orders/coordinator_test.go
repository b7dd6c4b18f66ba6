// internal/orders/coordinator_test.go
package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/supplier"
)

// scriptedAPI replays canned responses per idempotency key, counting calls.
type scriptedAPI struct {
	mu       sync.Mutex
	submits  map[string]int
	queries  map[string]int
	onSubmit func(key string, call int) (supplier.Submission, error)
	onQuery  func(key string, call int) (domain.OrderStatus, error)
}

func newScriptedAPI() *scriptedAPI {
	return &scriptedAPI{
		submits: make(map[string]int),
		queries: make(map[string]int),
		onSubmit: func(string, int) (supplier.Submission, error) {
			return supplier.Submission{Status: domain.OrderConfirmed, Ref: "PO-000001"}, nil
		},
		onQuery: func(string, int) (domain.OrderStatus, error) {
			return "", supplier.ErrStatusUnknown
		},
	}
}

func (a *scriptedAPI) Submit(_ context.Context, req domain.OrderRequest) (supplier.Submission, error) {
	a.mu.Lock()
	a.submits[req.IdempotencyKey]++
	call := a.submits[req.IdempotencyKey]
	a.mu.Unlock()
	return a.onSubmit(req.IdempotencyKey, call)
}

func (a *scriptedAPI) QueryStatus(_ context.Context, key string) (domain.OrderStatus, error) {
	a.mu.Lock()
	a.queries[key]++
	call := a.queries[key]
	a.mu.Unlock()
	return a.onQuery(key, call)
}

func (a *scriptedAPI) submitCalls(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits[key]
}

func (a *scriptedAPI) queryCalls(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries[key]
}

func fastConfig() config.CycleConfig {
	cfg := config.DefaultCycleConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = 2 * time.Millisecond
	return cfg
}

func triggeredDecision(sku string) domain.Decision {
	return domain.Decision{
		SKU:       sku,
		OrderQty:  24,
		Triggered: true,
		DecidedAt: time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC),
	}
}

func TestSubmitAll_ConfirmsTriggeredDecisions(t *testing.T) {
	api := newScriptedAPI()
	jnl := journal.NewMemory()
	coord := NewCoordinator(api, jnl, nil, fastConfig())

	decisions := []domain.Decision{triggeredDecision("WIDGET-A"), triggeredDecision("WIDGET-B")}
	results := coord.SubmitAll(context.Background(), "cycle-1", decisions)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != domain.OrderConfirmed {
			t.Errorf("Expected confirmed status for %s, got %s", res.SKU, res.Status)
		}
		if res.SupplierRef == "" {
			t.Errorf("Expected a supplier reference for %s", res.SKU)
		}
		stored, err := jnl.Result(context.Background(), res.IdempotencyKey)
		if err != nil || stored == nil {
			t.Errorf("Expected journaled result for %s", res.IdempotencyKey)
		}
	}

	pending, _ := jnl.PendingRequests(context.Background())
	if len(pending) != 0 {
		t.Errorf("Expected no pending requests after completion, got %d", len(pending))
	}
}

func TestSubmitAll_SkipsNonTriggeredDecisions(t *testing.T) {
	api := newScriptedAPI()
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	d.Triggered = false
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 0 {
		t.Fatalf("Expected no results, got %d", len(results))
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 0 {
		t.Errorf("Expected no submissions, got %d", calls)
	}
}

func TestSubmitAll_CollapsesDuplicateKeys(t *testing.T) {
	api := newScriptedAPI()
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d, d, d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result for 3 duplicate decisions, got %d", len(results))
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", calls)
	}
}

func TestSubmitOne_RetriesTransientFailure(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(_ string, call int) (supplier.Submission, error) {
		if call == 1 {
			// Throttled before dispatch; resubmitting is safe.
			return supplier.Submission{}, &supplier.APIError{StatusCode: 429, Reason: "throttled"}
		}
		return supplier.Submission{Status: domain.OrderConfirmed, Ref: "PO-000001"}, nil
	}
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != domain.OrderConfirmed {
		t.Fatalf("Expected confirmed after retry, got %s (%s)", results[0].Status, results[0].Reason)
	}
	if results[0].Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", results[0].Attempts)
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 2 {
		t.Errorf("Expected 2 submissions, got %d", calls)
	}
	// The failure was never dispatched, so no status reconciliation happened.
	if calls := api.queryCalls(d.IdempotencyKey()); calls != 0 {
		t.Errorf("Expected no status queries, got %d", calls)
	}
}

func TestSubmitOne_ReconcilesInsteadOfResubmitting(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(_ string, _ int) (supplier.Submission, error) {
		// The order executed but the response was lost.
		return supplier.Submission{}, &supplier.APIError{StatusCode: 503, Reason: "response lost", Dispatched: true}
	}
	api.onQuery = func(_ string, _ int) (domain.OrderStatus, error) {
		return domain.OrderConfirmed, nil
	}
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != domain.OrderConfirmed {
		t.Fatalf("Expected confirmed via status re-query, got %s (%s)", results[0].Status, results[0].Reason)
	}
	// One dispatch only: the retry resolved by key instead of resubmitting.
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", calls)
	}
	if calls := api.queryCalls(d.IdempotencyKey()); calls != 1 {
		t.Errorf("Expected exactly 1 status query, got %d", calls)
	}
}

func TestSubmitOne_ResubmitsWhenStatusUnknown(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(_ string, call int) (supplier.Submission, error) {
		if call == 1 {
			// Connection-level drop with unknown outcome.
			return supplier.Submission{}, errors.New("unexpected EOF")
		}
		return supplier.Submission{Status: domain.OrderConfirmed, Ref: "PO-000002"}, nil
	}
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != domain.OrderConfirmed {
		t.Fatalf("Expected confirmed, got %s (%s)", results[0].Status, results[0].Reason)
	}
	// The status query proved the first attempt never executed, which makes
	// the second submission safe.
	if calls := api.queryCalls(d.IdempotencyKey()); calls != 1 {
		t.Errorf("Expected exactly 1 status query, got %d", calls)
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 2 {
		t.Errorf("Expected 2 submissions, got %d", calls)
	}
}

func TestSubmitOne_TerminalRejectionIsNotRetried(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(_ string, _ int) (supplier.Submission, error) {
		return supplier.Submission{}, &supplier.APIError{StatusCode: 422, Reason: "unknown sku", Dispatched: true}
	}
	coord := NewCoordinator(api, nil, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != domain.OrderRejected {
		t.Fatalf("Expected rejected status, got %s", results[0].Status)
	}
	if results[0].Reason != "unknown sku" {
		t.Errorf("Expected rejection reason to surface, got %q", results[0].Reason)
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", calls)
	}
}

func TestSubmitOne_ExhaustedRetriesFail(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(_ string, _ int) (supplier.Submission, error) {
		return supplier.Submission{}, &supplier.APIError{StatusCode: 503, Reason: "unavailable"}
	}
	cfg := fastConfig()
	cfg.RetryAttempts = 3
	coord := NewCoordinator(api, nil, nil, cfg)

	d := triggeredDecision("WIDGET-A")
	results := coord.SubmitAll(context.Background(), "cycle-1", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Status != domain.OrderFailed {
		t.Fatalf("Expected failed status, got %s", results[0].Status)
	}
	if results[0].Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", results[0].Attempts)
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 3 {
		t.Errorf("Expected 3 submissions, got %d", calls)
	}
}

func TestSubmitOne_JournaledResultShortCircuits(t *testing.T) {
	api := newScriptedAPI()
	jnl := journal.NewMemory()
	coord := NewCoordinator(api, jnl, nil, fastConfig())

	d := triggeredDecision("WIDGET-A")
	prior := domain.OrderResult{
		IdempotencyKey: d.IdempotencyKey(),
		SKU:            d.SKU,
		Quantity:       d.OrderQty,
		Status:         domain.OrderConfirmed,
		SupplierRef:    "PO-000042",
		CompletedAt:    time.Now().UTC(),
	}
	if err := jnl.RecordResult(context.Background(), prior); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	results := coord.SubmitAll(context.Background(), "cycle-2", []domain.Decision{d})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].SupplierRef != "PO-000042" {
		t.Errorf("Expected the journaled result to win, got %+v", results[0])
	}
	if calls := api.submitCalls(d.IdempotencyKey()); calls != 0 {
		t.Errorf("Expected no submissions for an already-resolved key, got %d", calls)
	}
}

func TestReconcile_ResolvesAndResubmitsPendingRequests(t *testing.T) {
	api := newScriptedAPI()
	jnl := journal.NewMemory()
	coord := NewCoordinator(api, jnl, nil, fastConfig())

	confirmed := domain.OrderRequest{IdempotencyKey: "WIDGET-A-100", SKU: "WIDGET-A", Quantity: 10}
	unknown := domain.OrderRequest{IdempotencyKey: "WIDGET-B-100", SKU: "WIDGET-B", Quantity: 20}
	if err := jnl.MarkPending(context.Background(), "cycle-1", confirmed); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}
	if err := jnl.MarkPending(context.Background(), "cycle-1", unknown); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}

	api.onQuery = func(key string, _ int) (domain.OrderStatus, error) {
		if key == confirmed.IdempotencyKey {
			return domain.OrderConfirmed, nil
		}
		return "", supplier.ErrStatusUnknown
	}

	results, err := coord.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	byKey := make(map[string]domain.OrderResult)
	for _, res := range results {
		byKey[res.IdempotencyKey] = res
	}
	if byKey[confirmed.IdempotencyKey].Status != domain.OrderConfirmed {
		t.Errorf("Expected the dispatched key to resolve confirmed, got %s", byKey[confirmed.IdempotencyKey].Status)
	}
	if byKey[unknown.IdempotencyKey].Status != domain.OrderConfirmed {
		t.Errorf("Expected the unknown key to be resubmitted and confirmed, got %s", byKey[unknown.IdempotencyKey].Status)
	}

	// The already-dispatched request must not have been submitted again.
	if calls := api.submitCalls(confirmed.IdempotencyKey); calls != 0 {
		t.Errorf("Expected no resubmission for %s, got %d", confirmed.IdempotencyKey, calls)
	}
	if calls := api.submitCalls(unknown.IdempotencyKey); calls != 1 {
		t.Errorf("Expected 1 submission for %s, got %d", unknown.IdempotencyKey, calls)
	}

	pending, _ := jnl.PendingRequests(context.Background())
	if len(pending) != 0 {
		t.Errorf("Expected no pending requests after reconciliation, got %d", len(pending))
	}
}

func TestSubmitAll_BatchesAreIndependent(t *testing.T) {
	api := newScriptedAPI()
	api.onSubmit = func(key string, _ int) (supplier.Submission, error) {
		if key == "WIDGET-A-1736920800" {
			return supplier.Submission{}, &supplier.APIError{StatusCode: 422, Reason: "unknown sku", Dispatched: true}
		}
		return supplier.Submission{Status: domain.OrderConfirmed, Ref: "PO-000009"}, nil
	}

	cfg := fastConfig()
	cfg.BatchSize = 1
	cfg.SubmitConcurrency = 2
	coord := NewCoordinator(api, nil, nil, cfg)

	decisions := []domain.Decision{
		triggeredDecision("WIDGET-A"),
		triggeredDecision("WIDGET-B"),
		triggeredDecision("WIDGET-C"),
	}
	results := coord.SubmitAll(context.Background(), "cycle-1", decisions)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	confirmed := 0
	rejected := 0
	for _, res := range results {
		switch res.Status {
		case domain.OrderConfirmed:
			confirmed++
		case domain.OrderRejected:
			rejected++
		}
	}
	if confirmed != 2 || rejected != 1 {
		t.Errorf("Expected 2 confirmed and 1 rejected, got %d confirmed %d rejected", confirmed, rejected)
	}
}
