// internal/journal/journal.go
package journal

import (
	"context"
	"sync"

	"github.com/stockpilot/replenisher/internal/domain"
)

// Journal persists decisions and order outcomes keyed by idempotency key.
// An interrupted cycle resumes by reconciling every pending request it finds
// here, so a request must be journaled before it is dispatched.
type Journal interface {
	// RecordDecision stores an immutable decision made during a cycle.
	RecordDecision(ctx context.Context, cycleID string, d domain.Decision) error

	// MarkPending journals an order request before its first dispatch.
	MarkPending(ctx context.Context, cycleID string, req domain.OrderRequest) error

	// RecordResult stores the terminal outcome for a request.
	RecordResult(ctx context.Context, res domain.OrderResult) error

	// Result returns the terminal outcome for an idempotency key, or nil
	// when the key is unknown or still pending.
	Result(ctx context.Context, idempotencyKey string) (*domain.OrderResult, error)

	// PendingRequests returns every journaled request without a terminal
	// outcome, for status reconciliation.
	PendingRequests(ctx context.Context) ([]domain.OrderRequest, error)
}

// Memory is an in-process journal used by tests and journal-less runs.
type Memory struct {
	mu        sync.Mutex
	decisions map[string]domain.Decision
	pending   map[string]domain.OrderRequest
	results   map[string]domain.OrderResult
}

func NewMemory() *Memory {
	return &Memory{
		decisions: make(map[string]domain.Decision),
		pending:   make(map[string]domain.OrderRequest),
		results:   make(map[string]domain.OrderResult),
	}
}

func (m *Memory) RecordDecision(_ context.Context, _ string, d domain.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.IdempotencyKey()] = d
	return nil
}

func (m *Memory) MarkPending(_ context.Context, _ string, req domain.OrderRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.results[req.IdempotencyKey]; !done {
		m.pending[req.IdempotencyKey] = req
	}
	return nil
}

func (m *Memory) RecordResult(_ context.Context, res domain.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.IdempotencyKey] = res
	delete(m.pending, res.IdempotencyKey)
	return nil
}

func (m *Memory) Result(_ context.Context, key string) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.results[key]; ok {
		return &res, nil
	}
	return nil, nil
}

func (m *Memory) PendingRequests(_ context.Context) ([]domain.OrderRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]domain.OrderRequest, 0, len(m.pending))
	for _, req := range m.pending {
		reqs = append(reqs, req)
	}
	return reqs, nil
}
