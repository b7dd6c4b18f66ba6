// internal/service/replenishment_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stockpilot/replenisher/internal/cycle"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/ingest"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/orders"
	"github.com/stockpilot/replenisher/internal/report"
)

// ErrCycleRunning is returned when a cycle trigger arrives while a cycle is
// already in flight. Cycles never overlap.
var ErrCycleRunning = errors.New("a replenishment cycle is already running")

// ReplenishmentService exposes cycle execution and order lookups to the API.
type ReplenishmentService struct {
	runner  *cycle.Runner
	coord   *orders.Coordinator
	journal journal.Journal

	mu         sync.Mutex
	running    bool
	lastReport *report.CycleReport
}

func NewReplenishmentService(runner *cycle.Runner, coord *orders.Coordinator, jnl journal.Journal) *ReplenishmentService {
	return &ReplenishmentService{runner: runner, coord: coord, journal: jnl}
}

// RunCycle ingests the given CSV and runs one replenishment cycle.
func (s *ReplenishmentService) RunCycle(ctx context.Context, csvPath string) (*report.CycleReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrCycleRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	records, err := ingest.ReadFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("ingestion failed: %w", err)
	}

	rep, err := s.runner.Run(ctx, records)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastReport = rep
	s.mu.Unlock()
	return rep, nil
}

// Reconcile resolves journaled requests whose outcome is still unknown.
func (s *ReplenishmentService) Reconcile(ctx context.Context) ([]domain.OrderResult, error) {
	return s.coord.Reconcile(ctx)
}

// LatestReport returns the most recent cycle report, or nil when no cycle has
// run yet.
func (s *ReplenishmentService) LatestReport() *report.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// OrderStatus looks up the terminal result for an idempotency key.
func (s *ReplenishmentService) OrderStatus(ctx context.Context, idempotencyKey string) (*domain.OrderResult, error) {
	return s.journal.Result(ctx, idempotencyKey)
}
