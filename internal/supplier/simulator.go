// internal/supplier/simulator.go
package supplier

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/stockpilot/replenisher/internal/domain"
)

// Simulator is an in-memory supplier used by dry runs, tests and the mock
// supplier server. It honors idempotency keys the way a real ordering API
// should: replays of a known key return the recorded outcome instead of
// creating a second order.
type Simulator struct {
	// DropRate is the probability that a submit call records the order but
	// returns a transient error, simulating a lost response. The caller can
	// only learn the real outcome through QueryStatus.
	DropRate float64
	// RejectSKUs maps SKUs to a rejection reason, simulating terminal
	// supplier rejections (unknown SKU, quantity not allowed).
	RejectSKUs map[string]string
	// MinLatency and MaxLatency bound the simulated response delay.
	MinLatency time.Duration
	MaxLatency time.Duration

	mu     sync.Mutex
	orders map[string]Submission
	rng    *rand.Rand
	seq    int64
}

func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		orders: make(map[string]Submission),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Submit records and confirms an order, subject to the configured failure
// injection. Replayed idempotency keys return the previously recorded outcome.
func (s *Simulator) Submit(ctx context.Context, req domain.OrderRequest) (Submission, error) {
	if err := s.sleep(ctx); err != nil {
		return Submission{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.orders[req.IdempotencyKey]; ok {
		return sub, nil
	}

	if reason, ok := s.RejectSKUs[req.SKU]; ok {
		sub := Submission{Status: domain.OrderRejected, Reason: reason}
		s.orders[req.IdempotencyKey] = sub
		return sub, nil
	}

	s.seq++
	sub := Submission{
		Status: domain.OrderConfirmed,
		Ref:    fmt.Sprintf("PO-%06d", s.seq),
	}
	s.orders[req.IdempotencyKey] = sub

	// The order is recorded before the failure is injected: the response is
	// lost, not the order. This is the ambiguous case the coordinator must
	// resolve by status re-query.
	if s.DropRate > 0 && s.rng.Float64() < s.DropRate {
		return Submission{}, &APIError{
			StatusCode: 503,
			Reason:     "simulated response loss",
			Dispatched: true,
		}
	}

	return sub, nil
}

// QueryStatus returns the recorded outcome for an idempotency key.
func (s *Simulator) QueryStatus(ctx context.Context, idempotencyKey string) (domain.OrderStatus, error) {
	if err := s.sleep(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.orders[idempotencyKey]
	if !ok {
		return "", ErrStatusUnknown
	}
	return sub.Status, nil
}

// Lookup returns the full recorded submission, used by the mock supplier
// server's status endpoint.
func (s *Simulator) Lookup(idempotencyKey string) (Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.orders[idempotencyKey]
	return sub, ok
}

// OrderCount reports how many distinct orders have been recorded.
func (s *Simulator) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.MaxLatency <= 0 {
		return ctx.Err()
	}
	d := s.MinLatency
	if spread := s.MaxLatency - s.MinLatency; spread > 0 {
		s.mu.Lock()
		d += time.Duration(s.rng.Int63n(int64(spread)))
		s.mu.Unlock()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
