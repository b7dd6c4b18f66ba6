// internal/supplier/supplier.go
package supplier

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/stockpilot/replenisher/internal/domain"
)

// Submission is the supplier's reply to a submit call.
type Submission struct {
	Status domain.OrderStatus `json:"status"`
	Ref    string             `json:"ref,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// OrderAPI is the contract the submission coordinator depends on. Transport
// and authentication details stay behind this interface.
type OrderAPI interface {
	// Submit places a purchase order. The idempotency key on the request
	// guarantees a repeated call has at most one effective execution.
	Submit(ctx context.Context, req domain.OrderRequest) (Submission, error)

	// QueryStatus returns the current status for an idempotency key, or
	// ErrStatusUnknown when the supplier has no record of it.
	QueryStatus(ctx context.Context, idempotencyKey string) (domain.OrderStatus, error)
}

// ErrStatusUnknown means the supplier has never seen the idempotency key, so
// the request it belongs to was provably not executed.
var ErrStatusUnknown = errors.New("supplier has no record of idempotency key")

// APIError is a classified failure from the supplier API.
type APIError struct {
	StatusCode int
	Reason     string
	// Dispatched is true when the request reached the supplier, meaning the
	// outcome may exist server-side even though this call failed.
	Dispatched bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supplier api error (status %d): %s", e.StatusCode, e.Reason)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	}
	return false
}

// IsTransient reports whether err is a retryable failure: supplier 5xx and
// throttling responses, timeouts and connection-level faults.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// WasDispatched reports whether the failed request may have reached the
// supplier. Unknown failures count as dispatched: when the outcome cannot be
// ruled out, the caller must reconcile before retrying.
func WasDispatched(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Dispatched
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return false
	}
	return true
}
