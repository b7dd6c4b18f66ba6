// internal/domain/errors.go
package domain

import "fmt"

// ErrorKind classifies pipeline errors for end-of-cycle reporting.
type ErrorKind string

const (
	// KindMalformedRecord marks an input record that was rejected during
	// normalization. Recoverable: the record is skipped, the rest continue.
	KindMalformedRecord ErrorKind = "malformed_record"

	// KindIncompleteSnapshot marks a SKU holding stock but with no demand
	// history. Recoverable: the SKU is processed with a low-confidence flag.
	KindIncompleteSnapshot ErrorKind = "incomplete_snapshot"

	// KindInvalidLeadTime marks a SKU whose configured lead time is not
	// positive. Fatal for that SKU's decision.
	KindInvalidLeadTime ErrorKind = "invalid_lead_time"

	// KindTransientAPIFailure marks a supplier call that failed after all
	// retry attempts were exhausted.
	KindTransientAPIFailure ErrorKind = "transient_api_failure"

	// KindTerminalAPIRejection marks a supplier rejection that must not be
	// retried.
	KindTerminalAPIRejection ErrorKind = "terminal_api_rejection"
)

// CycleError is a single classified error captured during a replenishment
// cycle. Errors never abort other SKUs; they are collected and reported.
type CycleError struct {
	Kind ErrorKind
	SKU  string
	Line int // input line number, 0 when not applicable
	Err  error
}

func (e *CycleError) Error() string {
	switch {
	case e.SKU != "" && e.Line > 0:
		return fmt.Sprintf("%s: sku %s (line %d): %v", e.Kind, e.SKU, e.Line, e.Err)
	case e.SKU != "":
		return fmt.Sprintf("%s: sku %s: %v", e.Kind, e.SKU, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s: line %d: %v", e.Kind, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// NewCycleError builds a classified error for a SKU.
func NewCycleError(kind ErrorKind, sku string, err error) *CycleError {
	return &CycleError{Kind: kind, SKU: sku, Err: err}
}
