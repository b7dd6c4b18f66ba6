// internal/domain/models.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SKURecord is the current inventory snapshot for a single stock-keeping unit.
// It is produced by normalization and only changes when ingestion runs again
// or an order for the SKU is confirmed.
type SKURecord struct {
	SKU           string          `json:"sku" db:"sku"`
	Company       string          `json:"company" db:"company"`
	Warehouse     string          `json:"warehouse" db:"warehouse"`
	OnHand        int64           `json:"on_hand" db:"on_hand"`
	OnOrder       int64           `json:"on_order" db:"on_order"`
	UnitCost      decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	LeadTimeDays  int             `json:"lead_time_days" db:"lead_time_days"`
	PackSize      int64           `json:"pack_size" db:"pack_size"`
	MinOrderQty   int64           `json:"min_order_qty" db:"min_order_qty"`
	LowConfidence bool            `json:"low_confidence" db:"low_confidence"`
}

// DemandObservation is a single sales event for a SKU. Observations are
// append-only and ordered by timestamp within a SKU.
type DemandObservation struct {
	SKU       string    `json:"sku" db:"sku"`
	Timestamp time.Time `json:"timestamp" db:"observed_at"`
	Quantity  float64   `json:"quantity" db:"quantity"`
	Promotion bool      `json:"promotion" db:"promotion"`
	Festival  bool      `json:"festival" db:"festival"`
}

// DemandEstimate is the per-cycle forecast for a SKU. A fresh estimate is
// produced every cycle; previous estimates are never mutated.
type DemandEstimate struct {
	SKU           string  `json:"sku"`
	MeanPerDay    float64 `json:"mean_per_day"`
	StdDev        float64 `json:"std_dev"`
	HorizonDays   int     `json:"horizon_days"` // lead time + review period
	WindowDays    int     `json:"window_days"`
	Observations  int     `json:"observations"`
	LowConfidence bool    `json:"low_confidence"`
}

// Decision is an immutable replenishment decision for one SKU in one cycle.
type Decision struct {
	SKU           string          `json:"sku"`
	ReorderPoint  float64         `json:"reorder_point"`
	SafetyStock   float64         `json:"safety_stock"`
	OrderQty      int64           `json:"order_qty"`
	OrderValue    decimal.Decimal `json:"order_value"`
	Triggered     bool            `json:"triggered"`
	LowConfidence bool            `json:"low_confidence"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// IdempotencyKey derives the deterministic key for this decision. A retried
// submission for the same decision always carries the same key.
func (d Decision) IdempotencyKey() string {
	return fmt.Sprintf("%s-%d", d.SKU, d.DecidedAt.UTC().Unix())
}

// OrderStatus is the lifecycle state of an order request.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderRejected  OrderStatus = "rejected"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderConfirmed, OrderRejected, OrderFailed:
		return true
	}
	return false
}

// OrderRequest is a submission attempt derived from a triggered decision.
type OrderRequest struct {
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	SKU            string    `json:"sku" db:"sku"`
	Quantity       int64     `json:"quantity" db:"quantity"`
	DecidedAt      time.Time `json:"decided_at" db:"decided_at"`
}

// NewOrderRequest builds the request for a triggered decision.
func NewOrderRequest(d Decision) OrderRequest {
	return OrderRequest{
		IdempotencyKey: d.IdempotencyKey(),
		SKU:            d.SKU,
		Quantity:       d.OrderQty,
		DecidedAt:      d.DecidedAt,
	}
}

// OrderResult is the terminal record for an order request.
type OrderResult struct {
	IdempotencyKey string      `json:"idempotency_key" db:"idempotency_key"`
	SKU            string      `json:"sku" db:"sku"`
	Quantity       int64       `json:"quantity" db:"quantity"`
	Status         OrderStatus `json:"status" db:"status"`
	SupplierRef    string      `json:"supplier_ref,omitempty" db:"supplier_ref"`
	Reason         string      `json:"reason,omitempty" db:"reason"`
	Attempts       int         `json:"attempts" db:"attempts"`
	CompletedAt    time.Time   `json:"completed_at" db:"completed_at"`
}
