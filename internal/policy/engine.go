// internal/policy/engine.go
package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
)

// Engine computes reorder point, safety stock and order quantity per SKU and
// decides whether the SKU triggers an order this cycle.
type Engine struct {
	cfg config.CycleConfig
	z   float64
}

func New(cfg config.CycleConfig) *Engine {
	return &Engine{cfg: cfg, z: ZScore(cfg.ServiceLevel)}
}

// zTable maps service-level targets to inverse-normal quantiles. Lookups pick
// the smallest entry at or above the requested level, erring on the side of
// more safety stock for levels between entries.
var zTable = []struct {
	level float64
	z     float64
}{
	{0.50, 0.00},
	{0.80, 0.84},
	{0.85, 1.04},
	{0.90, 1.28},
	{0.95, 1.65},
	{0.975, 1.96},
	{0.98, 2.05},
	{0.99, 2.33},
	{0.995, 2.58},
}

// ZScore returns the inverse-normal quantile for a service-level target.
func ZScore(serviceLevel float64) float64 {
	for _, e := range zTable {
		if serviceLevel <= e.level {
			return e.z
		}
	}
	return zTable[len(zTable)-1].z
}

// Decide produces the replenishment decision for one SKU. A non-positive
// lead time is a configuration error: it fails fast rather than defaulting
// to zero, which would suppress reordering for the SKU entirely.
func (e *Engine) Decide(rec *domain.SKURecord, est domain.DemandEstimate, now time.Time) (domain.Decision, error) {
	if rec.LeadTimeDays <= 0 {
		return domain.Decision{}, domain.NewCycleError(domain.KindInvalidLeadTime, rec.SKU,
			fmt.Errorf("lead time %d days must be positive", rec.LeadTimeDays))
	}

	leadTime := float64(rec.LeadTimeDays)
	lowConfidence := est.LowConfidence || rec.LowConfidence

	safetyStock := e.z * est.StdDev * math.Sqrt(leadTime)
	if lowConfidence && safetyStock < e.cfg.SafetyStockFloor {
		// Zero variance from missing data must not translate into zero
		// buffer stock.
		safetyStock = e.cfg.SafetyStockFloor
	}

	reorderPoint := est.MeanPerDay*leadTime + safetyStock
	position := rec.OnHand + rec.OnOrder
	triggered := float64(position) <= reorderPoint

	d := domain.Decision{
		SKU:           rec.SKU,
		ReorderPoint:  reorderPoint,
		SafetyStock:   safetyStock,
		Triggered:     triggered,
		LowConfidence: lowConfidence,
		DecidedAt:     now,
	}

	if !triggered {
		return d, nil
	}

	qty := int64(math.Ceil(reorderPoint - float64(position)))
	if qty < rec.MinOrderQty {
		qty = rec.MinOrderQty
	}
	qty = roundUpToPack(qty, rec.PackSize)
	if qty <= 0 {
		// The position sits exactly on the reorder point; there is nothing
		// to order, so no request may reach the supplier.
		d.Triggered = false
		return d, nil
	}
	d.OrderQty = qty
	d.OrderValue = rec.UnitCost.Mul(decimal.NewFromInt(qty))

	return d, nil
}

// roundUpToPack rounds qty up to the next multiple of the supplier pack size.
func roundUpToPack(qty, pack int64) int64 {
	if pack <= 1 || qty <= 0 {
		return qty
	}
	if rem := qty % pack; rem != 0 {
		return qty + pack - rem
	}
	return qty
}
