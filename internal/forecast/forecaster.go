// internal/forecast/forecaster.go
package forecast

import (
	"math"
	"time"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
)

// Forecaster estimates expected demand and demand variability per SKU using a
// rolling window of daily totals over the most recent observations.
type Forecaster struct {
	cfg config.CycleConfig
}

func New(cfg config.CycleConfig) *Forecaster {
	return &Forecaster{cfg: cfg}
}

// Estimate produces a fresh demand estimate for one SKU. The observation
// slice must be ordered by timestamp. A SKU with no history gets a zero
// estimate flagged low confidence; the policy engine treats those
// conservatively. The estimate is also flagged low confidence when the
// available history is too short to contain one full lead-time cycle.
func (f *Forecaster) Estimate(sku string, obs []domain.DemandObservation, leadTimeDays int) domain.DemandEstimate {
	horizon := leadTimeDays + f.cfg.ReviewPeriodDays

	est := domain.DemandEstimate{
		SKU:         sku,
		HorizonDays: horizon,
		WindowDays:  f.cfg.ForecastWindowDays,
	}

	if len(obs) == 0 {
		est.LowConfidence = true
		return est
	}

	daily := f.bucketDaily(obs)
	if len(daily) == 0 {
		// Promotion filtering can remove every observation; without usable
		// history the SKU is estimated like one that has none.
		est.Observations = len(obs)
		est.LowConfidence = true
		return est
	}
	window := f.cfg.ForecastWindowDays
	if window <= 0 {
		window = len(daily)
	}
	if len(daily) > window {
		daily = daily[len(daily)-window:]
	}
	est.WindowDays = len(daily)
	est.Observations = len(obs)

	var sum float64
	for _, q := range daily {
		sum += q
	}
	mean := sum / float64(len(daily))

	var stddev float64
	if len(daily) > 1 {
		var ss float64
		for _, q := range daily {
			d := q - mean
			ss += d * d
		}
		stddev = math.Sqrt(ss / float64(len(daily)-1))
	}

	est.MeanPerDay = mean
	est.StdDev = stddev

	// The window has to cover at least one full lead-time cycle for the
	// variance to mean anything.
	if leadTimeDays > 0 && len(daily) < leadTimeDays {
		est.LowConfidence = true
	}

	return est
}

// bucketDaily folds observations into per-day totals, zero-filling days with
// no sales between the first and last observation. Days without sales are
// real demand signal, not missing data.
func (f *Forecaster) bucketDaily(obs []domain.DemandObservation) []float64 {
	totals := make(map[time.Time]float64)
	var first, last time.Time
	for _, o := range obs {
		if f.cfg.ExcludePromotions && (o.Promotion || o.Festival) {
			continue
		}
		day := o.Timestamp.UTC().Truncate(24 * time.Hour)
		totals[day] += o.Quantity
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if first.IsZero() {
		return nil
	}

	days := int(last.Sub(first).Hours()/24) + 1
	daily := make([]float64, 0, days)
	for d := first; !d.After(last); d = d.Add(24 * time.Hour) {
		daily = append(daily, totals[d])
	}
	return daily
}
