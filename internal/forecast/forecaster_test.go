// internal/forecast/forecaster_test.go
package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC)
}

func obsSeries(sku string, quantities ...float64) []domain.DemandObservation {
	obs := make([]domain.DemandObservation, 0, len(quantities))
	for i, q := range quantities {
		obs = append(obs, domain.DemandObservation{SKU: sku, Timestamp: day(i + 1), Quantity: q})
	}
	return obs
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimate_MeanAndStdDev(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	f := New(cfg)

	est := f.Estimate("WIDGET-A", obsSeries("WIDGET-A", 2, 4, 6), 2)

	if !almostEqual(est.MeanPerDay, 4) {
		t.Errorf("Expected mean 4, got %v", est.MeanPerDay)
	}
	// Sample standard deviation of [2,4,6] is exactly 2.
	if !almostEqual(est.StdDev, 2) {
		t.Errorf("Expected stddev 2, got %v", est.StdDev)
	}
	if est.LowConfidence {
		t.Error("Expected full-confidence estimate: window covers the lead time")
	}
	if est.HorizonDays != 2+cfg.ReviewPeriodDays {
		t.Errorf("Expected horizon %d, got %d", 2+cfg.ReviewPeriodDays, est.HorizonDays)
	}
}

func TestEstimate_NoHistoryIsZeroAndLowConfidence(t *testing.T) {
	est := New(config.DefaultCycleConfig()).Estimate("WIDGET-A", nil, 7)

	if est.MeanPerDay != 0 || est.StdDev != 0 {
		t.Errorf("Expected zero estimate, got mean=%v stddev=%v", est.MeanPerDay, est.StdDev)
	}
	if !est.LowConfidence {
		t.Error("Expected low-confidence flag for a SKU with no history")
	}
}

func TestEstimate_ZeroFillsMissingDays(t *testing.T) {
	obs := []domain.DemandObservation{
		{SKU: "WIDGET-A", Timestamp: day(1), Quantity: 5},
		{SKU: "WIDGET-A", Timestamp: day(3), Quantity: 7},
	}

	est := New(config.DefaultCycleConfig()).Estimate("WIDGET-A", obs, 2)

	// Daily series is [5, 0, 7]: the silent day counts as zero demand.
	if !almostEqual(est.MeanPerDay, 4) {
		t.Errorf("Expected mean 4 over zero-filled series, got %v", est.MeanPerDay)
	}
	if est.WindowDays != 3 {
		t.Errorf("Expected window of 3 days, got %d", est.WindowDays)
	}
}

func TestEstimate_WindowKeepsMostRecentDays(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.ForecastWindowDays = 2

	est := New(cfg).Estimate("WIDGET-A", obsSeries("WIDGET-A", 100, 10, 20), 2)

	// Only the last two days survive the window.
	if !almostEqual(est.MeanPerDay, 15) {
		t.Errorf("Expected windowed mean 15, got %v", est.MeanPerDay)
	}
	if est.WindowDays != 2 {
		t.Errorf("Expected window of 2 days, got %d", est.WindowDays)
	}
}

func TestEstimate_ShortHistoryIsLowConfidence(t *testing.T) {
	est := New(config.DefaultCycleConfig()).Estimate("WIDGET-A", obsSeries("WIDGET-A", 3, 3, 3), 7)

	if !est.LowConfidence {
		t.Error("Expected low confidence: 3 days of history cannot cover a 7-day lead time")
	}
}

func TestEstimate_AllPromotionalHistoryFallsBackToZero(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.ExcludePromotions = true

	obs := []domain.DemandObservation{
		{SKU: "WIDGET-A", Timestamp: day(1), Quantity: 300, Promotion: true},
		{SKU: "WIDGET-A", Timestamp: day(2), Quantity: 250, Festival: true},
	}

	est := New(cfg).Estimate("WIDGET-A", obs, 7)

	// Filtering removed every observation: the estimate must degrade to the
	// zero-history fallback, never to NaN.
	if math.IsNaN(est.MeanPerDay) || math.IsNaN(est.StdDev) {
		t.Fatalf("Expected finite estimate, got mean=%v stddev=%v", est.MeanPerDay, est.StdDev)
	}
	if est.MeanPerDay != 0 || est.StdDev != 0 {
		t.Errorf("Expected zero estimate, got mean=%v stddev=%v", est.MeanPerDay, est.StdDev)
	}
	if !est.LowConfidence {
		t.Error("Expected low-confidence flag when no usable history remains")
	}
}

func TestEstimate_ExcludesPromotionDays(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.ExcludePromotions = true

	obs := []domain.DemandObservation{
		{SKU: "WIDGET-A", Timestamp: day(1), Quantity: 10},
		{SKU: "WIDGET-A", Timestamp: day(2), Quantity: 500, Promotion: true},
		{SKU: "WIDGET-A", Timestamp: day(3), Quantity: 10},
		{SKU: "WIDGET-A", Timestamp: day(4), Quantity: 200, Festival: true},
	}

	est := New(cfg).Estimate("WIDGET-A", obs, 2)

	// The promotion day turns into a zero-filled gap, the festival tail drops.
	if !almostEqual(est.MeanPerDay, 20.0/3.0) {
		t.Errorf("Expected mean %v without promo days, got %v", 20.0/3.0, est.MeanPerDay)
	}
}
