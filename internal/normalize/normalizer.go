// internal/normalize/normalizer.go
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/ingest"
)

// Snapshot is the canonical output of normalization: one SKU record and one
// ordered observation series per SKU, plus every record-level issue found.
type Snapshot struct {
	SKUs         []string
	Records      map[string]*domain.SKURecord
	Observations map[string][]domain.DemandObservation
	Issues       []*domain.CycleError
}

// Normalizer validates raw records into a canonical per-SKU snapshot.
type Normalizer struct {
	cfg config.CycleConfig
}

func New(cfg config.CycleConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// dateLayouts are tried in order when parsing record timestamps.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"01-02-2006",
}

// Normalize cleans and validates raw records. Malformed records are collected
// as issues and skipped; they never abort processing of other records.
func (n *Normalizer) Normalize(records []ingest.RawRecord) *Snapshot {
	snap := &Snapshot{
		Records:      make(map[string]*domain.SKURecord),
		Observations: make(map[string][]domain.DemandObservation),
	}

	type obsKey struct {
		sku string
		ts  time.Time
	}
	merged := make(map[obsKey]*domain.DemandObservation)
	latest := make(map[string]time.Time)

	for _, raw := range records {
		if raw.SKU == "" {
			snap.reject(raw, fmt.Errorf("missing sku"))
			continue
		}

		ts, err := parseTimestamp(raw.Date)
		if err != nil {
			snap.rejectSKU(raw, fmt.Errorf("unparseable timestamp %q", raw.Date))
			continue
		}

		var obs *domain.DemandObservation
		if raw.Sales != "" {
			qty, err := parseNumber(raw.Sales)
			if err != nil {
				snap.rejectSKU(raw, fmt.Errorf("quantity sold %q is not numeric", raw.Sales))
				continue
			}
			if qty < 0 {
				snap.rejectSKU(raw, fmt.Errorf("quantity sold %v is below zero", qty))
				continue
			}
			obs = &domain.DemandObservation{
				SKU:       raw.SKU,
				Timestamp: ts,
				Quantity:  qty,
				Promotion: parseFlag(raw.Promotion),
				Festival:  parseFlag(raw.Festival),
			}
		}

		onHand, err := parseNumber(raw.OnHand)
		if err != nil {
			snap.rejectSKU(raw, fmt.Errorf("on-hand quantity %q is not numeric", raw.OnHand))
			continue
		}
		if onHand < 0 {
			snap.rejectSKU(raw, fmt.Errorf("on-hand quantity %v is below zero", onHand))
			continue
		}

		// Sales events within one reporting tick are additive.
		if obs != nil {
			key := obsKey{sku: raw.SKU, ts: ts}
			if prev, ok := merged[key]; ok {
				prev.Quantity += obs.Quantity
				prev.Promotion = prev.Promotion || obs.Promotion
				prev.Festival = prev.Festival || obs.Festival
			} else {
				merged[key] = obs
			}
		}

		// The most recent row for a SKU supplies its inventory snapshot.
		if prev, ok := latest[raw.SKU]; ok && !ts.After(prev) {
			continue
		}
		latest[raw.SKU] = ts
		snap.Records[raw.SKU] = n.buildRecord(raw, onHand)
	}

	for key, obs := range merged {
		snap.Observations[key.sku] = append(snap.Observations[key.sku], *obs)
	}
	for sku := range snap.Observations {
		obs := snap.Observations[sku]
		sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })
	}

	for sku := range snap.Records {
		snap.SKUs = append(snap.SKUs, sku)
	}
	sort.Strings(snap.SKUs)

	// SKUs holding stock with no demand history are still processed, but the
	// forecaster must treat them as low confidence.
	for _, sku := range snap.SKUs {
		rec := snap.Records[sku]
		if rec.OnHand > 0 && len(snap.Observations[sku]) == 0 {
			rec.LowConfidence = true
			snap.Issues = append(snap.Issues, domain.NewCycleError(
				domain.KindIncompleteSnapshot, sku,
				fmt.Errorf("on-hand stock %d with no demand history", rec.OnHand)))
		}
	}

	return snap
}

func (n *Normalizer) buildRecord(raw ingest.RawRecord, onHand float64) *domain.SKURecord {
	onOrder, _ := parseNumber(raw.OnOrder)
	openSO, _ := parseNumber(raw.OpenSO)
	leadTime, _ := parseNumber(raw.LeadTimeDays)
	packSize, _ := parseNumber(raw.PackSize)
	minOrder, _ := parseNumber(raw.MinOrderQty)

	unitCost := decimal.Zero
	if raw.UnitCost != "" {
		if c, err := decimal.NewFromString(strings.ReplaceAll(raw.UnitCost, ",", "")); err == nil {
			unitCost = c
		}
	}

	// Stock already committed to open sale orders is not available to cover
	// demand, so it is folded out of the on-hand position here.
	available := onHand - openSO
	if available < 0 {
		available = 0
	}

	pack := int64(packSize)
	if pack <= 0 {
		pack = n.cfg.DefaultPackSize
	}
	min := int64(minOrder)
	if min <= 0 {
		min = n.cfg.DefaultMinOrderQty
	}

	return &domain.SKURecord{
		SKU:          raw.SKU,
		Company:      raw.Company,
		Warehouse:    raw.Warehouse,
		OnHand:       int64(available),
		OnOrder:      int64(onOrder),
		UnitCost:     unitCost,
		LeadTimeDays: int(leadTime),
		PackSize:     pack,
		MinOrderQty:  min,
	}
}

func (s *Snapshot) reject(raw ingest.RawRecord, err error) {
	s.Issues = append(s.Issues, &domain.CycleError{
		Kind: domain.KindMalformedRecord,
		Line: raw.Line,
		Err:  err,
	})
}

func (s *Snapshot) rejectSKU(raw ingest.RawRecord, err error) {
	s.Issues = append(s.Issues, &domain.CycleError{
		Kind: domain.KindMalformedRecord,
		SKU:  raw.SKU,
		Line: raw.Line,
		Err:  err,
	})
}

func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("no known layout matches %q", v)
}

func parseNumber(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	v = strings.ReplaceAll(v, ",", "")
	return strconv.ParseFloat(v, 64)
}

func parseFlag(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "YES", "Y", "TRUE", "1":
		return true
	}
	return false
}
