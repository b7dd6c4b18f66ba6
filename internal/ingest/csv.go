// internal/ingest/csv.go
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawRecord is one row from an ingestion source, untouched except for header
// mapping and whitespace trimming. Field validation and type conversion happen
// in the normalizer so that bad values are reported, not dropped here.
type RawRecord struct {
	Line         int
	Company      string
	Warehouse    string
	SKU          string
	Date         string
	Sales        string
	OnHand       string
	OnOrder      string
	OpenSO       string
	UnitCost     string
	LeadTimeDays string
	PackSize     string
	MinOrderQty  string
	Promotion    string
	Festival     string
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// ReadFile reads raw records from a CSV file.
func ReadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open input file %s: %w", path, err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// Read reads raw records from CSV data. Column headers are matched after
// lowercasing and stripping separators, so "Open_PO", "open po" and "OpenPO"
// all resolve to the same field.
func Read(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := func(names ...string) int {
		targets := make(map[string]struct{}, len(names))
		for _, name := range names {
			targets[normalizeColumnName(name)] = struct{}{}
		}
		for i, h := range header {
			if _, ok := targets[normalizeColumnName(h)]; ok {
				return i
			}
		}
		return -1
	}

	idxCompany := colIndex("company")
	idxWarehouse := colIndex("warehouse", "store")
	idxSKU := colIndex("sku")
	idxDate := colIndex("date", "timestamp")
	idxSales := colIndex("sales", "quantity_sold", "qty_sold")
	idxOnHand := colIndex("soh", "on_hand", "stock_on_hand", "stock")
	idxOnOrder := colIndex("open_po", "on_order")
	idxOpenSO := colIndex("open_so")
	idxUnitCost := colIndex("unit_cost", "cost", "hpp")
	idxLeadTime := colIndex("lead_time", "lead_time_days")
	idxPackSize := colIndex("pack_size")
	idxMinOrder := colIndex("min_order", "min_order_qty")
	idxPromotion := colIndex("promotion")
	idxFestival := colIndex("festival")

	if idxSKU == -1 {
		return nil, fmt.Errorf("input has no recognizable sku column (header: %s)", strings.Join(header, ","))
	}

	records := make([]RawRecord, 0)
	line := 1 // header was line 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row after line %d: %w", line, err)
		}
		line++

		get := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		records = append(records, RawRecord{
			Line:         line,
			Company:      get(idxCompany),
			Warehouse:    get(idxWarehouse),
			SKU:          get(idxSKU),
			Date:         get(idxDate),
			Sales:        get(idxSales),
			OnHand:       get(idxOnHand),
			OnOrder:      get(idxOnOrder),
			OpenSO:       get(idxOpenSO),
			UnitCost:     get(idxUnitCost),
			LeadTimeDays: get(idxLeadTime),
			PackSize:     get(idxPackSize),
			MinOrderQty:  get(idxMinOrder),
			Promotion:    get(idxPromotion),
			Festival:     get(idxFestival),
		})
	}

	return records, nil
}
