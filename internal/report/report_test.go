// internal/report/report_test.go
package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stockpilot/replenisher/internal/domain"
)

func sampleReport() *CycleReport {
	return &CycleReport{
		CycleID:       "cycle-1",
		SKUsEvaluated: 2,
		Rows: []Row{
			{SKU: "WIDGET-A", Forecast: 10, OnHand: 40, ReorderPoint: 78.73, SafetyStock: 8.73, OrderQty: 39},
			{SKU: "WIDGET-B", Forecast: 2, OnHand: 500, ReorderPoint: 15.2, SafetyStock: 1.2},
		},
	}
}

func TestAddResult_CountsAndAnnotatesRows(t *testing.T) {
	rep := sampleReport()

	rep.AddResult(domain.OrderResult{SKU: "WIDGET-A", Status: domain.OrderConfirmed})

	if rep.OrdersConfirmed != 1 {
		t.Errorf("Expected 1 confirmed, got %d", rep.OrdersConfirmed)
	}
	if rep.Rows[0].Status != "confirmed" {
		t.Errorf("Expected row status confirmed, got %q", rep.Rows[0].Status)
	}
	if rep.Rows[1].Status != "" {
		t.Errorf("Expected untouched row status, got %q", rep.Rows[1].Status)
	}
	if rep.HasFailures() {
		t.Error("Expected no failures")
	}
}

func TestHasFailures(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		want   bool
	}{
		{"confirmed", domain.OrderConfirmed, false},
		{"rejected", domain.OrderRejected, true},
		{"failed", domain.OrderFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := sampleReport()
			rep.AddResult(domain.OrderResult{SKU: "WIDGET-A", Status: tt.status})
			if got := rep.HasFailures(); got != tt.want {
				t.Errorf("HasFailures() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorsByKind(t *testing.T) {
	rep := sampleReport()
	rep.Errors = []*domain.CycleError{
		{Kind: domain.KindMalformedRecord, Line: 4},
		{Kind: domain.KindMalformedRecord, Line: 9},
		{Kind: domain.KindInvalidLeadTime, SKU: "WIDGET-C"},
	}

	grouped := rep.ErrorsByKind()
	if len(grouped[domain.KindMalformedRecord]) != 2 {
		t.Errorf("Expected 2 malformed-record errors, got %d", len(grouped[domain.KindMalformedRecord]))
	}
	if len(grouped[domain.KindInvalidLeadTime]) != 1 {
		t.Errorf("Expected 1 invalid-lead-time error, got %d", len(grouped[domain.KindInvalidLeadTime]))
	}
}

func TestRenderTable(t *testing.T) {
	rep := sampleReport()
	rep.AddResult(domain.OrderResult{SKU: "WIDGET-A", Status: domain.OrderConfirmed})

	var buf bytes.Buffer
	rep.RenderTable(&buf)
	out := buf.String()

	for _, want := range []string{"cycle-1", "WIDGET-A", "WIDGET-B", "confirmed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table output to contain %q:\n%s", want, out)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	rep := sampleReport()

	var buf bytes.Buffer
	if err := rep.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "cycle_id" || rows[0][1] != "sku" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][1] != "WIDGET-A" || rows[1][7] != "39" {
		t.Errorf("Unexpected first data row: %v", rows[1])
	}
}
