// internal/report/report.go
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/replenisher/internal/domain"
)

// Row is one SKU's line in the cycle summary.
type Row struct {
	SKU           string  `json:"sku"`
	Forecast      float64 `json:"forecast"`
	OnHand        int64   `json:"on_hand"`
	OnOrder       int64   `json:"on_order"`
	ReorderPoint  float64 `json:"reorder_point"`
	SafetyStock   float64 `json:"safety_stock"`
	OrderQty      int64   `json:"order_qty"`
	Status        string  `json:"status"`
	LowConfidence bool    `json:"low_confidence"`
}

// CycleReport summarizes one replenishment cycle: what was evaluated, what
// was ordered, and every error encountered grouped by kind and SKU.
type CycleReport struct {
	CycleID         string               `json:"cycle_id"`
	StartedAt       time.Time            `json:"started_at"`
	CompletedAt     time.Time            `json:"completed_at"`
	SKUsEvaluated   int                  `json:"skus_evaluated"`
	OrdersTriggered int                  `json:"orders_triggered"`
	OrdersConfirmed int                  `json:"orders_confirmed"`
	OrdersRejected  int                  `json:"orders_rejected"`
	OrdersFailed    int                  `json:"orders_failed"`
	TotalOrderValue decimal.Decimal      `json:"total_order_value"`
	Rows            []Row                `json:"rows"`
	Errors          []*domain.CycleError `json:"-"`
}

// HasFailures reports whether any order ended in a terminal failed or
// rejected state. The CLI exits non-zero when this is true.
func (r *CycleReport) HasFailures() bool {
	return r.OrdersFailed > 0 || r.OrdersRejected > 0
}

// AddResult folds an order result into the report counters and rows.
func (r *CycleReport) AddResult(res domain.OrderResult) {
	switch res.Status {
	case domain.OrderConfirmed:
		r.OrdersConfirmed++
	case domain.OrderRejected:
		r.OrdersRejected++
	case domain.OrderFailed:
		r.OrdersFailed++
	}
	for i := range r.Rows {
		if r.Rows[i].SKU == res.SKU {
			r.Rows[i].Status = string(res.Status)
			return
		}
	}
}

// ErrorsByKind groups the cycle's errors for reporting.
func (r *CycleReport) ErrorsByKind() map[domain.ErrorKind][]*domain.CycleError {
	grouped := make(map[domain.ErrorKind][]*domain.CycleError)
	for _, e := range r.Errors {
		grouped[e.Kind] = append(grouped[e.Kind], e)
	}
	return grouped
}

// RenderTable writes the human-readable summary table and error listing.
func (r *CycleReport) RenderTable(w io.Writer) {
	fmt.Fprintf(w, "Replenishment cycle %s\n", r.CycleID)
	fmt.Fprintf(w, "SKUs evaluated: %d | triggered: %d | confirmed: %d | rejected: %d | failed: %d | order value: %s\n\n",
		r.SKUsEvaluated, r.OrdersTriggered, r.OrdersConfirmed, r.OrdersRejected, r.OrdersFailed,
		r.TotalOrderValue.StringFixed(2))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tFORECAST/DAY\tON HAND\tON ORDER\tREORDER PT\tSAFETY\tORDER QTY\tSTATUS")
	for _, row := range r.Rows {
		status := row.Status
		if status == "" {
			status = "-"
		}
		if row.LowConfidence {
			status += " (low confidence)"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%.2f\t%.2f\t%d\t%s\n",
			row.SKU, row.Forecast, row.OnHand, row.OnOrder,
			row.ReorderPoint, row.SafetyStock, row.OrderQty, status)
	}
	tw.Flush()

	if len(r.Errors) == 0 {
		return
	}
	fmt.Fprintf(w, "\nErrors (%d):\n", len(r.Errors))
	grouped := r.ErrorsByKind()
	kinds := make([]string, 0, len(grouped))
	for kind := range grouped {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %s:\n", kind)
		for _, e := range grouped[domain.ErrorKind(kind)] {
			fmt.Fprintf(w, "    %s\n", e.Error())
		}
	}
}

// WriteCSV writes the per-SKU rows as CSV, the format archived after a cycle.
func (r *CycleReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"cycle_id", "sku", "forecast_per_day", "on_hand", "on_order",
		"reorder_point", "safety_stock", "order_qty", "status", "low_confidence",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := []string{
			r.CycleID,
			row.SKU,
			strconv.FormatFloat(row.Forecast, 'f', 2, 64),
			strconv.FormatInt(row.OnHand, 10),
			strconv.FormatInt(row.OnOrder, 10),
			strconv.FormatFloat(row.ReorderPoint, 'f', 2, 64),
			strconv.FormatFloat(row.SafetyStock, 'f', 2, 64),
			strconv.FormatInt(row.OrderQty, 10),
			row.Status,
			strconv.FormatBool(row.LowConfidence),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
