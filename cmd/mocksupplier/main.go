// cmd/mocksupplier/main.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/stockpilot/replenisher/internal/domain"
	"github.com/stockpilot/replenisher/internal/supplier"
	"github.com/stockpilot/replenisher/pkg/logger"
)

// mocksupplier is a stand-in for the external ordering API, used for local
// runs and integration testing. It honors idempotency keys and can inject
// lost responses so the coordinator's reconciliation path gets exercised.
func main() {
	_ = godotenv.Load()

	port := envOr("MOCK_SUPPLIER_PORT", "9090")
	sim := supplier.NewSimulator(time.Now().UnixNano())
	sim.DropRate = envFloat("MOCK_SUPPLIER_DROP_RATE", 0)
	sim.MinLatency = time.Duration(envFloat("MOCK_SUPPLIER_MIN_LATENCY_MS", 5)) * time.Millisecond
	sim.MaxLatency = time.Duration(envFloat("MOCK_SUPPLIER_MAX_LATENCY_MS", 50)) * time.Millisecond
	sim.RejectSKUs = parseRejects(os.Getenv("MOCK_SUPPLIER_REJECT_SKUS"))

	r := mux.NewRouter()

	r.HandleFunc("/purchase-orders", func(w http.ResponseWriter, req *http.Request) {
		var payload struct {
			IdempotencyKey string `json:"idempotency_key"`
			SKU            string `json:"sku"`
			Quantity       int64  `json:"quantity"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid payload"})
			return
		}
		if payload.IdempotencyKey == "" || payload.SKU == "" || payload.Quantity <= 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"reason": "missing key, sku or quantity"})
			return
		}

		sub, err := sim.Submit(req.Context(), domain.OrderRequest{
			IdempotencyKey: payload.IdempotencyKey,
			SKU:            payload.SKU,
			Quantity:       payload.Quantity,
		})
		if err != nil {
			var apiErr *supplier.APIError
			if errors.As(err, &apiErr) {
				writeJSON(w, apiErr.StatusCode, map[string]string{"reason": apiErr.Reason})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"reason": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}).Methods(http.MethodPost)

	r.HandleFunc("/purchase-orders/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := mux.Vars(req)["key"]
		sub, ok := sim.Lookup(key)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"reason": "unknown idempotency key"})
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%s", port)
	logger.Log.Info().
		Str("addr", addr).
		Float64("drop_rate", sim.DropRate).
		Msg("mock supplier listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Log.Fatal().Err(err).Msg("mock supplier stopped")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// parseRejects parses "SKU1=reason,SKU2=reason" into a rejection map.
func parseRejects(v string) map[string]string {
	rejects := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		reason := "sku not accepted by supplier"
		if len(parts) == 2 && parts[1] != "" {
			reason = parts[1]
		}
		rejects[parts[0]] = reason
	}
	return rejects
}
