// internal/api/handlers/cycle_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockpilot/replenisher/internal/service"
)

type CycleHandler struct {
	svc *service.ReplenishmentService
}

func NewCycleHandler(svc *service.ReplenishmentService) *CycleHandler {
	return &CycleHandler{svc: svc}
}

type runCycleRequest struct {
	CSVPath string `json:"csv_path" binding:"required"`
}

// RunCycle triggers one replenishment cycle over the given input file.
func (h *CycleHandler) RunCycle(c *gin.Context) {
	var req runCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := h.svc.RunCycle(c.Request.Context(), req.CSVPath)
	if err != nil {
		if errors.Is(err, service.ErrCycleRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rep)
}

// LatestReport returns the most recent cycle report.
func (h *CycleHandler) LatestReport(c *gin.Context) {
	rep := h.svc.LatestReport()
	if rep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Reconcile resolves journaled order requests without a terminal outcome.
func (h *CycleHandler) Reconcile(c *gin.Context) {
	results, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": results})
}

// OrderStatus returns the terminal result for an idempotency key.
func (h *CycleHandler) OrderStatus(c *gin.Context) {
	key := c.Param("key")
	res, err := h.svc.OrderStatus(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no terminal result for key"})
		return
	}
	c.JSON(http.StatusOK, res)
}
