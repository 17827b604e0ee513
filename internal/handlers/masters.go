package handlers

import (
	"net/http"
	"time"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/models"

	"github.com/gin-gonic/gin"
)

// МАСТЕР-КОНТРОЛИ

func (h *Handler) GetMaster(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	mc, err := h.svc.Masters.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mc)
}

func (h *Handler) MasterMeasures(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Masters.LinkedMeasures(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"measures": list})
}

func (h *Handler) MasterStats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	st, err := h.svc.Masters.Stats(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type syncRequest struct {
	Status             models.MeasureStatus `json:"status" binding:"required"`
	ImplementationDate *time.Time           `json:"implementationDate"`
}

func (h *Handler) SyncMaster(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req syncRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Masters.SyncStatus(c.Request.Context(), middleware.ExecContext(c), id, req.Status, req.ImplementationDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
