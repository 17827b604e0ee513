package handlers

import (
	"net/http"
	"strconv"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

// ListAuditLogs — GET /api/audit?entity=&entityId=&limit=
func (h *Handler) ListAuditLogs(c *gin.Context) {
	f := services.AuditFilter{Entity: c.Query("entity")}
	if v, err := strconv.ParseUint(c.Query("entityId"), 10, 64); err == nil {
		f.EntityID = uint(v)
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = v
	}

	logs, err := h.svc.Audit.List(c.Request.Context(), middleware.ExecContext(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
