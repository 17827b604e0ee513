package handlers

import (
	"net/http"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

// ТРЕБОВАНИЯ

func (h *Handler) ListRequirements(c *gin.Context) {
	list, err := h.svc.Requirements.List(c.Request.Context(), middleware.ExecContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirements": list})
}

func (h *Handler) GetRequirement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	req, err := h.svc.Requirements.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) UpdateRequirementModes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in services.RequirementModesInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := h.svc.Requirements.UpdateModes(c.Request.Context(), middleware.ExecContext(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
