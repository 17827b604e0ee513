package handlers

import (
	"net/http"

	"ib-compliance/internal/apperr"
	"ib-compliance/internal/middleware"
	"ib-compliance/internal/models"

	"github.com/gin-gonic/gin"
)

// ПРИМЕНИМОСТЬ ТРЕБОВАНИЙ

func (h *Handler) GetApplicability(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.Applicability.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SaveApplicability(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var rules models.FilterRules
	if !bindJSON(c, &rules) {
		return
	}
	ec := middleware.ExecContext(c)
	if err := h.svc.Applicability.Save(c.Request.Context(), ec, id, rules); err != nil {
		respondError(c, err)
		return
	}
	// отдаём состояние после сохранения, как GET
	p, err := h.svc.Applicability.Get(c.Request.Context(), ec, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) PreviewApplicability(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var rules models.FilterRules
	if !bindJSON(c, &rules) {
		return
	}
	res, err := h.svc.Applicability.Preview(c.Request.Context(), middleware.ExecContext(c), id, rules)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type manualRequest struct {
	OrganizationID uint   `json:"organizationId" binding:"required"`
	Action         string `json:"action" binding:"required"`
	Reason         string `json:"reason"`
}

// SetManualApplicability — include / exclude / remove для одной организации.
func (h *Handler) SetManualApplicability(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req manualRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, ec := c.Request.Context(), middleware.ExecContext(c)
	var err error
	switch req.Action {
	case "include":
		_, err = h.svc.Applicability.SetManualOverride(ctx, ec, id, req.OrganizationID, models.MappingManualInclude, req.Reason)
	case "exclude":
		_, err = h.svc.Applicability.SetManualOverride(ctx, ec, id, req.OrganizationID, models.MappingManualExclude, req.Reason)
	case "remove":
		err = h.svc.Applicability.RemoveManualOverride(ctx, ec, id, req.OrganizationID)
	default:
		err = apperr.Invalid("action must be include, exclude or remove")
	}
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.svc.Applicability.Get(ctx, ec, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
