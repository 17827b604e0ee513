package handlers

import (
	"net/http"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/models"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

// МЕРЫ ЗАЩИТЫ

type createMeasureRequest struct {
	ComplianceRecordID uint                         `json:"complianceRecordId" binding:"required"`
	TemplateID         *uint                        `json:"templateId"`
	IsLocked           bool                         `json:"isLocked"`
	Custom             *services.CustomMeasureInput `json:"custom"`
}

// CreateMeasure: с templateId — мера из шаблона, иначе произвольная из custom.
func (h *Handler) CreateMeasure(c *gin.Context) {
	var req createMeasureRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, ec := c.Request.Context(), middleware.ExecContext(c)
	var (
		m   *models.ControlMeasure
		err error
	)
	if req.TemplateID != nil {
		m, err = h.svc.Measures.CreateFromTemplate(ctx, ec, req.ComplianceRecordID, *req.TemplateID, req.IsLocked)
	} else {
		var in services.CustomMeasureInput
		if req.Custom != nil {
			in = *req.Custom
		}
		m, err = h.svc.Measures.CreateCustom(ctx, ec, req.ComplianceRecordID, in)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMeasure(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	m, err := h.svc.Measures.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type statusRequest struct {
	Status models.MeasureStatus `json:"status" binding:"required"`
}

func (h *Handler) UpdateMeasureStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.svc.Measures.UpdateStatus(c.Request.Context(), middleware.ExecContext(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type inheritanceRequest struct {
	InheritFromMaster *bool `json:"inheritFromMaster" binding:"required"`
}

func (h *Handler) SetMeasureInheritance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req inheritanceRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.svc.Measures.SetInheritance(c.Request.Context(), middleware.ExecContext(c), id, *req.InheritFromMaster)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) MeasureCompletion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.Measures.CalculateCompletion(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"measureId": id, "completion": p})
}

func (h *Handler) AttachEvidence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in services.EvidenceInput
	if !bindJSON(c, &in) {
		return
	}
	ev, err := h.svc.Measures.AttachEvidence(c.Request.Context(), middleware.ExecContext(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}
