package handlers

import (
	"net/http"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

// КАТАЛОГ ШАБЛОНОВ МЕР

func (h *Handler) ListTemplates(c *gin.Context) {
	list, err := h.svc.Templates.List(c.Request.Context(), middleware.ExecContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Templates.Find(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := h.svc.Templates.Create(c.Request.Context(), middleware.ExecContext(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListEvidenceTypes(c *gin.Context) {
	list, err := h.svc.Templates.ListEvidenceTypes(c.Request.Context(), middleware.ExecContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidenceTypes": list})
}
