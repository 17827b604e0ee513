package handlers

import (
	"net/http"

	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

//
// КАТАЛОГ ОРГАНИЗАЦИЙ
//

func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.svc.Organizations.List(c.Request.Context(), middleware.ExecContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (h *Handler) GetOrganization(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	org, err := h.svc.Organizations.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *Handler) CreateOrganization(c *gin.Context) {
	var in services.OrganizationInput
	if !bindJSON(c, &in) {
		return
	}
	org, err := h.svc.Organizations.Create(c.Request.Context(), middleware.ExecContext(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *Handler) UpdateOrganization(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in services.OrganizationInput
	if !bindJSON(c, &in) {
		return
	}
	org, err := h.svc.Organizations.Update(c.Request.Context(), middleware.ExecContext(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// мастер-контроли организации
func (h *Handler) ListOrganizationMasters(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Masters.ListForOrganization(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"masterControls": list})
}
