package handlers

import (
	"net/http"

	"ib-compliance/internal/middleware"

	"github.com/gin-gonic/gin"
)

type bulkCreateRequest struct {
	// nil, если поле не передано; пустой список означает пустой выбор
	OrganizationIDs *[]uint `json:"organizationIds"`
}

// BulkCreateCompliance создаёт записи соответствия. Без поля organizationIds
// берутся организации, применимые по сохранённым правилам; пустой список
// ничего не создаёт.
func (h *Handler) BulkCreateCompliance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req bulkCreateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	ctx, ec := c.Request.Context(), middleware.ExecContext(c)
	var ids []uint
	if req.OrganizationIDs != nil {
		ids = *req.OrganizationIDs
	} else {
		var err error
		if ids, err = h.svc.Applicability.ApplicableOrganizationIDs(ctx, ec, id); err != nil {
			respondError(c, err)
			return
		}
	}

	res, err := h.svc.Compliance.BulkCreate(ctx, ec, id, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchJSON(res))
}

func (h *Handler) GetCompliance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Compliance.Get(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CreateSuggestedMeasures — меры по всем рекомендованным шаблонам требования.
func (h *Handler) CreateSuggestedMeasures(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Measures.CreateForCompliance(c.Request.Context(), middleware.ExecContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchJSON(res))
}
