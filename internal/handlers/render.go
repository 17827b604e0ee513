package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler — JSON API поверх сервисного слоя.
type Handler struct {
	svc *services.Services
}

func New(svc *services.Services) *Handler {
	return &Handler{svc: svc}
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// respondError переводит типизированную ошибку сервиса в HTTP-статус.
func respondError(c *gin.Context, err error) {
	var (
		notFound   *apperr.NotFoundError
		validation *apperr.ValidationError
		permission *access.PermissionError
		conflict   *apperr.ConflictError
		partial    *apperr.PartialSyncError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, errorBody("not_found", err.Error()))
	case errors.As(err, &validation):
		body := gin.H{"code": "validation", "message": validation.Message}
		if validation.Code != "" {
			body["requirementCode"] = validation.Code
		}
		if len(validation.Allowed) > 0 {
			body["allowedTemplateIds"] = validation.Allowed
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": body})
	case errors.As(err, &permission):
		c.JSON(http.StatusForbidden, errorBody("forbidden", err.Error()))
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorBody("conflict", err.Error()))
	case errors.As(err, &partial):
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":            "partial_sync",
			"message":         "status sync failed and was rolled back",
			"masterControlId": partial.MasterControlID,
		}})
	default:
		logrus.WithField("request_id", middleware.RequestIDFrom(c)).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, errorBody("internal", "internal error"))
	}
}

// parseID читает положительный числовой параметр пути; при ошибке сам отвечает 400.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, errorBody("bad_request", "invalid "+name))
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("bad_request", "invalid request body"))
		return false
	}
	return true
}

type batchItem struct {
	Key    uint                `json:"key"`
	Status services.ItemStatus `json:"status"`
	Value  any                 `json:"value,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func batchJSON[T any](b *services.BatchResult[T]) gin.H {
	items := make([]batchItem, 0, len(b.Items))
	for _, it := range b.Items {
		item := batchItem{Key: it.Key, Status: it.Status}
		if it.Status != services.ItemFailed {
			item.Value = it.Value
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		items = append(items, item)
	}
	return gin.H{
		"items":   items,
		"created": b.Created,
		"skipped": b.Skipped,
		"failed":  b.Failed,
	}
}
