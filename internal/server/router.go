package server

import (
	"net/http"

	"ib-compliance/internal/access"
	"ib-compliance/internal/config"
	"ib-compliance/internal/handlers"
	"ib-compliance/internal/middleware"
	"ib-compliance/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func NewRouter(cfg *config.Config, svc *services.Services, checker access.Checker) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("ib_session", store))
	r.Use(middleware.RequestID())

	h := handlers.New(svc)

	// AUTH
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)

	// HEALTHCHECK
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(), middleware.InjectExecContext(checker))

	// ОРГАНИЗАЦИИ
	api.GET("/organizations", h.ListOrganizations)
	api.POST("/organizations", h.CreateOrganization)
	api.GET("/organizations/:id", h.GetOrganization)
	api.PUT("/organizations/:id", h.UpdateOrganization)
	api.GET("/organizations/:id/master-controls", h.ListOrganizationMasters)

	// ШАБЛОНЫ МЕР
	api.GET("/templates", h.ListTemplates)
	api.POST("/templates", h.CreateTemplate)
	api.GET("/templates/:id", h.GetTemplate)
	api.GET("/evidence-types", h.ListEvidenceTypes)

	// ТРЕБОВАНИЯ
	api.GET("/requirements", h.ListRequirements)
	api.GET("/requirements/:id", h.GetRequirement)
	api.PATCH("/requirements/:id/modes", h.UpdateRequirementModes)

	// ПРИМЕНИМОСТЬ И ЗАПИСИ СООТВЕТСТВИЯ
	api.GET("/requirements/:id/applicability", h.GetApplicability)
	api.PUT("/requirements/:id/applicability", h.SaveApplicability)
	api.POST("/requirements/:id/applicability/preview", h.PreviewApplicability)
	api.POST("/requirements/:id/applicability/manual", h.SetManualApplicability)
	api.POST("/requirements/:id/compliance/bulk-create", h.BulkCreateCompliance)

	api.GET("/compliance/:id", h.GetCompliance)
	api.POST("/compliance/:id/control-measures/suggested", h.CreateSuggestedMeasures)

	// МЕРЫ ЗАЩИТЫ
	api.POST("/control-measures", h.CreateMeasure)
	api.GET("/control-measures/:id", h.GetMeasure)
	api.PATCH("/control-measures/:id/status", h.UpdateMeasureStatus)
	api.PATCH("/control-measures/:id/inheritance", h.SetMeasureInheritance)
	api.GET("/control-measures/:id/completion", h.MeasureCompletion)
	api.POST("/control-measures/:id/evidence", h.AttachEvidence)

	// МАСТЕР-КОНТРОЛИ
	api.GET("/master-controls/:id", h.GetMaster)
	api.GET("/master-controls/:id/measures", h.MasterMeasures)
	api.GET("/master-controls/:id/stats", h.MasterStats)
	api.POST("/master-controls/:id/sync", h.SyncMaster)

	// АУДИТ
	api.GET("/audit", h.ListAuditLogs)

	return r
}
