package database

import (
	"ib-compliance/internal/access"
	"ib-compliance/internal/models"

	"gorm.io/gorm"
)

// CreateAuditLog пишет запись журнала аудита. db может быть транзакцией,
// тогда запись откатится вместе с изменением.
func CreateAuditLog(db *gorm.DB, ec *access.ExecContext, entity string, entityID uint, action, details string) error {
	record := models.AuditLog{
		TenantID:  ec.TenantID,
		UserID:    ec.UserID,
		RequestID: ec.RequestID,
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Details:   details,
	}
	return db.Omit("User").Create(&record).Error
}
