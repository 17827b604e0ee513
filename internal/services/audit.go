package services

import (
	"context"
	"fmt"

	"ib-compliance/internal/access"
	"ib-compliance/internal/models"

	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

type AuditFilter struct {
	Entity   string
	EntityID uint
	Limit    int
}

// List — последние записи журнала аудита тенанта, новые сверху.
func (s *AuditService) List(ctx context.Context, ec *access.ExecContext, f AuditFilter) ([]models.AuditLog, error) {
	if err := ec.Require(access.CapAuditRead); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 200
	}

	q := s.db.WithContext(ctx).
		Preload("User").
		Where("tenant_id = ?", ec.TenantID)
	if f.Entity != "" {
		q = q.Where("entity = ?", f.Entity)
		if f.EntityID != 0 {
			q = q.Where("entity_id = ?", f.EntityID)
		}
	}

	var logs []models.AuditLog
	if err := q.Order("created_at desc, id desc").Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
