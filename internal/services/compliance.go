package services

import (
	"context"
	"fmt"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComplianceService материализует записи соответствия.
// Применимость здесь не пересчитывается: вызывающий передаёт уже выбранные организации.
type ComplianceService struct {
	db *gorm.DB
}

func NewComplianceService(db *gorm.DB) *ComplianceService {
	return &ComplianceService{db: db}
}

// BulkCreate создаёт по одной записи not_started на организацию.
// Существующие пары пропускаются, ошибка по одной организации не прерывает пакет.
func (s *ComplianceService) BulkCreate(ctx context.Context, ec *access.ExecContext, requirementID uint, organizationIDs []uint) (*BatchResult[uint], error) {
	if err := ec.Require(access.CapComplianceWrite); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	req, err := loadRequirement(db, ec.TenantID, requirementID)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"tenant_id":      ec.TenantID,
		"user_id":        ec.UserID,
		"requirement_id": requirementID,
	})

	res := &BatchResult[uint]{}
	seen := make(map[uint]struct{}, len(organizationIDs))
	for _, orgID := range organizationIDs {
		if _, dup := seen[orgID]; dup {
			continue
		}
		seen[orgID] = struct{}{}

		item := s.createOne(db, ec, requirementID, orgID)
		if item.Status == ItemFailed {
			log.WithError(item.Err).WithField("organization_id", orgID).Warn("compliance record not created")
		}
		res.add(item)
	}

	if res.Created > 0 {
		if err := database.CreateAuditLog(db, ec, "requirement", requirementID, "compliance_bulk_create",
			fmt.Sprintf("%s: создано записей соответствия %d, пропущено %d, ошибок %d",
				req.Code, res.Created, res.Skipped, res.Failed)); err != nil {
			log.WithError(err).Warn("failed to write audit log")
		}
	}

	return res, nil
}

func (s *ComplianceService) createOne(db *gorm.DB, ec *access.ExecContext, requirementID, orgID uint) ItemResult[uint] {
	item := ItemResult[uint]{Key: orgID}

	var org models.Organization
	if err := db.Select("id").Where("tenant_id = ?", ec.TenantID).First(&org, orgID).Error; err != nil {
		item.Status = ItemFailed
		if database.IsNotFound(err) {
			item.Err = apperr.NotFound("organization", orgID)
		} else {
			item.Err = fmt.Errorf("load organization %d: %w", orgID, err)
		}
		return item
	}

	var existing models.ComplianceRecord
	err := db.Select("id").
		Where("tenant_id = ? AND requirement_id = ? AND organization_id = ?", ec.TenantID, requirementID, orgID).
		Take(&existing).Error
	switch {
	case err == nil:
		item.Status = ItemSkipped
		item.Value = existing.ID
		return item
	case !database.IsNotFound(err):
		item.Status = ItemFailed
		item.Err = fmt.Errorf("check compliance record: %w", err)
		return item
	}

	rec := models.ComplianceRecord{
		TenantID:       ec.TenantID,
		RequirementID:  requirementID,
		OrganizationID: orgID,
		Status:         models.ComplianceNotStarted,
		CreatedBy:      ec.UserID,
	}
	// параллельный запрос мог создать запись между проверкой и вставкой
	r := db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	switch {
	case r.Error != nil && !database.IsUniqueViolation(r.Error):
		item.Status = ItemFailed
		item.Err = fmt.Errorf("create compliance record: %w", r.Error)
	case r.Error != nil || r.RowsAffected == 0:
		item.Status = ItemSkipped
	default:
		item.Status = ItemCreated
		item.Value = rec.ID
	}
	return item
}

// Get — запись соответствия тенанта.
func (s *ComplianceService) Get(ctx context.Context, ec *access.ExecContext, id uint) (*models.ComplianceRecord, error) {
	if err := ec.Require(access.CapMeasuresRead); err != nil {
		return nil, err
	}
	return loadComplianceRecord(s.db.WithContext(ctx), ec.TenantID, id)
}

func loadComplianceRecord(db *gorm.DB, tenantID, id uint) (*models.ComplianceRecord, error) {
	var rec models.ComplianceRecord
	if err := db.Where("tenant_id = ?", tenantID).First(&rec, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("compliance record", id)
		}
		return nil, fmt.Errorf("load compliance record %d: %w", id, err)
	}
	return &rec, nil
}
