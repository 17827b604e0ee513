package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MasterControlService — реестр мастер-контролей и синхронизация статусов.
// На пару (организация, шаблон) существует не более одного мастер-контроля.
type MasterControlService struct {
	db        *gorm.DB
	templates *TemplateStore
}

func NewMasterControlService(db *gorm.DB, templates *TemplateStore) *MasterControlService {
	return &MasterControlService{db: db, templates: templates}
}

// FindOrCreate возвращает id мастер-контроля, создавая его при первом обращении.
func (s *MasterControlService) FindOrCreate(ctx context.Context, ec *access.ExecContext, organizationID, templateID uint) (uint, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return 0, err
	}
	if _, err := s.templates.Get(ctx, ec.TenantID, templateID); err != nil {
		return 0, err
	}
	return s.findOrCreate(ctx, ec, organizationID, templateID)
}

func (s *MasterControlService) findOrCreate(ctx context.Context, ec *access.ExecContext, organizationID, templateID uint) (uint, error) {
	db := s.db.WithContext(ctx)

	id, err := s.lookup(db, ec.TenantID, organizationID, templateID)
	if err == nil {
		return id, nil
	}
	if !database.IsNotFound(err) {
		return 0, fmt.Errorf("find master control: %w", err)
	}
	return s.insertOrGet(db, ec, organizationID, templateID)
}

// insertOrGet — вставка с ON CONFLICT DO NOTHING и повторным чтением.
// Если конкурент успел вставить строку первым, возвращается его id.
func (s *MasterControlService) insertOrGet(db *gorm.DB, ec *access.ExecContext, organizationID, templateID uint) (uint, error) {
	mc := models.MasterControl{
		TenantID:             ec.TenantID,
		OrganizationID:       organizationID,
		TemplateID:           templateID,
		ImplementationStatus: models.MasterNotImplemented,
		EvidenceIDs:          datatypes.JSONSlice[uint]{},
		CreatedBy:            ec.UserID,
	}

	res := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "organization_id"}, {Name: "template_id"}},
		DoNothing: true,
	}).Create(&mc)
	if res.Error != nil && !database.IsUniqueViolation(res.Error) {
		return 0, fmt.Errorf("create master control: %w", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 && mc.ID != 0 {
		logrus.WithFields(logrus.Fields{
			"tenant_id":         ec.TenantID,
			"organization_id":   organizationID,
			"template_id":       templateID,
			"master_control_id": mc.ID,
		}).Info("master control created")
		if err := database.CreateAuditLog(db, ec, "master_control", mc.ID, "create",
			fmt.Sprintf("Создан мастер-контроль: организация %d, шаблон %d", organizationID, templateID)); err != nil {
			logrus.WithError(err).Warn("failed to write audit log")
		}
		return mc.ID, nil
	}

	id, err := s.lookup(db, ec.TenantID, organizationID, templateID)
	if err != nil {
		if database.IsNotFound(err) {
			return 0, &apperr.ConflictError{Message: "master control vanished after concurrent insert"}
		}
		return 0, fmt.Errorf("re-read master control: %w", err)
	}
	return id, nil
}

func (s *MasterControlService) lookup(db *gorm.DB, tenantID, organizationID, templateID uint) (uint, error) {
	var mc models.MasterControl
	err := db.Select("id").
		Where("tenant_id = ? AND organization_id = ? AND template_id = ?", tenantID, organizationID, templateID).
		Take(&mc).Error
	return mc.ID, err
}

func (s *MasterControlService) Get(ctx context.Context, ec *access.ExecContext, id uint) (*models.MasterControl, error) {
	if err := ec.Require(access.CapMastersRead); err != nil {
		return nil, err
	}
	return loadMaster(s.db.WithContext(ctx).Preload("Template"), ec.TenantID, id)
}

func loadMaster(db *gorm.DB, tenantID, id uint) (*models.MasterControl, error) {
	var mc models.MasterControl
	if err := db.Where("tenant_id = ?", tenantID).First(&mc, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("master control", id)
		}
		return nil, fmt.Errorf("load master control %d: %w", id, err)
	}
	return &mc, nil
}

// ListForOrganization — мастер-контроли организации вместе с шаблонами.
func (s *MasterControlService) ListForOrganization(ctx context.Context, ec *access.ExecContext, organizationID uint) ([]models.MasterControl, error) {
	if err := ec.Require(access.CapMastersRead); err != nil {
		return nil, err
	}
	var out []models.MasterControl
	if err := s.db.WithContext(ctx).
		Preload("Template").
		Where("tenant_id = ? AND organization_id = ?", ec.TenantID, organizationID).
		Order("id asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list master controls: %w", err)
	}
	return out, nil
}

type LinkedMeasure struct {
	MeasureID          uint                 `json:"measureId"`
	ComplianceRecordID uint                 `json:"complianceRecordId"`
	Title              string               `json:"title"`
	Status             models.MeasureStatus `json:"status"`
	InheritFromMaster  bool                 `json:"inheritFromMaster"`
	RequirementID      uint                 `json:"requirementId"`
	RequirementCode    string               `json:"requirementCode"`
	RequirementTitle   string               `json:"requirementTitle"`
}

// LinkedMeasures — меры, ссылающиеся на мастер-контроль, с кодом и названием требования.
func (s *MasterControlService) LinkedMeasures(ctx context.Context, ec *access.ExecContext, masterControlID uint) ([]LinkedMeasure, error) {
	if err := ec.Require(access.CapMastersRead); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := loadMaster(db, ec.TenantID, masterControlID); err != nil {
		return nil, err
	}

	var out []LinkedMeasure
	if err := db.Table("control_measures AS cm").
		Select(`cm.id AS measure_id, cm.compliance_record_id, cm.title, cm.status,
			cm.inherit_from_master, cm.requirement_id,
			r.code AS requirement_code, r.title AS requirement_title`).
		Joins("JOIN requirements r ON r.id = cm.requirement_id").
		Where("cm.tenant_id = ? AND cm.master_control_id = ?", ec.TenantID, masterControlID).
		Order("r.code asc, cm.id asc").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("load linked measures: %w", err)
	}
	return out, nil
}

type MasterStats struct {
	EvidenceCount          int   `json:"evidenceCount"`
	LinkedRequirementCount int64 `json:"linkedRequirementCount"`
	LinkedMeasureCount     int64 `json:"linkedMeasureCount"`
}

// Stats пересчитывается на каждый запрос, не кешируется.
func (s *MasterControlService) Stats(ctx context.Context, ec *access.ExecContext, masterControlID uint) (*MasterStats, error) {
	if err := ec.Require(access.CapMastersRead); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	mc, err := loadMaster(db, ec.TenantID, masterControlID)
	if err != nil {
		return nil, err
	}

	st := &MasterStats{EvidenceCount: len(mc.EvidenceIDs)}
	linked := func() *gorm.DB {
		return db.Model(&models.ControlMeasure{}).
			Where("tenant_id = ? AND master_control_id = ?", ec.TenantID, masterControlID)
	}
	if err := linked().Count(&st.LinkedMeasureCount).Error; err != nil {
		return nil, fmt.Errorf("count linked measures: %w", err)
	}
	if err := linked().Distinct("requirement_id").Count(&st.LinkedRequirementCount).Error; err != nil {
		return nil, fmt.Errorf("count linked requirements: %w", err)
	}
	return st, nil
}

type SyncResult struct {
	MasterControlID uint  `json:"masterControlId"`
	UpdatedMeasures int64 `json:"updatedMeasures"`
}

// SyncStatus обновляет статус мастер-контроля и всех наследующих мер в одной транзакции.
// Меры с InheritFromMaster=false не трогаются. Сбой на втором шаге откатывает
// первый и возвращается как PartialSyncError. Статус должен быть статусом меры,
// models.MasterNotImplemented отклоняется.
func (s *MasterControlService) SyncStatus(ctx context.Context, ec *access.ExecContext, masterControlID uint, status models.MeasureStatus, implementationDate *time.Time) (*SyncResult, error) {
	if err := ec.Require(access.CapMastersWrite); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Invalid("unknown status %q", status)
	}

	log := logrus.WithFields(logrus.Fields{
		"tenant_id":         ec.TenantID,
		"user_id":           ec.UserID,
		"master_control_id": masterControlID,
		"status":            status,
	})

	out := &SyncResult{MasterControlID: masterControlID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mc, err := loadMaster(tx, ec.TenantID, masterControlID)
		if err != nil {
			return err
		}

		if err := tx.Model(mc).Updates(map[string]any{
			"implementation_status": status,
			"implementation_date":   implementationDate,
		}).Error; err != nil {
			return fmt.Errorf("update master control: %w", err)
		}

		res := tx.Model(&models.ControlMeasure{}).
			Where("tenant_id = ? AND master_control_id = ? AND inherit_from_master = ?", ec.TenantID, masterControlID, true).
			Updates(map[string]any{
				"status":                     status,
				"actual_implementation_date": implementationDate,
			})
		if res.Error != nil {
			return &apperr.PartialSyncError{MasterControlID: masterControlID, Err: res.Error}
		}
		out.UpdatedMeasures = res.RowsAffected

		return database.CreateAuditLog(tx, ec, "master_control", masterControlID, "sync",
			fmt.Sprintf("Статус %s -> %s, обновлено мер: %d", mc.ImplementationStatus, status, res.RowsAffected))
	})
	if err != nil {
		var partial *apperr.PartialSyncError
		if errors.As(err, &partial) {
			log.WithError(err).Error("master control sync failed after master update, rolled back")
		}
		return nil, err
	}

	log.WithField("updated_measures", out.UpdatedMeasures).Info("master control synced")
	return out, nil
}

// linkEvidence добавляет доказательство в список мастер-контроля (без дублей).
func (s *MasterControlService) linkEvidence(tx *gorm.DB, tenantID, masterControlID, evidenceID uint) error {
	mc, err := loadMaster(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, masterControlID)
	if err != nil {
		return err
	}
	for _, id := range mc.EvidenceIDs {
		if id == evidenceID {
			return nil
		}
	}
	ids := append(datatypes.JSONSlice[uint]{}, mc.EvidenceIDs...)
	ids = append(ids, evidenceID)
	if err := tx.Model(mc).Update("evidence_ids", ids).Error; err != nil {
		return fmt.Errorf("link evidence to master control: %w", err)
	}
	return nil
}
