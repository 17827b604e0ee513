package services

import (
	"context"
	"fmt"
	"strings"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequirementStore — реестр требований тенанта и их режимов исполнения.
type RequirementStore struct {
	db *gorm.DB
}

func NewRequirementStore(db *gorm.DB) *RequirementStore {
	return &RequirementStore{db: db}
}

// RequirementInput — требование из каталога. Шаблоны и типы доказательств
// указываются кодами и разрешаются в id тенанта.
type RequirementInput struct {
	Code                 string               `json:"code" yaml:"code"`
	Title                string               `json:"title" yaml:"title"`
	Description          string               `json:"description" yaml:"description"`
	MeasureMode          models.ExecutionMode `json:"measureMode" yaml:"measure_mode"`
	EvidenceTypeMode     models.ExecutionMode `json:"evidenceTypeMode" yaml:"evidence_type_mode"`
	SuggestedTemplates   []string             `json:"suggestedTemplates" yaml:"suggested_templates"`
	AllowedEvidenceTypes []string             `json:"allowedEvidenceTypes" yaml:"allowed_evidence_types"`
}

func (in *RequirementInput) normalize() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Title = strings.TrimSpace(in.Title)
	if in.Code == "" {
		return apperr.Invalid("requirement code is required")
	}
	if in.Title == "" {
		return apperr.Invalid("requirement %s: title is required", in.Code)
	}
	if in.MeasureMode == "" {
		in.MeasureMode = models.ModeFlexible
	}
	if in.EvidenceTypeMode == "" {
		in.EvidenceTypeMode = models.ModeFlexible
	}
	if !in.MeasureMode.Valid() || !in.EvidenceTypeMode.Valid() {
		return apperr.Invalid("requirement %s: mode must be strict or flexible", in.Code)
	}
	return nil
}

func (s *RequirementStore) List(ctx context.Context, ec *access.ExecContext) ([]models.Requirement, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	var out []models.Requirement
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", ec.TenantID).
		Order("code asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	return out, nil
}

func (s *RequirementStore) Get(ctx context.Context, ec *access.ExecContext, id uint) (*models.Requirement, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	return loadRequirement(s.db.WithContext(ctx), ec.TenantID, id)
}

// RequirementModesInput — частичное обновление режимов; nil поля не меняются.
type RequirementModesInput struct {
	MeasureMode            *models.ExecutionMode `json:"measureMode"`
	EvidenceTypeMode       *models.ExecutionMode `json:"evidenceTypeMode"`
	SuggestedTemplateIDs   *[]uint               `json:"suggestedTemplateIds"`
	AllowedEvidenceTypeIDs *[]uint               `json:"allowedEvidenceTypeIds"`
}

// UpdateModes меняет режимы требования и списки рекомендованных шаблонов
// и допустимых типов доказательств. Уже созданные меры не пересматриваются.
func (s *RequirementStore) UpdateModes(ctx context.Context, ec *access.ExecContext, id uint, in RequirementModesInput) (*models.Requirement, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return nil, err
	}
	if in.MeasureMode == nil && in.EvidenceTypeMode == nil && in.SuggestedTemplateIDs == nil && in.AllowedEvidenceTypeIDs == nil {
		return nil, apperr.Invalid("nothing to update")
	}
	if in.MeasureMode != nil && !in.MeasureMode.Valid() {
		return nil, apperr.Invalid("unknown measure mode %q", *in.MeasureMode)
	}
	if in.EvidenceTypeMode != nil && !in.EvidenceTypeMode.Valid() {
		return nil, apperr.Invalid("unknown evidence type mode %q", *in.EvidenceTypeMode)
	}

	var req *models.Requirement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if req, err = loadRequirement(tx, ec.TenantID, id); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.MeasureMode != nil {
			updates["measure_mode"] = *in.MeasureMode
		}
		if in.EvidenceTypeMode != nil {
			updates["evidence_type_mode"] = *in.EvidenceTypeMode
		}
		if in.SuggestedTemplateIDs != nil {
			ids, err := templateIDs(tx, ec.TenantID, *in.SuggestedTemplateIDs, nil)
			if err != nil {
				return err
			}
			updates["suggested_template_ids"] = datatypes.JSONSlice[uint](ids)
		}
		if in.AllowedEvidenceTypeIDs != nil {
			ids, err := evidenceTypeIDs(tx, ec.TenantID, *in.AllowedEvidenceTypeIDs, nil)
			if err != nil {
				return err
			}
			updates["allowed_evidence_type_ids"] = datatypes.JSONSlice[uint](ids)
		}

		if err := tx.Model(req).Updates(updates).Error; err != nil {
			return fmt.Errorf("update requirement %d: %w", id, err)
		}
		if req, err = loadRequirement(tx, ec.TenantID, id); err != nil {
			return err
		}
		return database.CreateAuditLog(tx, ec, "requirement", id, "update_modes",
			fmt.Sprintf("Режимы %s: меры=%s, доказательства=%s, шаблонов=%d, типов=%d",
				req.Code, req.MeasureMode, req.EvidenceTypeMode,
				len(req.SuggestedControlMeasureTemplateIDs), len(req.AllowedEvidenceTypeIDs)))
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func upsertRequirements(tx *gorm.DB, tenantID uint, items []RequirementInput) error {
	for i := range items {
		if err := items[i].normalize(); err != nil {
			return fmt.Errorf("requirement #%d: %w", i+1, err)
		}
		in := items[i]
		suggested, err := templateIDs(tx, tenantID, nil, in.SuggestedTemplates)
		if err != nil {
			return fmt.Errorf("requirement %s: %w", in.Code, err)
		}
		allowed, err := evidenceTypeIDs(tx, tenantID, nil, in.AllowedEvidenceTypes)
		if err != nil {
			return fmt.Errorf("requirement %s: %w", in.Code, err)
		}

		req := models.Requirement{
			TenantID:                           tenantID,
			Code:                               in.Code,
			Title:                              in.Title,
			Description:                        in.Description,
			MeasureMode:                        in.MeasureMode,
			EvidenceTypeMode:                   in.EvidenceTypeMode,
			SuggestedControlMeasureTemplateIDs: append(datatypes.JSONSlice[uint]{}, suggested...),
			AllowedEvidenceTypeIDs:             append(datatypes.JSONSlice[uint]{}, allowed...),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "measure_mode", "evidence_type_mode",
				"suggested_template_ids", "allowed_evidence_type_ids", "updated_at",
			}),
		}).Create(&req).Error; err != nil {
			return fmt.Errorf("upsert requirement %s: %w", in.Code, err)
		}
	}
	return nil
}
