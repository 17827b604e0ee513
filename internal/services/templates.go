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

// TemplateStore — каталог шаблонов мер защиты.
type TemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

type TemplateInput struct {
	Code                       string `json:"code" yaml:"code"`
	Title                      string `json:"title" yaml:"title"`
	Description                string `json:"description" yaml:"description"`
	ImplementationGuide        string `json:"implementationGuide" yaml:"implementation_guide"`
	ControlType                string `json:"controlType" yaml:"control_type"`
	Frequency                  string `json:"frequency" yaml:"frequency"`
	RecommendedEvidenceTypeIDs []uint `json:"recommendedEvidenceTypeIds" yaml:"-"`

	// Коды типов доказательств; разрешаются в id тенанта при сохранении.
	RecommendedEvidenceTypes []string `json:"recommendedEvidenceTypes,omitempty" yaml:"recommended_evidence_types"`
}

func (in *TemplateInput) normalize() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Title = strings.TrimSpace(in.Title)
	if in.Code == "" {
		return apperr.Invalid("template code is required")
	}
	if len([]rune(in.Title)) < 3 {
		return apperr.Invalid("template title must be at least 3 characters")
	}
	return nil
}

func (in TemplateInput) model(tenantID uint, evidenceTypeIDs []uint) models.ControlMeasureTemplate {
	ids := datatypes.JSONSlice[uint]{}
	ids = append(ids, evidenceTypeIDs...)
	return models.ControlMeasureTemplate{
		TenantID:                   tenantID,
		Code:                       in.Code,
		Title:                      in.Title,
		Description:                in.Description,
		ImplementationGuide:        in.ImplementationGuide,
		ControlType:                in.ControlType,
		Frequency:                  in.Frequency,
		RecommendedEvidenceTypeIDs: ids,
	}
}

// Get — шаблон тенанта; отсутствие всегда NotFound.
func (s *TemplateStore) Get(ctx context.Context, tenantID, id uint) (*models.ControlMeasureTemplate, error) {
	var t models.ControlMeasureTemplate
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&t, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("control measure template", id)
		}
		return nil, fmt.Errorf("load template %d: %w", id, err)
	}
	return &t, nil
}

// Find — Get с проверкой прав, для HTTP-слоя.
func (s *TemplateStore) Find(ctx context.Context, ec *access.ExecContext, id uint) (*models.ControlMeasureTemplate, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	return s.Get(ctx, ec.TenantID, id)
}

func (s *TemplateStore) List(ctx context.Context, ec *access.ExecContext) ([]models.ControlMeasureTemplate, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	var out []models.ControlMeasureTemplate
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", ec.TenantID).
		Order("code asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out, nil
}

func (s *TemplateStore) Create(ctx context.Context, ec *access.ExecContext, in TemplateInput) (*models.ControlMeasureTemplate, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var t models.ControlMeasureTemplate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := evidenceTypeIDs(tx, ec.TenantID, in.RecommendedEvidenceTypeIDs, in.RecommendedEvidenceTypes)
		if err != nil {
			return err
		}
		t = in.model(ec.TenantID, ids)
		if err := tx.Create(&t).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Invalid("template with code %s already exists", in.Code)
			}
			return fmt.Errorf("create template: %w", err)
		}
		return database.CreateAuditLog(tx, ec, "control_measure_template", t.ID, "create", "Создан шаблон меры: "+t.Code)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertByCode обновляет шаблоны каталога по коду, используется при загрузке YAML.
func (s *TemplateStore) UpsertByCode(ctx context.Context, ec *access.ExecContext, items []TemplateInput) (int, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return 0, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertTemplates(tx, ec.TenantID, items); err != nil {
			return err
		}
		return database.CreateAuditLog(tx, ec, "control_measure_template", 0, "import",
			fmt.Sprintf("Загружено шаблонов: %d", len(items)))
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func upsertTemplates(tx *gorm.DB, tenantID uint, items []TemplateInput) error {
	for i := range items {
		if err := items[i].normalize(); err != nil {
			return fmt.Errorf("template #%d: %w", i+1, err)
		}
		ids, err := evidenceTypeIDs(tx, tenantID, items[i].RecommendedEvidenceTypeIDs, items[i].RecommendedEvidenceTypes)
		if err != nil {
			return fmt.Errorf("template %s: %w", items[i].Code, err)
		}
		t := items[i].model(tenantID, ids)
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "implementation_guide",
				"control_type", "frequency", "recommended_evidence_type_ids", "updated_at",
			}),
		}).Create(&t).Error; err != nil {
			return fmt.Errorf("upsert template %s: %w", t.Code, err)
		}
	}
	return nil
}

type EvidenceTypeInput struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

func (s *TemplateStore) ListEvidenceTypes(ctx context.Context, ec *access.ExecContext) ([]models.EvidenceType, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	var out []models.EvidenceType
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", ec.TenantID).
		Order("id asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list evidence types: %w", err)
	}
	return out, nil
}

// UpsertEvidenceTypes обновляет справочник типов доказательств по коду.
func (s *TemplateStore) UpsertEvidenceTypes(ctx context.Context, ec *access.ExecContext, items []EvidenceTypeInput) (int, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return 0, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertEvidenceTypes(tx, ec.TenantID, items)
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func upsertEvidenceTypes(tx *gorm.DB, tenantID uint, items []EvidenceTypeInput) error {
	for i, in := range items {
		code, name := strings.TrimSpace(in.Code), strings.TrimSpace(in.Name)
		if code == "" || name == "" {
			return apperr.Invalid("evidence type #%d: code and name are required", i+1)
		}
		et := models.EvidenceType{TenantID: tenantID, Code: code, Name: name}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&et).Error; err != nil {
			return fmt.Errorf("upsert evidence type %s: %w", code, err)
		}
	}
	return nil
}

func evidenceTypeIDs(tx *gorm.DB, tenantID uint, ids []uint, codes []string) ([]uint, error) {
	return resolveIDs(tx, &models.EvidenceType{}, "evidence type", tenantID, ids, codes)
}

func templateIDs(tx *gorm.DB, tenantID uint, ids []uint, codes []string) ([]uint, error) {
	return resolveIDs(tx, &models.ControlMeasureTemplate{}, "template", tenantID, ids, codes)
}

// resolveIDs объединяет явные id и коды в список id справочника тенанта.
// Чужие id и неизвестные коды отклоняются.
func resolveIDs(tx *gorm.DB, model any, kind string, tenantID uint, ids []uint, codes []string) ([]uint, error) {
	out := make([]uint, 0, len(ids)+len(codes))
	if len(ids) > 0 {
		var found []uint
		if err := tx.Model(model).
			Where("tenant_id = ? AND id IN ?", tenantID, ids).
			Pluck("id", &found).Error; err != nil {
			return nil, fmt.Errorf("check %s ids: %w", kind, err)
		}
		known := make(map[uint]bool, len(found))
		for _, id := range found {
			known[id] = true
		}
		for _, id := range ids {
			if !known[id] {
				return nil, apperr.Invalid("unknown %s id %d", kind, id)
			}
		}
		out = append(out, ids...)
	}
	if len(codes) > 0 {
		var rows []struct {
			ID   uint
			Code string
		}
		if err := tx.Model(model).
			Select("id, code").
			Where("tenant_id = ? AND code IN ?", tenantID, codes).
			Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("resolve %s codes: %w", kind, err)
		}
		byCode := make(map[string]uint, len(rows))
		for _, r := range rows {
			byCode[r.Code] = r.ID
		}
		for _, code := range codes {
			id, ok := byCode[code]
			if !ok {
				return nil, apperr.Invalid("unknown %s code %s", kind, code)
			}
			out = append(out, id)
		}
	}
	return dedupe(out), nil
}
