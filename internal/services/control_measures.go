package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ControlMeasureService создаёт меры защиты (из шаблона или произвольные),
// привязывает их к мастер-контролям и следит за режимом исполнения требования.
type ControlMeasureService struct {
	db        *gorm.DB
	templates *TemplateStore
	masters   *MasterControlService
}

func NewControlMeasureService(db *gorm.DB, templates *TemplateStore, masters *MasterControlService) *ControlMeasureService {
	return &ControlMeasureService{db: db, templates: templates, masters: masters}
}

type CustomMeasureInput struct {
	Title                  string `json:"title"`
	Description            string `json:"description"`
	ImplementationNotes    string `json:"implementationNotes"`
	AllowedEvidenceTypeIDs []uint `json:"allowedEvidenceTypeIds"`
}

// checkMode — общее предусловие создания мер. При strict допускаются только меры из шаблонов.
func checkMode(db *gorm.DB, tenantID uint, rec *models.ComplianceRecord, templateID *uint) (*models.Requirement, error) {
	req, err := loadRequirement(db, tenantID, rec.RequirementID)
	if err != nil {
		return nil, err
	}
	if req.MeasureMode == models.ModeStrict && templateID == nil {
		return nil, &apperr.ValidationError{
			Code:    req.Code,
			Message: "requirement is in strict mode, only template-based measures are allowed",
			Allowed: append([]uint(nil), req.SuggestedControlMeasureTemplateIDs...),
		}
	}
	return req, nil
}

// CreateFromTemplate создаёт меру из шаблона и привязывает её к мастер-контролю
// организации. Если мастер-контроль получить не удалось, мера создаётся без привязки.
func (s *ControlMeasureService) CreateFromTemplate(ctx context.Context, ec *access.ExecContext, complianceRecordID, templateID uint, isLocked bool) (*models.ControlMeasure, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}
	return s.createFromTemplate(ctx, ec, complianceRecordID, templateID, isLocked)
}

func (s *ControlMeasureService) createFromTemplate(ctx context.Context, ec *access.ExecContext, complianceRecordID, templateID uint, isLocked bool) (*models.ControlMeasure, error) {
	db := s.db.WithContext(ctx)

	rec, err := loadComplianceRecord(db, ec.TenantID, complianceRecordID)
	if err != nil {
		return nil, err
	}
	if _, err := checkMode(db, ec.TenantID, rec, &templateID); err != nil {
		return nil, err
	}
	tpl, err := s.templates.Get(ctx, ec.TenantID, templateID)
	if err != nil {
		return nil, err
	}

	var exists int64
	if err := db.Model(&models.ControlMeasure{}).
		Where("tenant_id = ? AND compliance_record_id = ? AND template_id = ?", ec.TenantID, rec.ID, tpl.ID).
		Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("check existing measure: %w", err)
	}
	if exists > 0 {
		return nil, &apperr.ConflictError{Message: fmt.Sprintf("measure from template %s already exists for compliance record %d", tpl.Code, rec.ID)}
	}

	log := logrus.WithFields(logrus.Fields{
		"tenant_id":            ec.TenantID,
		"user_id":              ec.UserID,
		"compliance_record_id": rec.ID,
		"organization_id":      rec.OrganizationID,
		"template_id":          tpl.ID,
	})

	var masterID *uint
	if id, err := s.masters.findOrCreate(ctx, ec, rec.OrganizationID, tpl.ID); err != nil {
		log.WithError(err).Warn("master control unavailable, creating measure without link")
	} else {
		masterID = &id
	}

	tid := tpl.ID
	m := models.ControlMeasure{
		TenantID:               ec.TenantID,
		ComplianceRecordID:     rec.ID,
		RequirementID:          rec.RequirementID,
		OrganizationID:         rec.OrganizationID,
		Title:                  tpl.Title,
		Description:            tpl.Description,
		ImplementationNotes:    tpl.ImplementationGuide,
		Status:                 models.MeasurePlanned,
		FromTemplate:           true,
		TemplateID:             &tid,
		IsLocked:               isLocked,
		MasterControlID:        masterID,
		InheritFromMaster:      true,
		AllowedEvidenceTypeIDs: append(datatypes.JSONSlice[uint]{}, tpl.RecommendedEvidenceTypeIDs...),
		CreatedBy:              ec.UserID,
	}

	if err := s.insert(db, ec, &m, "Создана мера из шаблона "+tpl.Code); err != nil {
		return nil, err
	}
	log.WithField("measure_id", m.ID).Info("control measure created from template")
	return &m, nil
}

// CreateCustom создаёт произвольную меру: без шаблона и без мастер-контроля.
func (s *ControlMeasureService) CreateCustom(ctx context.Context, ec *access.ExecContext, complianceRecordID uint, in CustomMeasureInput) (*models.ControlMeasure, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	rec, err := loadComplianceRecord(db, ec.TenantID, complianceRecordID)
	if err != nil {
		return nil, err
	}
	if _, err := checkMode(db, ec.TenantID, rec, nil); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if len([]rune(title)) < 3 {
		return nil, apperr.Invalid("measure title must be at least 3 characters")
	}

	m := models.ControlMeasure{
		TenantID:               ec.TenantID,
		ComplianceRecordID:     rec.ID,
		RequirementID:          rec.RequirementID,
		OrganizationID:         rec.OrganizationID,
		Title:                  title,
		Description:            strings.TrimSpace(in.Description),
		ImplementationNotes:    strings.TrimSpace(in.ImplementationNotes),
		Status:                 models.MeasurePlanned,
		AllowedEvidenceTypeIDs: append(datatypes.JSONSlice[uint]{}, in.AllowedEvidenceTypeIDs...),
		CreatedBy:              ec.UserID,
	}

	if err := s.insert(db, ec, &m, "Создана мера: "+m.Title); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *ControlMeasureService) insert(db *gorm.DB, ec *access.ExecContext, m *models.ControlMeasure, details string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return &apperr.ConflictError{Message: "control measure already exists for this compliance record"}
			}
			return fmt.Errorf("create control measure: %w", err)
		}
		return database.CreateAuditLog(tx, ec, "control_measure", m.ID, "create", details)
	})
}

// CreateForCompliance создаёт меры по всем рекомендованным шаблонам требования.
// Ошибка по одному шаблону логируется и не прерывает пакет; уже существующие меры пропускаются.
func (s *ControlMeasureService) CreateForCompliance(ctx context.Context, ec *access.ExecContext, complianceRecordID uint) (*BatchResult[*models.ControlMeasure], error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	rec, err := loadComplianceRecord(db, ec.TenantID, complianceRecordID)
	if err != nil {
		return nil, err
	}
	req, err := loadRequirement(db, ec.TenantID, rec.RequirementID)
	if err != nil {
		return nil, err
	}

	res := &BatchResult[*models.ControlMeasure]{}
	for _, templateID := range req.SuggestedControlMeasureTemplateIDs {
		item := ItemResult[*models.ControlMeasure]{Key: templateID}

		m, err := s.createFromTemplate(ctx, ec, rec.ID, templateID, req.MeasureMode == models.ModeStrict)
		var conflict *apperr.ConflictError
		switch {
		case err == nil:
			item.Status = ItemCreated
			item.Value = m
		case errors.As(err, &conflict):
			item.Status = ItemSkipped
			item.Err = err
		default:
			item.Status = ItemFailed
			item.Err = err
			logrus.WithFields(logrus.Fields{
				"tenant_id":            ec.TenantID,
				"compliance_record_id": rec.ID,
				"template_id":          templateID,
			}).WithError(err).Warn("suggested measure not created")
		}
		res.add(item)
	}
	return res, nil
}

// UpdateStatus — прямой переход статуса без ограничений автомата; каждый переход в аудите.
func (s *ControlMeasureService) UpdateStatus(ctx context.Context, ec *access.ExecContext, measureID uint, status models.MeasureStatus) (*models.ControlMeasure, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Invalid("unknown status %q", status)
	}

	var m *models.ControlMeasure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = loadMeasure(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ec.TenantID, measureID)
		if err != nil {
			return err
		}
		prev := m.Status
		if err := tx.Model(m).Update("status", status).Error; err != nil {
			return fmt.Errorf("update measure status: %w", err)
		}
		return database.CreateAuditLog(tx, ec, "control_measure", m.ID, "status_change",
			fmt.Sprintf("Статус изменён: %s -> %s", prev, status))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetInheritance включает/отключает синхронизацию меры с мастер-контролем.
func (s *ControlMeasureService) SetInheritance(ctx context.Context, ec *access.ExecContext, measureID uint, inherit bool) (*models.ControlMeasure, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}

	var m *models.ControlMeasure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = loadMeasure(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ec.TenantID, measureID)
		if err != nil {
			return err
		}
		if inherit && m.MasterControlID == nil {
			return apperr.Invalid("measure %d is not linked to a master control", m.ID)
		}
		if err := tx.Model(m).Update("inherit_from_master", inherit).Error; err != nil {
			return fmt.Errorf("update inheritance: %w", err)
		}
		return database.CreateAuditLog(tx, ec, "control_measure", m.ID, "inheritance",
			fmt.Sprintf("Наследование от мастер-контроля: %t", inherit))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CalculateCompletion — доля различных типов доказательств меры от рекомендованных
// шаблоном, в процентах с округлением. Для произвольной меры база — её допустимые типы.
func (s *ControlMeasureService) CalculateCompletion(ctx context.Context, ec *access.ExecContext, measureID uint) (int, error) {
	if err := ec.Require(access.CapMeasuresRead); err != nil {
		return 0, err
	}
	db := s.db.WithContext(ctx)

	m, err := loadMeasure(db, ec.TenantID, measureID)
	if err != nil {
		return 0, err
	}

	required := len(m.AllowedEvidenceTypeIDs)
	if m.TemplateID != nil {
		tpl, err := s.templates.Get(ctx, ec.TenantID, *m.TemplateID)
		if err != nil {
			return 0, err
		}
		required = len(tpl.RecommendedEvidenceTypeIDs)
	}

	var linked int64
	if err := db.Model(&models.Evidence{}).
		Where("tenant_id = ? AND control_measure_id = ?", ec.TenantID, m.ID).
		Distinct("evidence_type_id").
		Count(&linked).Error; err != nil {
		return 0, fmt.Errorf("count evidence types: %w", err)
	}

	return completionPercent(int(linked), required), nil
}

func completionPercent(linked, required int) int {
	if required <= 0 {
		return 100
	}
	p := int(math.Round(float64(linked) * 100 / float64(required)))
	if p > 100 {
		return 100
	}
	return p
}

type EvidenceInput struct {
	EvidenceTypeID uint   `json:"evidenceTypeId"`
	Title          string `json:"title"`
	FileName       string `json:"fileName"`
}

// AttachEvidence сохраняет метаданные доказательства меры. Если мера привязана
// к мастер-контролю, доказательство добавляется и в его список.
func (s *ControlMeasureService) AttachEvidence(ctx context.Context, ec *access.ExecContext, measureID uint, in EvidenceInput) (*models.Evidence, error) {
	if err := ec.Require(access.CapMeasuresWrite); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid("evidence title is required")
	}
	if in.EvidenceTypeID == 0 {
		return nil, apperr.Invalid("evidence type is required")
	}

	var ev models.Evidence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := loadMeasure(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ec.TenantID, measureID)
		if err != nil {
			return err
		}
		req, err := loadRequirement(tx, ec.TenantID, m.RequirementID)
		if err != nil {
			return err
		}
		if req.EvidenceTypeMode == models.ModeStrict && !containsID(m.AllowedEvidenceTypeIDs, in.EvidenceTypeID) {
			return &apperr.ValidationError{
				Code:    req.Code,
				Message: fmt.Sprintf("evidence type %d is not allowed for this measure", in.EvidenceTypeID),
			}
		}

		ev = models.Evidence{
			TenantID:         ec.TenantID,
			OrganizationID:   m.OrganizationID,
			ControlMeasureID: m.ID,
			MasterControlID:  m.MasterControlID,
			EvidenceTypeID:   in.EvidenceTypeID,
			Title:            title,
			FileName:         strings.TrimSpace(in.FileName),
			CreatedBy:        ec.UserID,
		}
		if err := tx.Create(&ev).Error; err != nil {
			return fmt.Errorf("create evidence: %w", err)
		}
		if m.MasterControlID != nil {
			if err := s.masters.linkEvidence(tx, ec.TenantID, *m.MasterControlID, ev.ID); err != nil {
				return err
			}
		}
		return database.CreateAuditLog(tx, ec, "control_measure", m.ID, "evidence_add", "Добавлено доказательство: "+title)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *ControlMeasureService) Get(ctx context.Context, ec *access.ExecContext, measureID uint) (*models.ControlMeasure, error) {
	if err := ec.Require(access.CapMeasuresRead); err != nil {
		return nil, err
	}
	return loadMeasure(s.db.WithContext(ctx), ec.TenantID, measureID)
}

func loadMeasure(db *gorm.DB, tenantID, id uint) (*models.ControlMeasure, error) {
	var m models.ControlMeasure
	if err := db.Where("tenant_id = ?", tenantID).First(&m, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("control measure", id)
		}
		return nil, fmt.Errorf("load control measure %d: %w", id, err)
	}
	return &m, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
