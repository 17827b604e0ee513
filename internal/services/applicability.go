package services

import (
	"context"
	"fmt"
	"strings"

	"ib-compliance/internal/access"
	"ib-compliance/internal/applicability"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplicabilityService объединяет резолвер и ручные решения.
// Это единственная точка входа для работы с применимостью.
type ApplicabilityService struct {
	db   *gorm.DB
	orgs *OrganizationCatalog
}

func NewApplicabilityService(db *gorm.DB, orgs *OrganizationCatalog) *ApplicabilityService {
	return &ApplicabilityService{db: db, orgs: orgs}
}

// Persisted — сохранённые правила и вычисленный по ним результат.
// Configured=false означает, что правила ни разу не сохранялись; сопоставление
// при этом такое же, как для пустых правил.
type Persisted struct {
	Rules      models.FilterRules    `json:"rules"`
	Configured bool                  `json:"configured"`
	Result     *applicability.Result `json:"result"`
}

func (s *ApplicabilityService) Get(ctx context.Context, ec *access.ExecContext, requirementID uint) (*Persisted, error) {
	if err := ec.Require(access.CapApplicabilityRead); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := loadRequirement(db, ec.TenantID, requirementID); err != nil {
		return nil, err
	}

	var (
		rules      models.FilterRules
		configured bool
		in         inputs
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rules, configured, err = s.loadRules(s.db.WithContext(gctx), ec.TenantID, requirementID)
		return err
	})
	g.Go(func() error {
		var err error
		in, err = s.loadInputs(gctx, ec.TenantID, requirementID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Persisted{
		Rules:      rules,
		Configured: configured,
		Result:     in.resolve(rules),
	}, nil
}

// Preview вычисляет результат для несохранённых правил. Ручные решения
// учитываются, в БД ничего не пишется.
func (s *ApplicabilityService) Preview(ctx context.Context, ec *access.ExecContext, requirementID uint, rules models.FilterRules) (*applicability.Result, error) {
	if err := ec.Require(access.CapApplicabilityRead); err != nil {
		return nil, err
	}
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	if _, err := loadRequirement(s.db.WithContext(ctx), ec.TenantID, requirementID); err != nil {
		return nil, err
	}

	in, err := s.loadInputs(ctx, ec.TenantID, requirementID)
	if err != nil {
		return nil, err
	}
	return in.resolve(rules), nil
}

// Save заменяет правила целиком. Записи соответствия не создаются и не удаляются.
func (s *ApplicabilityService) Save(ctx context.Context, ec *access.ExecContext, requirementID uint, rules models.FilterRules) error {
	if err := ec.Require(access.CapApplicabilityWrite); err != nil {
		return err
	}
	if err := validateRules(rules); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := loadRequirement(tx, ec.TenantID, requirementID)
		if err != nil {
			return err
		}

		row := models.RequirementApplicability{
			TenantID:      ec.TenantID,
			RequirementID: requirementID,
			Rules:         datatypes.NewJSONType(rules),
			UpdatedBy:     ec.UserID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "requirement_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rules", "updated_by", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("save applicability rules: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"tenant_id":      ec.TenantID,
			"user_id":        ec.UserID,
			"requirement_id": requirementID,
		}).Info("applicability rules saved")

		return database.CreateAuditLog(tx, ec, "applicability", requirementID, "update",
			"Сохранены правила применимости требования "+req.Code)
	})
}

// SetManualOverride создаёт или заменяет ручное решение для организации.
func (s *ApplicabilityService) SetManualOverride(ctx context.Context, ec *access.ExecContext, requirementID, organizationID uint, kind models.MappingType, reason string) (*models.OrganizationMapping, error) {
	if err := ec.Require(access.CapApplicabilityWrite); err != nil {
		return nil, err
	}
	if kind != models.MappingManualInclude && kind != models.MappingManualExclude {
		return nil, apperr.Invalid("override kind must be %s or %s", models.MappingManualInclude, models.MappingManualExclude)
	}

	m := models.OrganizationMapping{
		TenantID:       ec.TenantID,
		RequirementID:  requirementID,
		OrganizationID: organizationID,
		Kind:           kind,
		Reason:         strings.TrimSpace(reason),
		CreatedBy:      ec.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := loadRequirement(tx, ec.TenantID, requirementID)
		if err != nil {
			return err
		}
		org, err := s.orgs.get(tx, ec.TenantID, organizationID)
		if err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "requirement_id"}, {Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "reason", "created_by", "updated_at"}),
		}).Create(&m).Error; err != nil {
			return fmt.Errorf("save manual override: %w", err)
		}

		return database.CreateAuditLog(tx, ec, "applicability", requirementID, string(kind),
			fmt.Sprintf("%s: %s для организации %s", req.Code, kind, org.Name))
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveManualOverride возвращает организацию к автоматическому определению.
// Удаление отсутствующего решения не является ошибкой.
func (s *ApplicabilityService) RemoveManualOverride(ctx context.Context, ec *access.ExecContext, requirementID, organizationID uint) error {
	if err := ec.Require(access.CapApplicabilityWrite); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRequirement(tx, ec.TenantID, requirementID); err != nil {
			return err
		}
		res := tx.Where("tenant_id = ? AND requirement_id = ? AND organization_id = ?",
			ec.TenantID, requirementID, organizationID).
			Delete(&models.OrganizationMapping{})
		if res.Error != nil {
			return fmt.Errorf("remove manual override: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return database.CreateAuditLog(tx, ec, "applicability", requirementID, "manual_remove",
			fmt.Sprintf("Снято ручное решение для организации %d", organizationID))
	})
}

// ApplicableOrganizationIDs — организации со статусом automatic или manual_include
// по сохранённым правилам.
func (s *ApplicabilityService) ApplicableOrganizationIDs(ctx context.Context, ec *access.ExecContext, requirementID uint) ([]uint, error) {
	p, err := s.Get(ctx, ec, requirementID)
	if err != nil {
		return nil, err
	}
	return p.Result.ApplicableOrganizations, nil
}

// отсутствие строки правил означает пустые правила (подходят все)
func (s *ApplicabilityService) loadRules(db *gorm.DB, tenantID, requirementID uint) (models.FilterRules, bool, error) {
	var row models.RequirementApplicability
	err := db.Where("tenant_id = ? AND requirement_id = ?", tenantID, requirementID).First(&row).Error
	if err != nil {
		if database.IsNotFound(err) {
			return models.FilterRules{}, false, nil
		}
		return models.FilterRules{}, false, fmt.Errorf("load applicability rules: %w", err)
	}
	return row.Rules.Data(), true, nil
}

type inputs struct {
	orgs      []models.Organization
	overrides map[uint]models.OrganizationMapping
	existing  map[uint]bool
}

func (in inputs) resolve(rules models.FilterRules) *applicability.Result {
	res := applicability.Layer(in.orgs, applicability.Resolve(rules, in.orgs), in.overrides)
	for i := range res.Organizations {
		res.Organizations[i].HasCompliance = in.existing[res.Organizations[i].OrganizationID]
	}
	return res
}

// loadInputs читает каталог, ручные решения и существующие записи соответствия.
// Чтения независимы и выполняются параллельно.
func (s *ApplicabilityService) loadInputs(ctx context.Context, tenantID, requirementID uint) (inputs, error) {
	var (
		in       inputs
		mappings []models.OrganizationMapping
		records  []models.ComplianceRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.orgs, err = s.orgs.listForTenant(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Where("tenant_id = ? AND requirement_id = ?", tenantID, requirementID).
			Find(&mappings).Error; err != nil {
			return fmt.Errorf("load manual overrides: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Select("id", "organization_id").
			Where("tenant_id = ? AND requirement_id = ?", tenantID, requirementID).
			Find(&records).Error; err != nil {
			return fmt.Errorf("load compliance records: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return inputs{}, err
	}

	in.overrides = make(map[uint]models.OrganizationMapping, len(mappings))
	for _, m := range mappings {
		in.overrides[m.OrganizationID] = m
	}
	in.existing = make(map[uint]bool, len(records))
	for _, r := range records {
		in.existing[r.OrganizationID] = true
	}
	return in, nil
}

func validateRules(rules models.FilterRules) error {
	if err := applicability.Validate(rules); err != nil {
		return &apperr.ValidationError{Message: err.Error()}
	}
	return nil
}

func loadRequirement(db *gorm.DB, tenantID, id uint) (*models.Requirement, error) {
	var req models.Requirement
	if err := db.Where("tenant_id = ?", tenantID).First(&req, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("requirement", id)
		}
		return nil, fmt.Errorf("load requirement %d: %w", id, err)
	}
	return &req, nil
}
