package services

import (
	"context"
	"fmt"
	"strings"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"gorm.io/gorm"
)

// OrganizationCatalog — каталог организаций тенанта с атрибутами профиля.
type OrganizationCatalog struct {
	db *gorm.DB
}

func NewOrganizationCatalog(db *gorm.DB) *OrganizationCatalog {
	return &OrganizationCatalog{db: db}
}

type OrganizationInput struct {
	Name           string `json:"name"`
	INN            string `json:"inn"`
	Industry       string `json:"industry"`
	Notes          string `json:"notes"`
	KIICategory    *int   `json:"kiiCategory"`
	PDNLevel       *int   `json:"pdnLevel"`
	IsFinancial    bool   `json:"isFinancial"`
	IsHealthcare   bool   `json:"isHealthcare"`
	IsGovernment   bool   `json:"isGovernment"`
	HasForeignData bool   `json:"hasForeignData"`
	EmployeeCount  int    `json:"employeeCount"`
}

func (in *OrganizationInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.INN = strings.TrimSpace(in.INN)
	in.Industry = strings.TrimSpace(in.Industry)
	in.Notes = strings.TrimSpace(in.Notes)

	if len([]rune(in.Name)) < 3 {
		return apperr.Invalid("organization name must be at least 3 characters")
	}
	if in.KIICategory != nil && (*in.KIICategory < 1 || *in.KIICategory > 3) {
		return apperr.Invalid("kii category must be 1..3")
	}
	if in.PDNLevel != nil && (*in.PDNLevel < 1 || *in.PDNLevel > 4) {
		return apperr.Invalid("pdn level must be 1..4")
	}
	if in.EmployeeCount < 0 {
		return apperr.Invalid("employee count must not be negative")
	}
	return nil
}

func (in OrganizationInput) apply(org *models.Organization) {
	org.Name = in.Name
	org.INN = in.INN
	org.Industry = in.Industry
	org.Notes = in.Notes
	org.KIICategory = in.KIICategory
	org.PDNLevel = in.PDNLevel
	org.IsFinancial = in.IsFinancial
	org.IsHealthcare = in.IsHealthcare
	org.IsGovernment = in.IsGovernment
	org.HasForeignData = in.HasForeignData
	org.EmployeeCount = in.EmployeeCount
}

func (c *OrganizationCatalog) List(ctx context.Context, ec *access.ExecContext) ([]models.Organization, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	return c.listForTenant(ctx, ec.TenantID)
}

// listForTenant — чтение каталога без проверки прав, для резолвера.
func (c *OrganizationCatalog) listForTenant(ctx context.Context, tenantID uint) ([]models.Organization, error) {
	var orgs []models.Organization
	if err := c.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name asc, id asc").
		Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

func (c *OrganizationCatalog) Get(ctx context.Context, ec *access.ExecContext, id uint) (*models.Organization, error) {
	if err := ec.Require(access.CapCatalogRead); err != nil {
		return nil, err
	}
	return c.get(c.db.WithContext(ctx), ec.TenantID, id)
}

func (c *OrganizationCatalog) get(db *gorm.DB, tenantID, id uint) (*models.Organization, error) {
	var org models.Organization
	if err := db.Where("tenant_id = ?", tenantID).First(&org, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("organization", id)
		}
		return nil, fmt.Errorf("load organization %d: %w", id, err)
	}
	return &org, nil
}

func (c *OrganizationCatalog) Create(ctx context.Context, ec *access.ExecContext, in OrganizationInput) (*models.Organization, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	org := models.Organization{TenantID: ec.TenantID}
	in.apply(&org)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.checkINN(tx, ec.TenantID, in.INN, 0); err != nil {
			return err
		}
		if err := tx.Create(&org).Error; err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		return database.CreateAuditLog(tx, ec, "organization", org.ID, "create", "Создана организация: "+org.Name)
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (c *OrganizationCatalog) Update(ctx context.Context, ec *access.ExecContext, id uint, in OrganizationInput) (*models.Organization, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var org *models.Organization
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = c.get(tx, ec.TenantID, id)
		if err != nil {
			return err
		}
		if in.INN != org.INN {
			if err := c.checkINN(tx, ec.TenantID, in.INN, org.ID); err != nil {
				return err
			}
		}

		in.apply(org)
		if err := tx.Save(org).Error; err != nil {
			return fmt.Errorf("update organization %d: %w", id, err)
		}
		return database.CreateAuditLog(tx, ec, "organization", org.ID, "update", "Изменена организация: "+org.Name)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// ИНН уникален в пределах тенанта
func (c *OrganizationCatalog) checkINN(tx *gorm.DB, tenantID uint, inn string, exceptID uint) error {
	if inn == "" {
		return nil
	}
	var count int64
	if err := tx.Model(&models.Organization{}).
		Where("tenant_id = ? AND inn = ? AND id <> ?", tenantID, inn, exceptID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check inn: %w", err)
	}
	if count > 0 {
		return apperr.Invalid("organization with INN %s already exists", inn)
	}
	return nil
}
