package services

import (
	"context"
	"fmt"

	"ib-compliance/internal/access"
	"ib-compliance/internal/database"

	"gorm.io/gorm"
)

// CatalogImport — содержимое каталога: типы доказательств, шаблоны, требования.
// Ссылки между ними задаются кодами.
type CatalogImport struct {
	EvidenceTypes []EvidenceTypeInput
	Templates     []TemplateInput
	Requirements  []RequirementInput
}

type ImportResult struct {
	EvidenceTypes int
	Templates     int
	Requirements  int
}

// CatalogImporter загружает каталог в тенант одной транзакцией:
// неизвестный код откатывает весь импорт.
type CatalogImporter struct {
	db *gorm.DB
}

func NewCatalogImporter(db *gorm.DB) *CatalogImporter {
	return &CatalogImporter{db: db}
}

func (s *CatalogImporter) Import(ctx context.Context, ec *access.ExecContext, in CatalogImport) (*ImportResult, error) {
	if err := ec.Require(access.CapCatalogWrite); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// порядок важен: шаблоны ссылаются на типы, требования на шаблоны
		if err := upsertEvidenceTypes(tx, ec.TenantID, in.EvidenceTypes); err != nil {
			return err
		}
		if err := upsertTemplates(tx, ec.TenantID, in.Templates); err != nil {
			return err
		}
		if err := upsertRequirements(tx, ec.TenantID, in.Requirements); err != nil {
			return err
		}
		return database.CreateAuditLog(tx, ec, "catalog", 0, "import",
			fmt.Sprintf("Загружено: типов доказательств %d, шаблонов %d, требований %d",
				len(in.EvidenceTypes), len(in.Templates), len(in.Requirements)))
	})
	if err != nil {
		return nil, err
	}
	return &ImportResult{
		EvidenceTypes: len(in.EvidenceTypes),
		Templates:     len(in.Templates),
		Requirements:  len(in.Requirements),
	}, nil
}
