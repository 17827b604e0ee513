// Package services — сервисный слой движка применимости и повторного
// использования мер защиты. Каждая операция принимает явный access.ExecContext.
package services

import "gorm.io/gorm"

type Services struct {
	Organizations *OrganizationCatalog
	Templates     *TemplateStore
	Requirements  *RequirementStore
	Catalog       *CatalogImporter
	Applicability *ApplicabilityService
	Compliance    *ComplianceService
	Masters       *MasterControlService
	Measures      *ControlMeasureService
	Audit         *AuditService
	Users         *UserDirectory
}

func New(db *gorm.DB) *Services {
	orgs := NewOrganizationCatalog(db)
	templates := NewTemplateStore(db)
	masters := NewMasterControlService(db, templates)

	return &Services{
		Organizations: orgs,
		Templates:     templates,
		Requirements:  NewRequirementStore(db),
		Catalog:       NewCatalogImporter(db),
		Applicability: NewApplicabilityService(db, orgs),
		Compliance:    NewComplianceService(db),
		Masters:       masters,
		Measures:      NewControlMeasureService(db, templates, masters),
		Audit:         NewAuditService(db),
		Users:         NewUserDirectory(db),
	}
}

type ItemStatus string

const (
	ItemCreated ItemStatus = "created"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

// ItemResult — исход обработки одного элемента пакетной операции.
type ItemResult[T any] struct {
	Key    uint
	Status ItemStatus
	Value  T
	Err    error
}

// BatchResult агрегирует исходы; ошибка одного элемента не прерывает пакет.
type BatchResult[T any] struct {
	Items   []ItemResult[T]
	Created int
	Skipped int
	Failed  int
}

func (b *BatchResult[T]) add(item ItemResult[T]) {
	switch item.Status {
	case ItemCreated:
		b.Created++
	case ItemSkipped:
		b.Skipped++
	case ItemFailed:
		b.Failed++
	}
	b.Items = append(b.Items, item)
}

// dedupe сохраняет порядок первого появления.
func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
