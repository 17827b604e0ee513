package models

import (
	"time"

	"gorm.io/datatypes"
)

// MasterNotImplemented — начальный статус мастер-контроля. Мерам он не
// присваивается, поэтому синхронизация его не принимает: вернуть мастер
// в not_implemented после первой синхронизации нельзя.
const MasterNotImplemented MeasureStatus = "not_implemented"

// MasterControl — единая реализация шаблона меры в организации.
// Уникален по (тенант, организация, шаблон), индекс обеспечивает это на уровне БД.
type MasterControl struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID       uint `gorm:"not null;uniqueIndex:idx_master_org_template,priority:1"`
	OrganizationID uint `gorm:"not null;uniqueIndex:idx_master_org_template,priority:2"`
	TemplateID     uint `gorm:"not null;uniqueIndex:idx_master_org_template,priority:3"`

	ImplementationStatus MeasureStatus `gorm:"type:varchar(32);not null"`
	ImplementationDate   *time.Time
	EvidenceIDs          datatypes.JSONSlice[uint] `gorm:"column:evidence_ids"`
	CreatedBy            uint

	Template ControlMeasureTemplate `gorm:"foreignKey:TemplateID"`
}
