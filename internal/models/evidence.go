package models

import "time"

// EvidenceType — справочник типов доказательств (приказ, журнал, скриншот настроек...)
type EvidenceType struct {
	ID       uint   `gorm:"primaryKey"`
	TenantID uint   `gorm:"not null;uniqueIndex:idx_evidence_type_code,priority:1"`
	Code     string `gorm:"size:32;not null;uniqueIndex:idx_evidence_type_code,priority:2"`
	Name     string `gorm:"size:255;not null"`
}

// Evidence — метаданные доказательства, привязанного к мере.
// Хранение самих файлов вне этого сервиса.
type Evidence struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	TenantID         uint  `gorm:"not null;index"`
	OrganizationID   uint  `gorm:"not null;index"`
	ControlMeasureID uint  `gorm:"not null;index"`
	MasterControlID  *uint `gorm:"index"`
	EvidenceTypeID   uint  `gorm:"not null"`

	Title     string `gorm:"size:255;not null"`
	FileName  string `gorm:"size:255"`
	CreatedBy uint
}
