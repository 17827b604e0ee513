package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Каталог шаблонов мер защиты (ФСТЭК, ГОСТ, ISO и т.п.)
type ControlMeasureTemplate struct {
	gorm.Model
	TenantID uint `gorm:"not null;uniqueIndex:idx_template_code,priority:1"`

	Code                string `gorm:"size:32;not null;uniqueIndex:idx_template_code,priority:2"`
	Title               string `gorm:"size:255;not null"` // Например: Настройка МЭ, Внедрение СКЗИ
	Description         string `gorm:"type:text"`
	ImplementationGuide string `gorm:"type:text"`
	ControlType         string `gorm:"size:32"` // preventive / detective / corrective
	Frequency           string `gorm:"size:32"` // once / monthly / quarterly / annually

	RecommendedEvidenceTypeIDs datatypes.JSONSlice[uint] `gorm:"column:recommended_evidence_type_ids"`
}

type MeasureStatus string

const (
	MeasurePlanned     MeasureStatus = "planned"
	MeasureInProgress  MeasureStatus = "in_progress"
	MeasureImplemented MeasureStatus = "implemented"
	MeasureVerified    MeasureStatus = "verified"
	MeasureFailed      MeasureStatus = "failed"
)

// MeasureStatuses — допустимые статусы меры, переход возможен между любыми.
var MeasureStatuses = []MeasureStatus{
	MeasurePlanned,
	MeasureInProgress,
	MeasureImplemented,
	MeasureVerified,
	MeasureFailed,
}

func (s MeasureStatus) Valid() bool {
	for _, v := range MeasureStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ControlMeasure — конкретная мера защиты в рамках записи соответствия.
type ControlMeasure struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID           uint `gorm:"not null;index"`
	ComplianceRecordID uint `gorm:"not null;uniqueIndex:idx_measure_record_template,priority:1"`
	RequirementID      uint `gorm:"not null;index"`
	OrganizationID     uint `gorm:"not null;index"`

	Title               string        `gorm:"size:255;not null"`
	Description         string        `gorm:"type:text"`
	ImplementationNotes string        `gorm:"type:text"`
	Status              MeasureStatus `gorm:"type:varchar(32);not null"`

	FromTemplate bool  `gorm:"not null;default:false"`
	TemplateID   *uint `gorm:"uniqueIndex:idx_measure_record_template,priority:2"`
	IsLocked     bool  `gorm:"not null;default:false"` // нельзя редактировать поля шаблона

	MasterControlID   *uint `gorm:"index"`
	InheritFromMaster bool  `gorm:"not null;default:false"`

	AllowedEvidenceTypeIDs   datatypes.JSONSlice[uint] `gorm:"column:allowed_evidence_type_ids"`
	ActualImplementationDate *time.Time
	CreatedBy                uint
}
