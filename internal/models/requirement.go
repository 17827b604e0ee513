package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExecutionMode string

const (
	ModeStrict   ExecutionMode = "strict"
	ModeFlexible ExecutionMode = "flexible"
)

func (m ExecutionMode) Valid() bool {
	return m == ModeStrict || m == ModeFlexible
}

// Requirement — требование регулятора (приказ ФСТЭК, 152-ФЗ и т.п.).
type Requirement struct {
	gorm.Model
	TenantID uint `gorm:"not null;uniqueIndex:idx_requirement_code,priority:1"`

	Code        string `gorm:"size:64;not null;uniqueIndex:idx_requirement_code,priority:2"` // Например: ЗИС.3, 239-УПД.1
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`

	MeasureMode      ExecutionMode `gorm:"type:varchar(20);not null;default:flexible"`
	EvidenceTypeMode ExecutionMode `gorm:"type:varchar(20);not null;default:flexible"`

	SuggestedControlMeasureTemplateIDs datatypes.JSONSlice[uint] `gorm:"column:suggested_template_ids"`
	AllowedEvidenceTypeIDs             datatypes.JSONSlice[uint] `gorm:"column:allowed_evidence_type_ids"`
}
