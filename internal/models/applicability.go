package models

import (
	"time"

	"gorm.io/datatypes"
)

// FilterRules — набор условий автоматической применимости требования.
// Пустое (отсутствующее) условие не ограничивает соответствующее измерение.
type FilterRules struct {
	KIICategory      []int `json:"kiiCategory,omitempty"`
	PDNLevel         []int `json:"pdnLevel,omitempty"`
	IsFinancial      *bool `json:"isFinancial,omitempty"`
	IsHealthcare     *bool `json:"isHealthcare,omitempty"`
	IsGovernment     *bool `json:"isGovernment,omitempty"`
	HasForeignData   *bool `json:"hasForeignData,omitempty"`
	MinEmployeeCount *int  `json:"minEmployeeCount,omitempty"`
	MaxEmployeeCount *int  `json:"maxEmployeeCount,omitempty"`
}

// RequirementApplicability хранит FilterRules требования, одна запись на требование.
// Сохранение заменяет правила целиком.
type RequirementApplicability struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID      uint                            `gorm:"not null;uniqueIndex:idx_applicability_requirement,priority:1"`
	RequirementID uint                            `gorm:"not null;uniqueIndex:idx_applicability_requirement,priority:2"`
	Rules         datatypes.JSONType[FilterRules] `gorm:"not null"`
	UpdatedBy     uint
}

type MappingType string

const (
	MappingAutomatic     MappingType = "automatic"
	MappingManualInclude MappingType = "manual_include"
	MappingManualExclude MappingType = "manual_exclude"
	MappingNone          MappingType = "none"
)

// OrganizationMapping — ручное включение/исключение организации для требования.
// Отсутствие записи означает автоматическое определение.
type OrganizationMapping struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID       uint        `gorm:"not null;uniqueIndex:idx_mapping_req_org,priority:1"`
	RequirementID  uint        `gorm:"not null;uniqueIndex:idx_mapping_req_org,priority:2"`
	OrganizationID uint        `gorm:"not null;uniqueIndex:idx_mapping_req_org,priority:3"`
	Kind           MappingType `gorm:"type:varchar(20);not null"` // manual_include / manual_exclude
	Reason         string      `gorm:"type:text"`
	CreatedBy      uint
}
