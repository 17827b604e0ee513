package models

import "time"

type ComplianceStatus string

const (
	ComplianceNotStarted    ComplianceStatus = "not_started"
	CompliancePending       ComplianceStatus = "pending"
	ComplianceInProgress    ComplianceStatus = "in_progress"
	ComplianceCompliant     ComplianceStatus = "compliant"
	ComplianceNonCompliant  ComplianceStatus = "non_compliant"
	ComplianceNotApplicable ComplianceStatus = "not_applicable"
)

// ComplianceRecord — запись отслеживания соответствия организации требованию.
// На пару (требование, организация) создаётся не более одной записи.
type ComplianceRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID       uint `gorm:"not null;uniqueIndex:idx_compliance_req_org,priority:1"`
	RequirementID  uint `gorm:"not null;uniqueIndex:idx_compliance_req_org,priority:2"`
	OrganizationID uint `gorm:"not null;uniqueIndex:idx_compliance_req_org,priority:3;index"`

	Status    ComplianceStatus `gorm:"type:varchar(32);not null"`
	CreatedBy uint

	Requirement  Requirement
	Organization Organization
}
