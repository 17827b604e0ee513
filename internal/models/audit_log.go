package models

import "time"

type AuditLog struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	TenantID  uint   `gorm:"not null;index"`
	UserID    uint
	User      User
	RequestID string `gorm:"size:36"`

	Entity   string `gorm:"size:50;not null"` // "applicability", "control_measure", "master_control"
	EntityID uint
	Action   string `gorm:"size:50;not null"` // "create", "status_change", "sync" и т.п.
	Details  string `gorm:"type:text"`
}
