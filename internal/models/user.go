package models

import "gorm.io/gorm"

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleManager  UserRole = "manager" // менеджер по соответствию
	RoleEngineer UserRole = "engineer"
	RoleViewer   UserRole = "viewer"
)

type User struct {
	gorm.Model
	TenantID     uint     `gorm:"not null;index"`
	Username     string   `gorm:"uniqueIndex;size:50;not null"`
	PasswordHash string   `gorm:"not null" json:"-"`
	Role         UserRole `gorm:"type:varchar(20);not null"`
}
