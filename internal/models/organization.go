package models

import "gorm.io/gorm"

// Organization — организация-субъект регулирования с атрибутами профиля,
// по которым вычисляется применимость требований.
type Organization struct {
	gorm.Model
	TenantID uint `gorm:"not null;index"`

	Name     string `gorm:"size:255;not null"` // Название организации
	INN      string `gorm:"size:12"`           // ИНН (уникален в пределах тенанта)
	Industry string `gorm:"size:100"`          // Отрасль
	Notes    string `gorm:"type:text"`

	KIICategory    *int `gorm:"column:kii_category"` // категория значимости объекта КИИ: 1..3
	PDNLevel       *int `gorm:"column:pdn_level"`    // уровень защищённости ПДн: 1..4
	IsFinancial    bool `gorm:"not null;default:false"`
	IsHealthcare   bool `gorm:"not null;default:false"`
	IsGovernment   bool `gorm:"not null;default:false"`
	HasForeignData bool `gorm:"not null;default:false"` // трансграничная передача
	EmployeeCount  int  `gorm:"not null;default:0"`
}
