package database

import (
	"fmt"
	"time"

	"ib-compliance/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DefaultTenantID — тенант, в который попадают bootstrap-данные.
const DefaultTenantID uint = 1

// Config общая для postgres и sqlite (в тестах).
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// Open подключается к PostgreSQL с повторными попытками.
func Open(dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	const maxAttempts = 10
	for i := 1; i <= maxAttempts; i++ {
		logrus.Infof("trying to connect to DB (attempt %d/%d)...", i, maxAttempts)

		db, err = gorm.Open(postgres.Open(dsn), Config())
		if err == nil {
			logrus.Info("connected to DB successfully")
			return db, nil
		}

		logrus.WithError(err).Warn("failed to connect to DB")
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to db after %d attempts: %w", maxAttempts, err)
}

// Migrate создаёт/обновляет схему, включая уникальные индексы,
// на которых держатся идемпотентность и единственность мастер-контролей.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.Organization{},
		&models.Requirement{},
		&models.RequirementApplicability{},
		&models.OrganizationMapping{},
		&models.ComplianceRecord{},
		&models.ControlMeasureTemplate{},
		&models.ControlMeasure{},
		&models.MasterControl{},
		&models.EvidenceType{},
		&models.Evidence{},
	)
}

// EnsureAdmin создаёт администратора тенанта по умолчанию, если его ещё нет.
func EnsureAdmin(db *gorm.DB, username, password string) error {
	var count int64
	if err := db.Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if count > 0 {
		// админ уже есть — ничего не делаем
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	admin := models.User{
		TenantID:     DefaultTenantID,
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}

	logrus.WithField("username", username).Info("created default admin user")
	return nil
}
