package services

import (
	"context"
	"fmt"
	"strings"

	"ib-compliance/internal/apperr"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrBadCredentials — неверный логин или пароль; причину наружу не раскрываем.
var ErrBadCredentials = apperr.Invalid("invalid username or password")

type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// Authenticate проверяет пароль по bcrypt-хешу. Вызывается до появления
// контекста выполнения, поэтому прав не проверяет.
func (d *UserDirectory) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return &user, nil
}
