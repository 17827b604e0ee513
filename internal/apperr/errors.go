// Package apperr содержит типизированные ошибки сервисного слоя.
// Обработчики HTTP сопоставляют их со статусами через errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func NotFound(entity string, id uint) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError — нарушение бизнес-правила (например, строгий режим мер).
type ValidationError struct {
	Code    string // код требования, если применимо
	Message string
	Allowed []uint // допустимые шаблоны
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&b, " (allowed templates: %v)", e.Allowed)
	}
	return b.String()
}

func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PartialSyncError — мастер-контроль обновлён, а зависимые меры нет.
// Требует ручной сверки.
type PartialSyncError struct {
	MasterControlID uint
	Err             error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("master control %d: partial sync: %v", e.MasterControlID, e.Err)
}

func (e *PartialSyncError) Unwrap() error { return e.Err }

// ConflictError — конкурирующее изменение, которое не удалось разрешить.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
