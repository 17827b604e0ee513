// Package access передаёт контекст выполнения (тенант, пользователь, роль)
// явным параметром в каждую операцию сервисного слоя.
package access

import (
	"errors"
	"fmt"

	"ib-compliance/internal/models"
)

type Capability string

const (
	CapApplicabilityRead  Capability = "applicability.read"
	CapApplicabilityWrite Capability = "applicability.write"
	CapComplianceWrite    Capability = "compliance.write"
	CapMeasuresRead       Capability = "measures.read"
	CapMeasuresWrite      Capability = "measures.write"
	CapMastersRead        Capability = "masters.read"
	CapMastersWrite       Capability = "masters.write"
	CapCatalogRead        Capability = "catalog.read"
	CapCatalogWrite       Capability = "catalog.write"
	CapAuditRead          Capability = "audit.read"
)

// Checker решает, разрешена ли роли возможность.
type Checker interface {
	Allowed(role models.UserRole, c Capability) (bool, error)
}

type PermissionError struct {
	Capability Capability
	UserID     uint
	Role       models.UserRole
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %d (%s) lacks %s", e.UserID, e.Role, e.Capability)
}

type ExecContext struct {
	TenantID  uint
	UserID    uint
	Role      models.UserRole
	RequestID string

	checker Checker
}

func NewExecContext(tenantID, userID uint, role models.UserRole, requestID string, checker Checker) *ExecContext {
	return &ExecContext{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		RequestID: requestID,
		checker:   checker,
	}
}

// Require проверяет возможность до любого изменения данных.
func (ec *ExecContext) Require(c Capability) error {
	if ec == nil {
		return errors.New("access: missing execution context")
	}
	if ec.checker == nil {
		return &PermissionError{Capability: c, UserID: ec.UserID, Role: ec.Role}
	}
	ok, err := ec.checker.Allowed(ec.Role, c)
	if err != nil {
		return fmt.Errorf("access: check %s: %w", c, err)
	}
	if !ok {
		return &PermissionError{Capability: c, UserID: ec.UserID, Role: ec.Role}
	}
	return nil
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
