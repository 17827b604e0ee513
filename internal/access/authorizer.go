package access

import (
	"errors"

	"ib-compliance/internal/models"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"
)

type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeShadow  Mode = "shadow"
)

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// DefaultPolicy — матрица ролей и возможностей.
var DefaultPolicy = map[models.UserRole][]Capability{
	models.RoleAdmin: {
		CapApplicabilityRead, CapApplicabilityWrite, CapComplianceWrite,
		CapMeasuresRead, CapMeasuresWrite, CapMastersRead, CapMastersWrite,
		CapCatalogRead, CapCatalogWrite, CapAuditRead,
	},
	models.RoleManager: {
		CapApplicabilityRead, CapApplicabilityWrite, CapComplianceWrite,
		CapMeasuresRead, CapMeasuresWrite, CapMastersRead, CapMastersWrite,
		CapCatalogRead,
	},
	models.RoleEngineer: {
		CapApplicabilityRead, CapMeasuresRead, CapMeasuresWrite,
		CapMastersRead, CapMastersWrite, CapCatalogRead,
	},
	models.RoleViewer: {
		CapApplicabilityRead, CapMeasuresRead, CapMastersRead,
		CapCatalogRead, CapAuditRead,
	},
}

// Authorizer — Checker поверх casbin.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(policy map[models.UserRole][]Capability, mode Mode) (*Authorizer, error) {
	switch mode {
	case ModeEnforce, ModeShadow:
	default:
		return nil, errors.New("access: invalid authz mode (expected enforce|shadow)")
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	var rules [][]string
	for role, caps := range policy {
		for _, c := range caps {
			rules = append(rules, []string{SubjectFromRole(role), string(c)})
		}
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, err
		}
	}

	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRole(role models.UserRole) string {
	if role == "" {
		return "role:anonymous"
	}
	return "role:" + string(role)
}

func (a *Authorizer) Allowed(role models.UserRole, c Capability) (bool, error) {
	ok, err := a.enforcer.Enforce(SubjectFromRole(role), string(c))
	if err != nil {
		return false, err
	}
	if !ok && a.mode == ModeShadow {
		logrus.WithFields(logrus.Fields{
			"role":       role,
			"capability": c,
		}).Warn("authz shadow: access would be denied")
		return true, nil
	}
	return ok, nil
}
