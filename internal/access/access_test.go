package access

import (
	"errors"
	"testing"

	"ib-compliance/internal/models"
)

func TestAuthorizer_DefaultPolicy(t *testing.T) {
	a, err := NewAuthorizer(DefaultPolicy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	cases := []struct {
		role       models.UserRole
		capability Capability
		want       bool
	}{
		{models.RoleAdmin, CapApplicabilityWrite, true},
		{models.RoleManager, CapComplianceWrite, true},
		{models.RoleEngineer, CapMeasuresWrite, true},
		{models.RoleEngineer, CapApplicabilityWrite, false},
		{models.RoleViewer, CapMeasuresWrite, false},
		{models.RoleViewer, CapAuditRead, true},
		{"", CapApplicabilityRead, false},
	}
	for _, tc := range cases {
		got, err := a.Allowed(tc.role, tc.capability)
		if err != nil {
			t.Fatalf("role=%s cap=%s err=%v", tc.role, tc.capability, err)
		}
		if got != tc.want {
			t.Fatalf("role=%s cap=%s got=%v want=%v", tc.role, tc.capability, got, tc.want)
		}
	}
}

func TestAuthorizer_ShadowAllows(t *testing.T) {
	a, err := NewAuthorizer(DefaultPolicy, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	ok, err := a.Allowed(models.RoleViewer, CapMeasuresWrite)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestNewAuthorizer_InvalidMode(t *testing.T) {
	if _, err := NewAuthorizer(DefaultPolicy, "disabled"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExecContext_Require(t *testing.T) {
	a, err := NewAuthorizer(DefaultPolicy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	ec := NewExecContext(1, 42, models.RoleViewer, "req-1", a)
	if err := ec.Require(CapApplicabilityRead); err != nil {
		t.Fatalf("err=%v", err)
	}

	err = ec.Require(CapApplicabilityWrite)
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v", err)
	}
	if pe.UserID != 42 || pe.Capability != CapApplicabilityWrite {
		t.Fatalf("pe=%+v", pe)
	}
	if !IsPermission(err) {
		t.Fatal("expected permission error")
	}

	var nilCtx *ExecContext
	if err := nilCtx.Require(CapApplicabilityRead); err == nil {
		t.Fatal("expected error for nil context")
	}
	if err := NewExecContext(1, 1, models.RoleAdmin, "", nil).Require(CapAuditRead); !IsPermission(err) {
		t.Fatalf("err=%v", err)
	}
}
