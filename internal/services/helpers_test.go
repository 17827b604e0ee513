package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ib-compliance/internal/access"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testTenant uint = 1

type fixture struct {
	db  *gorm.DB
	svc *Services
	ec  *access.ExecContext
	ctx context.Context
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "compliance.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	cfg := database.Config()
	cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	return &fixture{
		db:  db,
		svc: New(db),
		ec:  execAs(t, models.RoleAdmin),
		ctx: context.Background(),
	}
}

func execAs(t *testing.T, role models.UserRole) *access.ExecContext {
	t.Helper()
	a, err := access.NewAuthorizer(access.DefaultPolicy, access.ModeEnforce)
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	return access.NewExecContext(testTenant, 7, role, "test-request", a)
}

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func (f *fixture) org(t *testing.T, name string, mutate func(*models.Organization)) models.Organization {
	t.Helper()
	o := models.Organization{TenantID: testTenant, Name: name}
	if mutate != nil {
		mutate(&o)
	}
	if err := f.db.Create(&o).Error; err != nil {
		t.Fatalf("create org: %v", err)
	}
	return o
}

func (f *fixture) requirement(t *testing.T, code string, mode models.ExecutionMode, suggested ...uint) models.Requirement {
	t.Helper()
	r := models.Requirement{
		TenantID:                           testTenant,
		Code:                               code,
		Title:                              "Требование " + code,
		MeasureMode:                        mode,
		EvidenceTypeMode:                   models.ModeFlexible,
		SuggestedControlMeasureTemplateIDs: append(datatypes.JSONSlice[uint]{}, suggested...),
		AllowedEvidenceTypeIDs:             datatypes.JSONSlice[uint]{},
	}
	if err := f.db.Create(&r).Error; err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	return r
}

func (f *fixture) template(t *testing.T, code string, evidenceTypes ...uint) models.ControlMeasureTemplate {
	t.Helper()
	tpl := models.ControlMeasureTemplate{
		TenantID:                   testTenant,
		Code:                       code,
		Title:                      "Шаблон " + code,
		Description:                "описание " + code,
		ImplementationGuide:        "руководство " + code,
		RecommendedEvidenceTypeIDs: append(datatypes.JSONSlice[uint]{}, evidenceTypes...),
	}
	if err := f.db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func (f *fixture) record(t *testing.T, requirementID, organizationID uint) models.ComplianceRecord {
	t.Helper()
	res, err := f.svc.Compliance.BulkCreate(f.ctx, f.ec, requirementID, []uint{organizationID})
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Status == ItemFailed {
		t.Fatalf("record not created: %+v", res.Items)
	}
	var rec models.ComplianceRecord
	if err := f.db.Where("requirement_id = ? AND organization_id = ?", requirementID, organizationID).
		Take(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	return rec
}

func (f *fixture) measure(t *testing.T, id uint) models.ControlMeasure {
	t.Helper()
	var m models.ControlMeasure
	if err := f.db.First(&m, id).Error; err != nil {
		t.Fatalf("load measure: %v", err)
	}
	return m
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

var errInjected = errors.New("injected failure")

// failCreates заставляет INSERT в таблицу завершаться ошибкой.
func failCreates(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_create_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errInjected)
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
}

// failUpdates заставляет UPDATE таблицы завершаться ошибкой.
func failUpdates(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	if err := db.Callback().Update().Before("gorm:update").Register("test:fail_update_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errInjected)
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
}
