package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"ib-compliance/internal/access"
	"ib-compliance/internal/catalog"
	"ib-compliance/internal/config"
	"ib-compliance/internal/database"
	"ib-compliance/internal/models"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	adminUser = "admin@ib.local"
	adminPass = "Admin123!"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := database.Config()
	cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")+"?_busy_timeout=5000"), cfg)
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
	if err := database.EnsureAdmin(db, adminUser, adminPass); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	authz, err := access.NewAuthorizer(access.DefaultPolicy, access.ModeEnforce)
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	r := NewRouter(&config.Config{SessionSecret: "test-secret"}, services.New(db), authz)
	return &testEnv{db: db, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/login", gin.H{"username": username, "password": password}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie")
	}
	return cookies
}

func (e *testEnv) addUser(t *testing.T, username string, role models.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := models.User{TenantID: database.DefaultTenantID, Username: username, PasswordHash: string(hash), Role: role}
	if err := e.db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (e *testEnv) requirement(t *testing.T, code string, mode models.ExecutionMode, suggested ...uint) uint {
	t.Helper()
	r := models.Requirement{
		TenantID:                           database.DefaultTenantID,
		Code:                               code,
		Title:                              "Требование " + code,
		MeasureMode:                        mode,
		EvidenceTypeMode:                   models.ModeFlexible,
		SuggestedControlMeasureTemplateIDs: append(datatypes.JSONSlice[uint]{}, suggested...),
		AllowedEvidenceTypeIDs:             datatypes.JSONSlice[uint]{},
	}
	if err := e.db.Create(&r).Error; err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	return r.ID
}

func (e *testEnv) evidenceTypes(t *testing.T, codes ...string) {
	t.Helper()
	for _, code := range codes {
		if err := e.db.Create(&models.EvidenceType{TenantID: database.DefaultTenantID, Code: code, Name: "Тип " + code}).Error; err != nil {
			t.Fatalf("create evidence type: %v", err)
		}
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func idOf(t *testing.T, rec *httptest.ResponseRecorder) uint {
	t.Helper()
	v, ok := decode(t, rec)["ID"].(float64)
	if !ok {
		t.Fatalf("no ID in %s", rec.Body.String())
	}
	return uint(v)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status=%d, want %d, body=%s", rec.Code, status, rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	e := newEnv(t)

	expect(t, e.do(t, http.MethodGet, "/health", nil, nil), http.StatusOK)
	expect(t, e.do(t, http.MethodGet, "/api/organizations", nil, nil), http.StatusUnauthorized)
	expect(t, e.do(t, http.MethodPost, "/login", gin.H{"username": adminUser, "password": "wrong"}, nil), http.StatusUnauthorized)
	expect(t, e.do(t, http.MethodPost, "/login", gin.H{"username": "nobody", "password": adminPass}, nil), http.StatusUnauthorized)

	cookies := e.login(t, adminUser, adminPass)
	rec := e.do(t, http.MethodGet, "/api/organizations", nil, cookies)
	expect(t, rec, http.StatusOK)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestApplicabilityToMasterSyncFlow(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, adminUser, adminPass)

	rec := e.do(t, http.MethodPost, "/api/organizations", gin.H{"name": "Банк Восток", "isFinancial": true, "kiiCategory": 1}, admin)
	expect(t, rec, http.StatusCreated)
	bank := idOf(t, rec)
	rec = e.do(t, http.MethodPost, "/api/organizations", gin.H{"name": "Городская больница", "isHealthcare": true}, admin)
	expect(t, rec, http.StatusCreated)
	clinic := idOf(t, rec)

	e.evidenceTypes(t, "ORDER", "CONFIG")
	rec = e.do(t, http.MethodPost, "/api/templates", gin.H{"code": "МЭ-01", "title": "Настройка МЭ", "recommendedEvidenceTypes": []string{"ORDER", "CONFIG"}}, admin)
	expect(t, rec, http.StatusCreated)
	tpl := idOf(t, rec)

	req := e.requirement(t, "УПД.3", models.ModeStrict, tpl)
	base := "/api/requirements/" + itoa(req)

	rec = e.do(t, http.MethodPut, base+"/applicability", gin.H{"isFinancial": true}, admin)
	expect(t, rec, http.StatusOK)
	result := decode(t, rec)["result"].(map[string]any)
	if got := result["applicableOrganizations"].([]any); len(got) != 1 || uint(got[0].(float64)) != bank {
		t.Fatalf("applicable=%v", got)
	}

	rec = e.do(t, http.MethodPost, base+"/applicability/manual", gin.H{"organizationId": clinic, "action": "include", "reason": "решение комиссии"}, admin)
	expect(t, rec, http.StatusOK)
	result = decode(t, rec)["result"].(map[string]any)
	if n := result["manualIncludeCount"].(float64); n != 1 {
		t.Fatalf("manualIncludeCount=%v", n)
	}
	expect(t, e.do(t, http.MethodPost, base+"/applicability/manual", gin.H{"organizationId": clinic, "action": "maybe"}, admin), http.StatusUnprocessableEntity)

	rec = e.do(t, http.MethodPost, base+"/applicability/preview", gin.H{"isHealthcare": true}, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["automaticCount"].(float64); n != 0 {
		t.Fatalf("preview automaticCount=%v", n)
	}

	rec = e.do(t, http.MethodPost, base+"/compliance/bulk-create", gin.H{"organizationIds": []uint{}}, admin)
	expect(t, rec, http.StatusOK)
	if body := decode(t, rec); body["created"].(float64) != 0 || body["skipped"].(float64) != 0 || body["failed"].(float64) != 0 {
		t.Fatalf("empty selection body=%v", body)
	}
	var n int64
	if err := e.db.Model(&models.ComplianceRecord{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("records after empty selection=%d err=%v", n, err)
	}

	rec = e.do(t, http.MethodPost, base+"/compliance/bulk-create", nil, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["created"].(float64); n != 2 {
		t.Fatalf("created=%v body=%s", n, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, base+"/compliance/bulk-create", gin.H{"organizationIds": []uint{bank}}, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["skipped"].(float64); n != 1 {
		t.Fatalf("skipped=%v", n)
	}

	var recs []models.ComplianceRecord
	if err := e.db.Order("organization_id asc").Find(&recs).Error; err != nil || len(recs) != 2 {
		t.Fatalf("records=%d err=%v", len(recs), err)
	}

	rec = e.do(t, http.MethodPost, "/api/control-measures", gin.H{"complianceRecordId": recs[0].ID, "custom": gin.H{"title": "Своя мера"}}, admin)
	expect(t, rec, http.StatusUnprocessableEntity)
	errBody := decode(t, rec)["error"].(map[string]any)
	if errBody["requirementCode"] != "УПД.3" || len(errBody["allowedTemplateIds"].([]any)) != 1 {
		t.Fatalf("error=%v", errBody)
	}

	for _, r := range recs {
		rec = e.do(t, http.MethodPost, "/api/compliance/"+itoa(r.ID)+"/control-measures/suggested", nil, admin)
		expect(t, rec, http.StatusOK)
		if n := decode(t, rec)["created"].(float64); n != 1 {
			t.Fatalf("suggested created=%v", n)
		}
	}
	var measures []models.ControlMeasure
	if err := e.db.Order("id asc").Find(&measures).Error; err != nil || len(measures) != 2 {
		t.Fatalf("measures=%d err=%v", len(measures), err)
	}
	if measures[0].MasterControlID == nil {
		t.Fatal("measure has no master")
	}
	masterID := *measures[0].MasterControlID

	rec = e.do(t, http.MethodPost, "/api/master-controls/"+itoa(masterID)+"/sync", gin.H{"status": "implemented", "implementationDate": "2026-05-01T00:00:00Z"}, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["updatedMeasures"].(float64); n != 1 {
		t.Fatalf("updatedMeasures=%v", n)
	}

	rec = e.do(t, http.MethodGet, "/api/master-controls/"+itoa(masterID)+"/stats", nil, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["linkedMeasureCount"].(float64); n != 1 {
		t.Fatalf("linkedMeasureCount=%v", n)
	}

	m := measures[0]
	rec = e.do(t, http.MethodPost, "/api/control-measures/"+itoa(m.ID)+"/evidence", gin.H{"evidenceTypeId": 1, "title": "Акт"}, admin)
	expect(t, rec, http.StatusCreated)
	rec = e.do(t, http.MethodGet, "/api/control-measures/"+itoa(m.ID)+"/completion", nil, admin)
	expect(t, rec, http.StatusOK)
	if p := decode(t, rec)["completion"].(float64); p != 50 {
		t.Fatalf("completion=%v", p)
	}

	expect(t, e.do(t, http.MethodPatch, "/api/control-measures/"+itoa(m.ID)+"/status", gin.H{"status": "verified"}, admin), http.StatusOK)
	expect(t, e.do(t, http.MethodPatch, "/api/control-measures/"+itoa(m.ID)+"/inheritance", gin.H{"inheritFromMaster": false}, admin), http.StatusOK)
	expect(t, e.do(t, http.MethodGet, "/api/control-measures/abc/completion", nil, admin), http.StatusBadRequest)
	expect(t, e.do(t, http.MethodGet, "/api/master-controls/999/stats", nil, admin), http.StatusNotFound)
	expect(t, e.do(t, http.MethodPost, "/api/compliance/"+itoa(recs[0].ID)+"/control-measures/suggested", nil, admin), http.StatusOK)

	rec = e.do(t, http.MethodGet, "/api/audit?entity=master_control", nil, admin)
	expect(t, rec, http.StatusOK)
	if logs := decode(t, rec)["logs"].([]any); len(logs) < 2 {
		t.Fatalf("master audit=%d", len(logs))
	}
}

func TestPermissionsAndPartialSync(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, adminUser, adminPass)
	e.addUser(t, "viewer@ib.local", models.RoleViewer)
	viewer := e.login(t, "viewer@ib.local", adminPass)

	rec := e.do(t, http.MethodPost, "/api/organizations", gin.H{"name": "Банк Восток"}, admin)
	expect(t, rec, http.StatusCreated)
	org := idOf(t, rec)
	rec = e.do(t, http.MethodPost, "/api/templates", gin.H{"code": "МЭ-02", "title": "Внедрение СКЗИ"}, admin)
	expect(t, rec, http.StatusCreated)
	tpl := idOf(t, rec)
	req := e.requirement(t, "ЗИС.1", models.ModeFlexible, tpl)

	expect(t, e.do(t, http.MethodPut, "/api/requirements/"+itoa(req)+"/applicability", gin.H{}, viewer), http.StatusForbidden)
	expect(t, e.do(t, http.MethodGet, "/api/requirements/"+itoa(req)+"/applicability", nil, viewer), http.StatusOK)
	expect(t, e.do(t, http.MethodPost, "/api/templates", gin.H{"code": "X", "title": "Запрещено"}, viewer), http.StatusForbidden)

	expect(t, e.do(t, http.MethodPost, "/api/requirements/"+itoa(req)+"/compliance/bulk-create", gin.H{"organizationIds": []uint{org}}, admin), http.StatusOK)
	var cr models.ComplianceRecord
	if err := e.db.Take(&cr).Error; err != nil {
		t.Fatalf("record: %v", err)
	}
	rec = e.do(t, http.MethodPost, "/api/control-measures", gin.H{"complianceRecordId": cr.ID, "templateId": tpl, "isLocked": true}, admin)
	expect(t, rec, http.StatusCreated)
	expect(t, e.do(t, http.MethodPost, "/api/control-measures", gin.H{"complianceRecordId": cr.ID, "templateId": tpl}, admin), http.StatusConflict)

	var mc models.MasterControl
	if err := e.db.Take(&mc).Error; err != nil {
		t.Fatalf("master: %v", err)
	}

	if err := e.db.Callback().Update().Before("gorm:update").Register("test:fail_measures", func(tx *gorm.DB) {
		if tx.Statement.Table == "control_measures" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/api/master-controls/"+itoa(mc.ID)+"/sync", gin.H{"status": "verified"}, admin)
	expect(t, rec, http.StatusInternalServerError)
	if code := decode(t, rec)["error"].(map[string]any)["code"]; code != "partial_sync" {
		t.Fatalf("code=%v", code)
	}
	expect(t, e.do(t, http.MethodPost, "/api/master-controls/"+itoa(mc.ID)+"/sync", gin.H{"status": "verified"}, viewer), http.StatusForbidden)
}

func TestSeededRequirementsAndModes(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, adminUser, adminPass)
	e.addUser(t, "viewer@ib.local", models.RoleViewer)
	viewer := e.login(t, "viewer@ib.local", adminPass)

	authz, err := access.NewAuthorizer(access.DefaultPolicy, access.ModeEnforce)
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	ec := access.NewExecContext(database.DefaultTenantID, 0, models.RoleAdmin, "seed", authz)
	if _, err := catalog.Seed(context.Background(), services.NewCatalogImporter(e.db), ec, filepath.Join("..", "..", "config", "templates.yaml")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := e.do(t, http.MethodGet, "/api/requirements", nil, viewer)
	expect(t, rec, http.StatusOK)
	var strict map[string]any
	for _, r := range decode(t, rec)["requirements"].([]any) {
		if m := r.(map[string]any); m["Code"] == "ЗИС.3" {
			strict = m
		}
	}
	if strict == nil || strict["MeasureMode"] != "strict" || len(strict["SuggestedControlMeasureTemplateIDs"].([]any)) != 2 {
		t.Fatalf("seeded requirement=%v", strict)
	}
	req := uint(strict["ID"].(float64))
	base := "/api/requirements/" + itoa(req)

	rec = e.do(t, http.MethodPost, "/api/organizations", gin.H{"name": "Банк Восток"}, admin)
	expect(t, rec, http.StatusCreated)
	expect(t, e.do(t, http.MethodGet, base+"/applicability", nil, admin), http.StatusOK)
	rec = e.do(t, http.MethodPost, base+"/compliance/bulk-create", nil, admin)
	expect(t, rec, http.StatusOK)
	if n := decode(t, rec)["created"].(float64); n != 1 {
		t.Fatalf("created=%v", n)
	}

	expect(t, e.do(t, http.MethodPatch, base+"/modes", gin.H{"measureMode": "flexible"}, viewer), http.StatusForbidden)
	expect(t, e.do(t, http.MethodPatch, base+"/modes", gin.H{"measureMode": "loose"}, admin), http.StatusUnprocessableEntity)
	expect(t, e.do(t, http.MethodPatch, base+"/modes", gin.H{}, admin), http.StatusUnprocessableEntity)
	expect(t, e.do(t, http.MethodPatch, base+"/modes", gin.H{"suggestedTemplateIds": []uint{9999}}, admin), http.StatusUnprocessableEntity)
	expect(t, e.do(t, http.MethodPatch, "/api/requirements/999/modes", gin.H{"measureMode": "flexible"}, admin), http.StatusNotFound)

	rec = e.do(t, http.MethodPatch, base+"/modes", gin.H{"measureMode": "flexible", "allowedEvidenceTypeIds": []uint{}}, admin)
	expect(t, rec, http.StatusOK)
	body := decode(t, rec)
	if body["MeasureMode"] != "flexible" || body["EvidenceTypeMode"] != "flexible" {
		t.Fatalf("updated=%v", body)
	}

	var cr models.ComplianceRecord
	if err := e.db.Take(&cr).Error; err != nil {
		t.Fatalf("record: %v", err)
	}
	rec = e.do(t, http.MethodPost, "/api/control-measures", gin.H{"complianceRecordId": cr.ID, "custom": gin.H{"title": "Своя мера"}}, admin)
	expect(t, rec, http.StatusCreated)

	rec = e.do(t, http.MethodGet, "/api/audit?entity=requirement", nil, admin)
	expect(t, rec, http.StatusOK)
	found := false
	for _, l := range decode(t, rec)["logs"].([]any) {
		if l.(map[string]any)["Action"] == "update_modes" {
			found = true
		}
	}
	if !found {
		t.Fatal("modes update not audited")
	}
}
