package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ib-compliance/internal/access"
	"ib-compliance/internal/apperr"
	"ib-compliance/internal/services"

	"github.com/gin-gonic/gin"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperr.NotFound("requirement", 5), http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("load: %w", apperr.NotFound("organization", 1)), http.StatusNotFound, "not_found"},
		{"validation", &apperr.ValidationError{Code: "УПД.3", Message: "strict", Allowed: []uint{1}}, http.StatusUnprocessableEntity, `"requirementCode":"УПД.3"`},
		{"permission", &access.PermissionError{Capability: access.CapMastersWrite}, http.StatusForbidden, "forbidden"},
		{"conflict", &apperr.ConflictError{Message: "exists"}, http.StatusConflict, "conflict"},
		{"partial sync", &apperr.PartialSyncError{MasterControlID: 9, Err: errors.New("boom")}, http.StatusInternalServerError, `"masterControlId":9`},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		respondError(c, tt.err)

		if rec.Code != tt.status {
			t.Fatalf("%s: status=%d, want %d", tt.name, rec.Code, tt.status)
		}
		if !strings.Contains(rec.Body.String(), tt.code) {
			t.Fatalf("%s: body=%s", tt.name, rec.Body.String())
		}
		if tt.name == "unknown" && strings.Contains(rec.Body.String(), "db down") {
			t.Fatal("internal error details leaked")
		}
	}
}

func TestBatchJSON(t *testing.T) {
	b := &services.BatchResult[uint]{}
	b.Items = []services.ItemResult[uint]{
		{Key: 1, Status: services.ItemCreated, Value: 10},
		{Key: 2, Status: services.ItemFailed, Err: apperr.NotFound("organization", 2)},
	}
	b.Created, b.Failed = 1, 1

	out := batchJSON(b)
	items := out["items"].([]batchItem)
	if len(items) != 2 || items[0].Value != uint(10) || items[1].Value != nil || items[1].Error == "" {
		t.Fatalf("items=%+v", items)
	}
	if out["created"] != 1 || out["failed"] != 1 {
		t.Fatalf("out=%v", out)
	}
}
