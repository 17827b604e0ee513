// Package catalog загружает каталог шаблонов мер защиты и требований из YAML-файла.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ib-compliance/internal/access"
	"ib-compliance/internal/services"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type File struct {
	Version       int                          `yaml:"version"`
	EvidenceTypes []services.EvidenceTypeInput `yaml:"evidence_types"`
	Templates     []services.TemplateInput     `yaml:"templates"`
	Requirements  []services.RequirementInput  `yaml:"requirements"`
}

func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if f.Version != 1 {
		return nil, errors.New("catalog: unsupported version")
	}
	if len(f.Templates) == 0 {
		return nil, errors.New("catalog: empty")
	}

	if err := uniqueCodes("evidence type", len(f.EvidenceTypes), func(i int) string { return f.EvidenceTypes[i].Code }); err != nil {
		return nil, err
	}
	if err := uniqueCodes("template", len(f.Templates), func(i int) string { return f.Templates[i].Code }); err != nil {
		return nil, err
	}
	if err := uniqueCodes("requirement", len(f.Requirements), func(i int) string { return f.Requirements[i].Code }); err != nil {
		return nil, err
	}
	return &f, nil
}

func uniqueCodes(kind string, n int, code func(int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		c := code(i)
		if c == "" {
			return fmt.Errorf("catalog: %s #%d has no code", kind, i+1)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("catalog: duplicate %s code %s", kind, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Seed загружает файл и одной транзакцией обновляет по коду типы доказательств,
// шаблоны и требования тенанта. Ссылки по кодам разрешаются в id этого тенанта.
func Seed(ctx context.Context, importer *services.CatalogImporter, ec *access.ExecContext, path string) (*services.ImportResult, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	res, err := importer.Import(ctx, ec, services.CatalogImport{
		EvidenceTypes: f.EvidenceTypes,
		Templates:     f.Templates,
		Requirements:  f.Requirements,
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"path":           path,
		"tenant_id":      ec.TenantID,
		"evidence_types": res.EvidenceTypes,
		"templates":      res.Templates,
		"requirements":   res.Requirements,
	}).Info("template catalog seeded")
	return res, nil
}
