// app/bootstrap.go
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"hardware_ledger/ledger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one item the lending desk stocks out of the box.
type CatalogEntry struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	TotalCount int    `yaml:"totalCount"`
	Remarks    string `yaml:"remarks,omitempty"`
}

var DefaultCatalog = []CatalogEntry{
	{Code: "RPI", Name: "Raspberry Pi", TotalCount: 5},
	{Code: "HDMI-CBL", Name: "HDMI Cable", TotalCount: 20},
	{Code: "CARD-READER", Name: "Card Reader", TotalCount: 10},
	{Code: "SCANNER", Name: "Scanner", TotalCount: 2},
	{Code: "USB-CABLE", Name: "USB Cable", TotalCount: 30},
	{Code: "ARD-UNO", Name: "Arduino Uno", TotalCount: 8},
}

// LoadCatalog reads a YAML file of the form:
//
//	items:
//	  - code: RPI
//	    name: Raspberry Pi
//	    totalCount: 5
func LoadCatalog(path string) ([]CatalogEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc struct {
		Items []CatalogEntry `yaml:"items"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return doc.Items, nil
}

// SeedCatalog creates every entry whose code is not registered yet.
// Existing items are left as they are.
func SeedCatalog(ctx context.Context, reg *ledger.Registry, entries []CatalogEntry, logger *zap.Logger) (int, error) {
	created := 0
	for _, e := range entries {
		_, err := reg.FindByCode(ctx, e.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return created, fmt.Errorf("seed %s: %w", e.Code, err)
		}

		code, total := e.Code, e.TotalCount
		_, err = reg.Create(ctx, ledger.ItemInput{Name: e.Name, Code: &code, TotalCount: &total, Remarks: e.Remarks})
		switch {
		case err == nil:
			created++
		case errors.Is(err, ledger.ErrDuplicateCode):
			// another instance seeded it first
		default:
			return created, fmt.Errorf("seed %s: %w", e.Code, err)
		}
	}
	if created > 0 {
		logger.Info("[BOOTSTRAP] seeded hardware catalog", zap.Int("created", created))
	}
	return created, nil
}
