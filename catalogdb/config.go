// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"storj.io/icecat/private/tagsql"
)

// fallbackWarehouse is used for location derivation when no default is
// configured.
const fallbackWarehouse = "s3://default-warehouse"

// CatalogConfig is the client-facing catalog configuration.
type CatalogConfig struct {
	Overrides map[string]string `json:"overrides"`
	Defaults  map[string]string `json:"defaults"`
	Endpoints []string          `json:"endpoints,omitempty"`
}

// GetCatalogConfig returns the configuration for a warehouse, falling back
// to the default row, then to an empty configuration.
func (db *DB) GetCatalogConfig(ctx context.Context, warehouse string) (_ CatalogConfig, err error) {
	defer mon.Task()(&ctx)(&err)

	name := warehouse
	if name == "" {
		name = "default"
	}

	config, found, err := db.readCatalogConfig(ctx, db.db, name)
	if err != nil {
		return CatalogConfig{}, err
	}
	if !found && name != "default" {
		config, found, err = db.readCatalogConfig(ctx, db.db, "default")
		if err != nil {
			return CatalogConfig{}, err
		}
	}
	if !found {
		db.log.Warn("no catalog configuration found", zap.String("warehouse", warehouse))
		return CatalogConfig{
			Overrides: map[string]string{},
			Defaults:  map[string]string{},
			Endpoints: []string{},
		}, nil
	}
	return config, nil
}

func (db *DB) readCatalogConfig(ctx context.Context, q tagsql.Queryer, name string) (_ CatalogConfig, found bool, err error) {
	var stored string
	err = q.QueryRowContext(ctx, `
		SELECT config_json FROM catalog_config WHERE catalog_name = $1`,
		name).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CatalogConfig{}, false, nil
		}
		return CatalogConfig{}, false, Error.New("unable to query catalog config: %w", err)
	}

	config, err := decodeCatalogConfig(stored)
	if err != nil {
		return CatalogConfig{}, false, err
	}
	return config, true, nil
}

// decodeCatalogConfig parses a stored config blob, accepting both an object
// and a double-encoded JSON string.
func decodeCatalogConfig(stored string) (CatalogConfig, error) {
	config := CatalogConfig{}
	if err := json.Unmarshal([]byte(stored), &config); err == nil {
		if config.Overrides == nil {
			config.Overrides = map[string]string{}
		}
		if config.Defaults == nil {
			config.Defaults = map[string]string{}
		}
		return config, nil
	}
	var nested string
	if err := json.Unmarshal([]byte(stored), &nested); err != nil {
		return CatalogConfig{}, Error.New("malformed catalog config: %q", stored)
	}
	return decodeCatalogConfig(nested)
}

// defaultWarehouse returns the warehouse used for derived table locations,
// taken from the default config row.
func (db *DB) defaultWarehouse(ctx context.Context, q tagsql.Queryer) (string, error) {
	config, found, err := db.readCatalogConfig(ctx, q, "default")
	if err != nil {
		return "", err
	}
	if found {
		if warehouse, ok := config.Defaults["warehouse"]; ok && warehouse != "" {
			return warehouse, nil
		}
	}
	return fallbackWarehouse, nil
}
