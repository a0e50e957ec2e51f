// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"strings"

	"storj.io/icecat/private/dbutil"
)

// schemaStatements returns the DDL for the catalog schema. The statements
// are shared between backends except for the auto-incrementing primary key
// spelling, substituted per implementation.
func schemaStatements(impl dbutil.Implementation) []string {
	serial := "BIGSERIAL PRIMARY KEY"
	if impl == dbutil.SQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS namespaces (
			id {serial},
			levels TEXT NOT NULL UNIQUE,
			depth INTEGER NOT NULL,
			properties TEXT NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			id {serial},
			namespace_id BIGINT NOT NULL REFERENCES namespaces (id),
			name TEXT NOT NULL,
			table_uuid TEXT NOT NULL,
			location TEXT NOT NULL,
			format_version INTEGER NOT NULL,
			last_updated_ms BIGINT NOT NULL,
			last_sequence_number BIGINT NOT NULL DEFAULT 0,
			last_column_id INTEGER NOT NULL DEFAULT 0,
			schema_id INTEGER NOT NULL DEFAULT 0,
			current_schema_id INTEGER NOT NULL DEFAULT 0,
			default_spec_id INTEGER NOT NULL DEFAULT 0,
			last_partition_id INTEGER NOT NULL DEFAULT 0,
			default_sort_order_id INTEGER NOT NULL DEFAULT 0,
			current_snapshot_id BIGINT,
			properties TEXT NOT NULL DEFAULT '{}',
			row_lineage BOOLEAN NOT NULL DEFAULT FALSE,
			next_row_id BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (namespace_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS schemas (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			schema_id INTEGER NOT NULL,
			schema_json TEXT NOT NULL,
			PRIMARY KEY (table_id, schema_id)
		)`,
		`CREATE TABLE IF NOT EXISTS partition_specs (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			spec_id INTEGER NOT NULL,
			spec_json TEXT NOT NULL,
			PRIMARY KEY (table_id, spec_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sort_orders (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			order_id INTEGER NOT NULL,
			order_json TEXT NOT NULL,
			PRIMARY KEY (table_id, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			snapshot_id BIGINT NOT NULL,
			parent_snapshot_id BIGINT,
			sequence_number BIGINT NOT NULL DEFAULT 0,
			timestamp_ms BIGINT NOT NULL,
			manifest_list TEXT NOT NULL,
			summary TEXT NOT NULL,
			schema_id INTEGER,
			PRIMARY KEY (table_id, snapshot_id)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_refs (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			snapshot_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			min_snapshots_to_keep INTEGER,
			max_snapshot_age_ms BIGINT,
			max_ref_age_ms BIGINT,
			PRIMARY KEY (table_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS table_statistics (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			snapshot_id BIGINT NOT NULL,
			statistics_path TEXT NOT NULL,
			file_size_in_bytes BIGINT NOT NULL,
			file_footer_size_in_bytes BIGINT NOT NULL,
			blob_metadata TEXT,
			PRIMARY KEY (table_id, snapshot_id)
		)`,
		`CREATE TABLE IF NOT EXISTS partition_statistics (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			snapshot_id BIGINT NOT NULL,
			statistics_path TEXT NOT NULL,
			file_size_in_bytes BIGINT NOT NULL,
			PRIMARY KEY (table_id, snapshot_id)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata_log (
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			metadata_file TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS storage_credentials (
			id {serial},
			prefix TEXT NOT NULL,
			warehouse TEXT NOT NULL,
			config TEXT NOT NULL,
			table_id BIGINT REFERENCES tables (id) ON DELETE CASCADE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS storage_credentials_global_index
			ON storage_credentials (prefix, warehouse) WHERE table_id IS NULL`,
		`CREATE TABLE IF NOT EXISTS operation_metrics (
			id {serial},
			table_id BIGINT NOT NULL REFERENCES tables (id) ON DELETE CASCADE,
			report_type TEXT NOT NULL,
			snapshot_id BIGINT,
			sequence_number BIGINT,
			operation TEXT,
			filter_json TEXT,
			schema_id INTEGER,
			projected_field_ids TEXT,
			projected_field_names TEXT,
			metrics_json TEXT NOT NULL,
			metadata_json TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT NOT NULL PRIMARY KEY,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_config (
			catalog_name TEXT NOT NULL PRIMARY KEY,
			config_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS views (
			id {serial},
			namespace_id BIGINT NOT NULL REFERENCES namespaces (id),
			name TEXT NOT NULL,
			UNIQUE (namespace_id, name)
		)`,
	}

	statements := make([]string, 0, len(ddl))
	for _, stmt := range ddl {
		statements = append(statements, strings.ReplaceAll(stmt, "{serial}", serial))
	}
	return statements
}
