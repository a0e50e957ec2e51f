// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/icecat/private/dbutil"
	"storj.io/icecat/private/dbutil/txutil"
	"storj.io/icecat/private/tagsql"
)

// ETag formats the entity tag for a table version, quotes included.
func ETag(tableUUID string, lastUpdatedMS int64) string {
	return fmt.Sprintf(`"%s-%d"`, tableUUID, lastUpdatedMS)
}

// tableHeader mirrors a row of the tables table. The duplicated id columns
// are the authoritative source for document assembly.
type tableHeader struct {
	ID                 int64
	NamespaceID        int64
	Name               string
	TableUUID          string
	Location           string
	FormatVersion      int
	LastUpdatedMS      int64
	LastSequenceNumber int64
	LastColumnID       int
	CurrentSchemaID    int
	DefaultSpecID      int
	LastPartitionID    int
	DefaultSortOrderID int
	CurrentSnapshotID  *int64
	Properties         string
	RowLineage         bool
	NextRowID          *int64
}

const tableHeaderColumns = `t.id, t.namespace_id, t.name, t.table_uuid, t.location,
	t.format_version, t.last_updated_ms, t.last_sequence_number, t.last_column_id,
	t.current_schema_id, t.default_spec_id, t.last_partition_id,
	t.default_sort_order_id, t.current_snapshot_id, t.properties,
	t.row_lineage, t.next_row_id`

func scanTableHeader(row *sql.Row, header *tableHeader) error {
	return row.Scan(
		&header.ID, &header.NamespaceID, &header.Name, &header.TableUUID, &header.Location,
		&header.FormatVersion, &header.LastUpdatedMS, &header.LastSequenceNumber, &header.LastColumnID,
		&header.CurrentSchemaID, &header.DefaultSpecID, &header.LastPartitionID,
		&header.DefaultSortOrderID, &header.CurrentSnapshotID, &header.Properties,
		&header.RowLineage, &header.NextRowID,
	)
}

// getTableHeader reads a table's header row by identifier.
func getTableHeader(ctx context.Context, q tagsql.Queryer, id TableIdentifier) (*tableHeader, error) {
	header := &tableHeader{}
	err := scanTableHeader(q.QueryRowContext(ctx, `
		SELECT `+tableHeaderColumns+`
		FROM tables t
		JOIN namespaces n ON n.id = t.namespace_id
		WHERE n.levels = $1 AND t.name = $2`,
		id.Namespace.Encoded(), id.Name), header)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTableNotFound.New("%s", id)
		}
		return nil, Error.New("unable to query table: %w", err)
	}
	return header, nil
}

// getTableHeaderByID re-reads a table's header row by primary key, optionally
// locking it for the duration of the surrounding transaction.
func getTableHeaderByID(ctx context.Context, q tagsql.Queryer, tableID int64, forUpdate bool) (*tableHeader, error) {
	query := `SELECT ` + tableHeaderColumns + ` FROM tables t WHERE t.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	header := &tableHeader{}
	if err := scanTableHeader(q.QueryRowContext(ctx, query, tableID), header); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTableNotFound.New("table id %d", tableID)
		}
		return nil, Error.New("unable to query table: %w", err)
	}
	return header, nil
}

// getNamespaceID resolves a namespace path to its row id.
func getNamespaceID(ctx context.Context, q tagsql.Queryer, path NamespacePath) (int64, error) {
	var namespaceID int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM namespaces WHERE levels = $1`,
		path.Encoded()).Scan(&namespaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNamespaceNotFound.New("%s", path)
		}
		return 0, Error.New("unable to query namespace: %w", err)
	}
	return namespaceID, nil
}

// ListTables contains arguments for listing tables in a namespace.
type ListTables struct {
	Namespace NamespacePath
	PageToken string
	PageSize  int
}

// ListTablesResult is a single page of table identifiers.
type ListTablesResult struct {
	Tables        []TableIdentifier
	NextPageToken string
}

// ListTables returns a lexicographically ordered page of tables in a
// namespace.
func (db *DB) ListTables(ctx context.Context, opts ListTables) (result ListTablesResult, err error) {
	defer mon.Task()(&ctx)(&err)

	namespaceID, err := getNamespaceID(ctx, db.db, opts.Namespace)
	if err != nil {
		return ListTablesResult{}, err
	}

	args := []interface{}{namespaceID}
	query := `SELECT name FROM tables WHERE namespace_id = $1`
	if opts.PageToken != "" {
		lastSeen, err := DecodePageToken(opts.PageToken)
		if err != nil {
			return ListTablesResult{}, err
		}
		args = append(args, lastSeen)
		query += ` AND name > $2`
	}
	query += ` ORDER BY name`
	if opts.PageSize > 0 {
		args = append(args, opts.PageSize+1)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListTablesResult{}, Error.New("unable to list tables: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return ListTablesResult{}, Error.Wrap(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return ListTablesResult{}, Error.Wrap(err)
	}

	if opts.PageSize > 0 && len(names) > opts.PageSize {
		names = names[:opts.PageSize]
		result.NextPageToken = EncodePageToken(names[len(names)-1])
	}
	for _, name := range names {
		result.Tables = append(result.Tables, TableIdentifier{Namespace: opts.Namespace, Name: name})
	}
	return result, nil
}

// TableExists checks whether a table exists.
func (db *DB) TableExists(ctx context.Context, id TableIdentifier) (exists bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tables t
			JOIN namespaces n ON n.id = t.namespace_id
			WHERE n.levels = $1 AND t.name = $2
		)`, id.Namespace.Encoded(), id.Name).Scan(&exists)
	if err != nil {
		return false, Error.New("unable to check table existence: %w", err)
	}
	return exists, nil
}

// CreateTable contains arguments for creating a table.
type CreateTable struct {
	Namespace     NamespacePath
	Name          string
	Location      string
	Schema        *Schema
	PartitionSpec *PartitionSpec
	WriteOrder    *SortOrder
	Properties    map[string]string
	Credentials   []map[string]string
}

// Verify create table fields.
func (opts CreateTable) Verify() error {
	if err := opts.Namespace.Verify(); err != nil {
		return err
	}
	switch {
	case opts.Name == "":
		return ErrInvalidRequest.New("table name missing")
	case opts.Schema == nil:
		return ErrInvalidRequest.New("schema missing")
	case len(opts.Schema.Fields) == 0:
		return ErrInvalidRequest.New("schema has no fields")
	}
	return nil
}

// CreateTable registers a new table and returns the materialized load result.
func (db *DB) CreateTable(ctx context.Context, opts CreateTable) (result *LoadTableResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Verify(); err != nil {
		return nil, err
	}

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		namespaceID, err := getNamespaceID(ctx, tx, opts.Namespace)
		if err != nil {
			return err
		}

		location := opts.Location
		if location == "" {
			warehouse, err := db.defaultWarehouse(ctx, tx)
			if err != nil {
				return err
			}
			location = fmt.Sprintf("%s/%s/%s", warehouse, opts.Namespace, opts.Name)
		}

		schema := *opts.Schema
		schema.Type = "struct"
		schema.SchemaID = intPtr(0)
		lastColumnID := schema.MaxFieldID()

		spec := PartitionSpec{Fields: []PartitionField{}}
		if opts.PartitionSpec != nil {
			spec = *opts.PartitionSpec
		}
		spec.SpecID = intPtr(0)
		lastPartitionID := spec.MaxFieldID()
		for i := range spec.Fields {
			if spec.Fields[i].FieldID == nil {
				lastPartitionID++
				spec.Fields[i].FieldID = intPtr(lastPartitionID)
			}
		}

		order := SortOrder{Fields: []SortField{}}
		if opts.WriteOrder != nil {
			order = *opts.WriteOrder
		}
		order.OrderID = intPtr(0)

		properties, err := encodeJSONMap(opts.Properties)
		if err != nil {
			return Error.Wrap(err)
		}

		now := db.nowMillis()
		tableUUID := uuid.NewString()

		var tableID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO tables (
				namespace_id, name, table_uuid, location, format_version,
				last_updated_ms, last_sequence_number, last_column_id,
				schema_id, current_schema_id, default_spec_id,
				last_partition_id, default_sort_order_id, properties,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 0, 0, 0, $8, 0, $9, $10, $11)
			RETURNING id`,
			namespaceID, opts.Name, tableUUID, location, 2,
			now, lastColumnID, lastPartitionID, properties, now, now).Scan(&tableID)
		if err != nil {
			if dbutil.IsConstraintViolation(err) {
				return ErrTableExists.New("%s.%s", opts.Namespace, opts.Name)
			}
			return Error.New("unable to create table: %w", err)
		}

		if err := insertSchema(ctx, tx, tableID, 0, &schema); err != nil {
			return err
		}
		if err := insertPartitionSpec(ctx, tx, tableID, 0, &spec); err != nil {
			return err
		}
		if err := insertSortOrder(ctx, tx, tableID, 0, &order); err != nil {
			return err
		}

		if len(opts.Credentials) > 0 {
			if err := db.insertInlineCredentials(ctx, tx, opts.Namespace, location, opts.Credentials); err != nil {
				return err
			}
		}

		header, err := getTableHeaderByID(ctx, tx, tableID, false)
		if err != nil {
			return err
		}
		result, err = db.materializeLoadResult(ctx, tx, header, SnapshotsAll)
		if err != nil {
			return err
		}
		result.MetadataLocation = initialMetadataLocation(location)
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.log.Debug("table created",
		zapTable(TableIdentifier{Namespace: opts.Namespace, Name: opts.Name}),
		zap.String("location", result.Metadata.Location))
	return result, nil
}

func insertSchema(ctx context.Context, q tagsql.Queryer, tableID int64, schemaID int, schema *Schema) error {
	blob, err := json.Marshal(schema)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO schemas (table_id, schema_id, schema_json) VALUES ($1, $2, $3)`,
		tableID, schemaID, string(blob))
	if err != nil {
		if dbutil.IsConstraintViolation(err) {
			return Error.New("duplicate schema id %d", schemaID)
		}
		return Error.New("unable to insert schema: %w", err)
	}
	return nil
}

func insertPartitionSpec(ctx context.Context, q tagsql.Queryer, tableID int64, specID int, spec *PartitionSpec) error {
	blob, err := json.Marshal(spec)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO partition_specs (table_id, spec_id, spec_json) VALUES ($1, $2, $3)`,
		tableID, specID, string(blob))
	if err != nil {
		if dbutil.IsConstraintViolation(err) {
			return Error.New("duplicate partition spec id %d", specID)
		}
		return Error.New("unable to insert partition spec: %w", err)
	}
	return nil
}

func insertSortOrder(ctx context.Context, q tagsql.Queryer, tableID int64, orderID int, order *SortOrder) error {
	blob, err := json.Marshal(order)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO sort_orders (table_id, order_id, order_json) VALUES ($1, $2, $3)`,
		tableID, orderID, string(blob))
	if err != nil {
		if dbutil.IsConstraintViolation(err) {
			return Error.New("duplicate sort order id %d", orderID)
		}
		return Error.New("unable to insert sort order: %w", err)
	}
	return nil
}

// warehouseOf returns the first three slash-separated segments of a location,
// e.g. "s3://bucket" for "s3://bucket/path/to/table".
func warehouseOf(location string) string {
	parts := strings.SplitN(location, "/", 4)
	if len(parts) < 3 {
		return location
	}
	return strings.Join(parts[:3], "/")
}

// insertInlineCredentials records create-time credentials as global rows for
// the table's warehouse, unless a matching global credential already exists.
func (db *DB) insertInlineCredentials(ctx context.Context, q tagsql.Queryer, namespace NamespacePath, location string, credentials []map[string]string) error {
	var existing bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM storage_credentials
			WHERE table_id IS NULL AND SUBSTR($1, 1, LENGTH(warehouse)) = warehouse
		)`, location).Scan(&existing)
	if err != nil {
		return Error.New("unable to check existing credentials: %w", err)
	}
	if existing {
		return nil
	}

	warehouse := warehouseOf(location)
	prefix := namespace[0]
	now := db.nowMillis()
	for _, credential := range credentials {
		config, err := encodeJSONMap(credential)
		if err != nil {
			return Error.Wrap(err)
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO storage_credentials (prefix, warehouse, config, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			prefix, warehouse, config, now, now)
		if err != nil {
			if dbutil.IsConstraintViolation(err) {
				return ErrCredentialExists.New("warehouse %q", warehouse)
			}
			return Error.New("unable to insert credential: %w", err)
		}
	}
	db.log.Debug("inline credentials stored",
		zap.String("warehouse", warehouse), zap.Int("count", len(credentials)))
	return nil
}

// materializeLoadResult assembles the metadata document and overlays config
// and storage credentials. Credential resolution failures degrade to an
// empty credential list.
func (db *DB) materializeLoadResult(ctx context.Context, q tagsql.Queryer, header *tableHeader, filter SnapshotsFilter) (*LoadTableResult, error) {
	metadata, err := assembleMetadata(ctx, q, header, filter)
	if err != nil {
		return nil, err
	}

	result := &LoadTableResult{Metadata: metadata}

	rootLabel := ""
	if path := namespacePathOfID(ctx, q, header.NamespaceID); len(path) > 0 {
		rootLabel = path[0]
	}

	config, err := tableConfig(ctx, q, header.Location)
	if err != nil {
		db.log.Warn("table config resolution failed", zap.Error(err))
		config = defaultTableConfig()
	}
	result.Config = config

	credentials, err := resolveCredentials(ctx, q, header.ID, header.Location, rootLabel)
	if err != nil {
		db.log.Warn("credential resolution failed", zap.Error(err))
		credentials = nil
	}
	result.StorageCredentials = credentials

	return result, nil
}

// namespacePathOfID resolves a namespace id back to its path. Best effort;
// an unresolvable id yields nil.
func namespacePathOfID(ctx context.Context, q tagsql.Queryer, namespaceID int64) NamespacePath {
	var encoded string
	if err := q.QueryRowContext(ctx, `
		SELECT levels FROM namespaces WHERE id = $1`, namespaceID).Scan(&encoded); err != nil {
		return nil
	}
	return namespacePathFromEncoded(encoded)
}

// LoadTable contains arguments for loading a table.
type LoadTable struct {
	Table     TableIdentifier
	Snapshots SnapshotsFilter
}

// LoadTable returns the materialized metadata document for a table.
func (db *DB) LoadTable(ctx context.Context, opts LoadTable) (result *LoadTableResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Snapshots == "" {
		opts.Snapshots = SnapshotsAll
	}

	header, err := getTableHeader(ctx, db.db, opts.Table)
	if err != nil {
		return nil, err
	}
	result, err = db.materializeLoadResult(ctx, db.db, header, opts.Snapshots)
	if err != nil {
		return nil, err
	}
	result.MetadataLocation = currentMetadataLocation(header.Location)
	return result, nil
}

// TableVersion is the minimal identity needed for conditional requests.
type TableVersion struct {
	TableUUID     string
	LastUpdatedMS int64
}

// ETag formats the version's entity tag.
func (v TableVersion) ETag() string { return ETag(v.TableUUID, v.LastUpdatedMS) }

// GetTableVersion returns the current version identity of a table without
// assembling the full document.
func (db *DB) GetTableVersion(ctx context.Context, id TableIdentifier) (version TableVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRowContext(ctx, `
		SELECT t.table_uuid, t.last_updated_ms
		FROM tables t
		JOIN namespaces n ON n.id = t.namespace_id
		WHERE n.levels = $1 AND t.name = $2`,
		id.Namespace.Encoded(), id.Name).Scan(&version.TableUUID, &version.LastUpdatedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TableVersion{}, ErrTableNotFound.New("%s", id)
		}
		return TableVersion{}, Error.New("unable to query table version: %w", err)
	}
	return version, nil
}

// DropTable contains arguments for dropping a table.
type DropTable struct {
	Table TableIdentifier
	Purge bool
}

// DropTable deletes a table and all of its child rows.
func (db *DB) DropTable(ctx context.Context, opts DropTable) (err error) {
	defer mon.Task()(&ctx)(&err)

	return txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		if _, err := getNamespaceID(ctx, tx, opts.Table.Namespace); err != nil {
			return err
		}
		header, err := getTableHeader(ctx, tx, opts.Table)
		if err != nil {
			return err
		}

		// Explicit child deletes back the declared cascades on backends
		// where foreign key enforcement may be off.
		for _, table := range []string{
			"schemas", "partition_specs", "sort_orders", "snapshots",
			"snapshot_refs", "table_statistics", "partition_statistics",
			"metadata_log", "storage_credentials", "operation_metrics",
		} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE table_id = $1`, header.ID); err != nil {
				return Error.New("unable to delete from %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tables WHERE id = $1`, header.ID); err != nil {
			return Error.New("unable to drop table: %w", err)
		}

		if opts.Purge {
			// Data file deletion is out of scope; the request is only
			// acknowledged.
			db.log.Info("table purge requested", zapTable(opts.Table),
				zap.String("location", header.Location))
		}
		db.log.Debug("table dropped", zapTable(opts.Table))
		return nil
	})
}

// RenameTable contains arguments for renaming a table, possibly across
// namespaces.
type RenameTable struct {
	Source      TableIdentifier
	Destination TableIdentifier
}

// RenameTable atomically rewrites a table's namespace and name. Failures
// report the most specific missing entity.
func (db *DB) RenameTable(ctx context.Context, opts RenameTable) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Source.Verify(); err != nil {
		return err
	}
	if err := opts.Destination.Verify(); err != nil {
		return err
	}

	return txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		if _, err := getNamespaceID(ctx, tx, opts.Source.Namespace); err != nil {
			return err
		}
		destNamespaceID, err := getNamespaceID(ctx, tx, opts.Destination.Namespace)
		if err != nil {
			return err
		}
		header, err := getTableHeader(ctx, tx, opts.Source)
		if err != nil {
			return err
		}

		var destExists bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM tables WHERE namespace_id = $1 AND name = $2
			)`, destNamespaceID, opts.Destination.Name).Scan(&destExists)
		if err != nil {
			return Error.New("unable to check destination: %w", err)
		}
		if destExists {
			return ErrTableExists.New("%s", opts.Destination)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tables SET namespace_id = $1, name = $2, updated_at = $3
			WHERE id = $4`,
			destNamespaceID, opts.Destination.Name, db.nowMillis(), header.ID)
		if err != nil {
			if dbutil.IsConstraintViolation(err) {
				return ErrTableExists.New("%s", opts.Destination)
			}
			return Error.New("unable to rename table: %w", err)
		}

		db.log.Debug("table renamed",
			zap.Stringer("source", opts.Source),
			zap.Stringer("destination", opts.Destination))
		return nil
	})
}

// MetricsReport is a client-submitted scan or commit report.
type MetricsReport struct {
	ReportType          string            `json:"report-type"`
	SnapshotID          *int64            `json:"snapshot-id,omitempty"`
	SequenceNumber      *int64            `json:"sequence-number,omitempty"`
	Operation           string            `json:"operation,omitempty"`
	Filter              json.RawMessage   `json:"filter,omitempty"`
	SchemaID            *int              `json:"schema-id,omitempty"`
	ProjectedFieldIDs   []int             `json:"projected-field-ids,omitempty"`
	ProjectedFieldNames []string          `json:"projected-field-names,omitempty"`
	Metrics             json.RawMessage   `json:"metrics,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// IsScan reports whether the report describes a scan. Anything else is a
// commit report.
func (r *MetricsReport) IsScan() bool {
	return len(r.Filter) > 0 && r.SchemaID != nil
}

// ReportMetrics appends an operation metrics row for a table.
func (db *DB) ReportMetrics(ctx context.Context, id TableIdentifier, report MetricsReport) (err error) {
	defer mon.Task()(&ctx)(&err)

	header, err := getTableHeader(ctx, db.db, id)
	if err != nil {
		return err
	}

	reportType := "commit"
	if report.IsScan() {
		reportType = "scan"
	}

	metrics := report.Metrics
	if metrics == nil {
		metrics = json.RawMessage("{}")
	}
	var filter *string
	if len(report.Filter) > 0 {
		s := string(report.Filter)
		filter = &s
	}
	var fieldIDs, fieldNames, metadata *string
	if report.ProjectedFieldIDs != nil {
		s, err := encodeJSONSlice(report.ProjectedFieldIDs)
		if err != nil {
			return Error.Wrap(err)
		}
		fieldIDs = &s
	}
	if report.ProjectedFieldNames != nil {
		s, err := encodeJSONSlice(report.ProjectedFieldNames)
		if err != nil {
			return Error.Wrap(err)
		}
		fieldNames = &s
	}
	if report.Metadata != nil {
		s, err := encodeJSONMap(report.Metadata)
		if err != nil {
			return Error.Wrap(err)
		}
		metadata = &s
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO operation_metrics (
			table_id, report_type, snapshot_id, sequence_number, operation,
			filter_json, schema_id, projected_field_ids, projected_field_names,
			metrics_json, metadata_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		header.ID, reportType, report.SnapshotID, report.SequenceNumber, report.Operation,
		filter, report.SchemaID, fieldIDs, fieldNames,
		string(metrics), metadata, db.nowMillis())
	if err != nil {
		return Error.New("unable to insert metrics: %w", err)
	}

	db.log.Debug("metrics reported", zapTable(id), zap.String("report_type", reportType))
	return nil
}

func encodeJSONSlice[T any](values []T) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
