// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"storj.io/icecat/private/tagsql"
)

// SnapshotsFilter selects which snapshots the assembled document carries.
type SnapshotsFilter string

const (
	// SnapshotsAll includes every stored snapshot. The default.
	SnapshotsAll SnapshotsFilter = "all"
	// SnapshotsRefs includes only snapshots reachable from a ref.
	SnapshotsRefs SnapshotsFilter = "refs"
)

// ParseSnapshotsFilter parses the snapshots query parameter.
func ParseSnapshotsFilter(value string) (SnapshotsFilter, error) {
	switch value {
	case "", string(SnapshotsAll):
		return SnapshotsAll, nil
	case string(SnapshotsRefs):
		return SnapshotsRefs, nil
	default:
		return "", ErrInvalidRequest.New("invalid snapshots filter %q", value)
	}
}

// Schema is an Iceberg table schema.
type Schema struct {
	Type               string        `json:"type"`
	SchemaID           *int          `json:"schema-id,omitempty"`
	IdentifierFieldIDs []int         `json:"identifier-field-ids,omitempty"`
	Fields             []SchemaField `json:"fields"`
}

// MaxFieldID returns the largest field id in the schema.
func (s *Schema) MaxFieldID() int {
	max := 0
	for _, field := range s.Fields {
		if field.ID > max {
			max = field.ID
		}
	}
	return max
}

// SchemaField is a single column of a schema. The type is kept as raw JSON
// because it may be an arbitrarily nested struct, list or map type.
type SchemaField struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Type           json.RawMessage `json:"type"`
	Required       bool            `json:"required"`
	Doc            string          `json:"doc,omitempty"`
	InitialDefault json.RawMessage `json:"initial-default,omitempty"`
	WriteDefault   json.RawMessage `json:"write-default,omitempty"`
}

// PartitionSpec describes how source columns are transformed into partition
// columns.
type PartitionSpec struct {
	SpecID *int             `json:"spec-id,omitempty"`
	Fields []PartitionField `json:"fields"`
}

// MaxFieldID returns the largest assigned partition field id, or 0.
func (s *PartitionSpec) MaxFieldID() int {
	max := 0
	for _, field := range s.Fields {
		if field.FieldID != nil && *field.FieldID > max {
			max = *field.FieldID
		}
	}
	return max
}

// PartitionField is a single partition spec field.
type PartitionField struct {
	FieldID   *int   `json:"field-id,omitempty"`
	SourceID  int    `json:"source-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// SortOrder describes a table write order.
type SortOrder struct {
	OrderID *int        `json:"order-id,omitempty"`
	Fields  []SortField `json:"fields"`
}

// SortField is a single sort order field.
type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`
	NullOrder string `json:"null-order"`
}

// Snapshot is an immutable version of a table's contents.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMS      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`
}

// Operation returns the snapshot summary operation.
func (s *Snapshot) Operation() string { return s.Summary["operation"] }

// validOperations are the accepted snapshot summary operations.
var validOperations = map[string]bool{
	"append":    true,
	"replace":   true,
	"overwrite": true,
	"delete":    true,
}

// Verify snapshot fields.
func (s *Snapshot) Verify() error {
	switch {
	case s.SnapshotID == 0:
		return ErrInvalidRequest.New("snapshot-id missing")
	case s.ManifestList == "":
		return ErrInvalidRequest.New("manifest-list missing")
	case !validOperations[s.Operation()]:
		return ErrInvalidRequest.New("invalid summary operation %q", s.Operation())
	}
	return nil
}

// SnapshotRef is a named pointer to a snapshot.
type SnapshotRef struct {
	Type               string `json:"type"`
	SnapshotID         int64  `json:"snapshot-id"`
	MinSnapshotsToKeep *int   `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMS   *int64 `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMS        *int64 `json:"max-ref-age-ms,omitempty"`
}

// Verify ref fields.
func (r *SnapshotRef) Verify() error {
	if r.Type != "branch" && r.Type != "tag" {
		return ErrInvalidRequest.New("invalid ref type %q", r.Type)
	}
	return nil
}

// StatisticsFile points at a Puffin statistics file for a snapshot.
type StatisticsFile struct {
	SnapshotID            int64           `json:"snapshot-id"`
	StatisticsPath        string          `json:"statistics-path"`
	FileSizeInBytes       int64           `json:"file-size-in-bytes"`
	FileFooterSizeInBytes int64           `json:"file-footer-size-in-bytes"`
	BlobMetadata          json.RawMessage `json:"blob-metadata,omitempty"`
}

// PartitionStatisticsFile points at a partition statistics file for a
// snapshot.
type PartitionStatisticsFile struct {
	SnapshotID      int64  `json:"snapshot-id"`
	StatisticsPath  string `json:"statistics-path"`
	FileSizeInBytes int64  `json:"file-size-in-bytes"`
}

// MetadataLogEntry records a previously written metadata file.
type MetadataLogEntry struct {
	MetadataFile string `json:"metadata-file"`
	TimestampMS  int64  `json:"timestamp-ms"`
}

// TableMetadata is the canonical table metadata document.
type TableMetadata struct {
	FormatVersion       int                       `json:"format-version"`
	TableUUID           string                    `json:"table-uuid"`
	Location            string                    `json:"location,omitempty"`
	LastUpdatedMS       int64                     `json:"last-updated-ms"`
	Properties          map[string]string         `json:"properties"`
	Schemas             []*Schema                 `json:"schemas"`
	CurrentSchemaID     int                       `json:"current-schema-id"`
	LastColumnID        int                       `json:"last-column-id"`
	PartitionSpecs      []*PartitionSpec          `json:"partition-specs"`
	DefaultSpecID       int                       `json:"default-spec-id"`
	LastPartitionID     int                       `json:"last-partition-id"`
	SortOrders          []*SortOrder              `json:"sort-orders"`
	DefaultSortOrderID  int                       `json:"default-sort-order-id"`
	Snapshots           []*Snapshot               `json:"snapshots"`
	Refs                map[string]*SnapshotRef   `json:"refs"`
	CurrentSnapshotID   *int64                    `json:"current-snapshot-id,omitempty"`
	LastSequenceNumber  int64                     `json:"last-sequence-number"`
	Statistics          []StatisticsFile          `json:"statistics,omitempty"`
	PartitionStatistics []PartitionStatisticsFile `json:"partition-statistics,omitempty"`
	MetadataLog         []MetadataLogEntry        `json:"metadata-log,omitempty"`
	RowLineage          bool                      `json:"row-lineage,omitempty"`
	NextRowID           *int64                    `json:"next-row-id,omitempty"`
}

// StorageCredential is a credential bundle scoped to a location prefix.
type StorageCredential struct {
	Prefix string            `json:"prefix"`
	Config map[string]string `json:"config"`
}

// LoadTableResult is the load/create response envelope.
type LoadTableResult struct {
	MetadataLocation   string              `json:"metadata-location,omitempty"`
	Metadata           *TableMetadata      `json:"metadata"`
	Config             map[string]string   `json:"config,omitempty"`
	StorageCredentials []StorageCredential `json:"storage-credentials,omitempty"`
}

// assembleMetadata reads all child rows for a table and materializes the
// canonical document. The duplicated index columns are authoritative: ids
// missing from (or disagreeing with) the stored blobs are repaired from them
// on the way out.
func assembleMetadata(ctx context.Context, q tagsql.Queryer, header *tableHeader, filter SnapshotsFilter) (_ *TableMetadata, err error) {
	defer mon.Task()(&ctx)(&err)

	properties, err := decodeJSONMap(header.Properties)
	if err != nil {
		return nil, err
	}

	metadata := &TableMetadata{
		FormatVersion:      header.FormatVersion,
		TableUUID:          header.TableUUID,
		Location:           header.Location,
		LastUpdatedMS:      header.LastUpdatedMS,
		Properties:         properties,
		CurrentSchemaID:    header.CurrentSchemaID,
		LastColumnID:       header.LastColumnID,
		DefaultSpecID:      header.DefaultSpecID,
		LastPartitionID:    header.LastPartitionID,
		DefaultSortOrderID: header.DefaultSortOrderID,
		CurrentSnapshotID:  header.CurrentSnapshotID,
		LastSequenceNumber: header.LastSequenceNumber,
		Snapshots:          []*Snapshot{},
		Refs:               map[string]*SnapshotRef{},
		RowLineage:         header.RowLineage,
		NextRowID:          header.NextRowID,
	}

	if metadata.Schemas, err = assembleSchemas(ctx, q, header.ID); err != nil {
		return nil, err
	}
	if metadata.PartitionSpecs, err = assembleSpecs(ctx, q, header.ID, header.LastPartitionID); err != nil {
		return nil, err
	}
	if metadata.SortOrders, err = assembleSortOrders(ctx, q, header.ID); err != nil {
		return nil, err
	}
	if metadata.Snapshots, err = assembleSnapshots(ctx, q, header.ID, filter); err != nil {
		return nil, err
	}
	if metadata.Refs, err = assembleRefs(ctx, q, header.ID); err != nil {
		return nil, err
	}
	if metadata.Statistics, err = assembleStatistics(ctx, q, header.ID); err != nil {
		return nil, err
	}
	if metadata.PartitionStatistics, err = assemblePartitionStatistics(ctx, q, header.ID); err != nil {
		return nil, err
	}
	if metadata.MetadataLog, err = assembleMetadataLog(ctx, q, header.ID); err != nil {
		return nil, err
	}

	return metadata, nil
}

func assembleSchemas(ctx context.Context, q tagsql.Queryer, tableID int64) (_ []*Schema, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT schema_id, schema_json FROM schemas
		WHERE table_id = $1 ORDER BY schema_id`, tableID)
	if err != nil {
		return nil, Error.New("unable to query schemas: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	schemas := []*Schema{}
	for rows.Next() {
		var schemaID int
		var blob string
		if err := rows.Scan(&schemaID, &blob); err != nil {
			return nil, Error.Wrap(err)
		}
		schema := &Schema{}
		if err := json.Unmarshal([]byte(blob), schema); err != nil {
			return nil, Error.New("malformed schema %d: %w", schemaID, err)
		}
		// The index column wins over whatever the blob says.
		schema.Type = "struct"
		schema.SchemaID = intPtr(schemaID)
		schemas = append(schemas, schema)
	}
	return schemas, Error.Wrap(rows.Err())
}

func assembleSpecs(ctx context.Context, q tagsql.Queryer, tableID int64, lastPartitionID int) (_ []*PartitionSpec, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT spec_id, spec_json FROM partition_specs
		WHERE table_id = $1 ORDER BY spec_id`, tableID)
	if err != nil {
		return nil, Error.New("unable to query partition specs: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	// Missing partition field ids are assigned by walking upward from the
	// table's last assigned partition id. Assembly is deterministic, so
	// repeated loads repair identically.
	nextFieldID := lastPartitionID

	specs := []*PartitionSpec{}
	for rows.Next() {
		var specID int
		var blob string
		if err := rows.Scan(&specID, &blob); err != nil {
			return nil, Error.Wrap(err)
		}
		spec := &PartitionSpec{}
		if err := json.Unmarshal([]byte(blob), spec); err != nil {
			return nil, Error.New("malformed partition spec %d: %w", specID, err)
		}
		spec.SpecID = intPtr(specID)
		for i := range spec.Fields {
			if spec.Fields[i].FieldID == nil {
				nextFieldID++
				spec.Fields[i].FieldID = intPtr(nextFieldID)
			}
		}
		specs = append(specs, spec)
	}
	return specs, Error.Wrap(rows.Err())
}

func assembleSortOrders(ctx context.Context, q tagsql.Queryer, tableID int64) (_ []*SortOrder, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, order_json FROM sort_orders
		WHERE table_id = $1 ORDER BY order_id`, tableID)
	if err != nil {
		return nil, Error.New("unable to query sort orders: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	orders := []*SortOrder{}
	for rows.Next() {
		var orderID int
		var blob string
		if err := rows.Scan(&orderID, &blob); err != nil {
			return nil, Error.Wrap(err)
		}
		order := &SortOrder{}
		if err := json.Unmarshal([]byte(blob), order); err != nil {
			return nil, Error.New("malformed sort order %d: %w", orderID, err)
		}
		order.OrderID = intPtr(orderID)
		orders = append(orders, order)
	}
	return orders, Error.Wrap(rows.Err())
}

func assembleSnapshots(ctx context.Context, q tagsql.Queryer, tableID int64, filter SnapshotsFilter) (_ []*Snapshot, err error) {
	query := `
		SELECT snapshot_id, parent_snapshot_id, sequence_number, timestamp_ms,
			manifest_list, summary, schema_id
		FROM snapshots
		WHERE table_id = $1`
	if filter == SnapshotsRefs {
		query += ` AND snapshot_id IN (
			SELECT snapshot_id FROM snapshot_refs WHERE table_id = $2)`
	}
	query += ` ORDER BY sequence_number, snapshot_id`

	args := []interface{}{tableID}
	if filter == SnapshotsRefs {
		args = append(args, tableID)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.New("unable to query snapshots: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	snapshots := []*Snapshot{}
	for rows.Next() {
		snapshot := &Snapshot{}
		var summary string
		if err := rows.Scan(
			&snapshot.SnapshotID, &snapshot.ParentSnapshotID, &snapshot.SequenceNumber,
			&snapshot.TimestampMS, &snapshot.ManifestList, &summary, &snapshot.SchemaID,
		); err != nil {
			return nil, Error.Wrap(err)
		}
		if snapshot.Summary, err = decodeJSONMap(summary); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, Error.Wrap(rows.Err())
}

func assembleRefs(ctx context.Context, q tagsql.Queryer, tableID int64) (_ map[string]*SnapshotRef, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, snapshot_id, type, min_snapshots_to_keep, max_snapshot_age_ms, max_ref_age_ms
		FROM snapshot_refs
		WHERE table_id = $1`, tableID)
	if err != nil {
		return nil, Error.New("unable to query snapshot refs: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	refs := map[string]*SnapshotRef{}
	for rows.Next() {
		var name string
		ref := &SnapshotRef{}
		if err := rows.Scan(
			&name, &ref.SnapshotID, &ref.Type,
			&ref.MinSnapshotsToKeep, &ref.MaxSnapshotAgeMS, &ref.MaxRefAgeMS,
		); err != nil {
			return nil, Error.Wrap(err)
		}
		refs[name] = ref
	}
	return refs, Error.Wrap(rows.Err())
}

func assembleStatistics(ctx context.Context, q tagsql.Queryer, tableID int64) (_ []StatisticsFile, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT snapshot_id, statistics_path, file_size_in_bytes, file_footer_size_in_bytes, blob_metadata
		FROM table_statistics
		WHERE table_id = $1 ORDER BY snapshot_id`, tableID)
	if err != nil {
		return nil, Error.New("unable to query statistics: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var files []StatisticsFile
	for rows.Next() {
		var file StatisticsFile
		var blob *string
		if err := rows.Scan(
			&file.SnapshotID, &file.StatisticsPath,
			&file.FileSizeInBytes, &file.FileFooterSizeInBytes, &blob,
		); err != nil {
			return nil, Error.Wrap(err)
		}
		if blob != nil {
			file.BlobMetadata = json.RawMessage(*blob)
		}
		files = append(files, file)
	}
	return files, Error.Wrap(rows.Err())
}

func assemblePartitionStatistics(ctx context.Context, q tagsql.Queryer, tableID int64) (_ []PartitionStatisticsFile, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT snapshot_id, statistics_path, file_size_in_bytes
		FROM partition_statistics
		WHERE table_id = $1 ORDER BY snapshot_id`, tableID)
	if err != nil {
		return nil, Error.New("unable to query partition statistics: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var files []PartitionStatisticsFile
	for rows.Next() {
		var file PartitionStatisticsFile
		if err := rows.Scan(&file.SnapshotID, &file.StatisticsPath, &file.FileSizeInBytes); err != nil {
			return nil, Error.Wrap(err)
		}
		files = append(files, file)
	}
	return files, Error.Wrap(rows.Err())
}

func assembleMetadataLog(ctx context.Context, q tagsql.Queryer, tableID int64) (_ []MetadataLogEntry, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT metadata_file, timestamp_ms FROM metadata_log
		WHERE table_id = $1 ORDER BY timestamp_ms`, tableID)
	if err != nil {
		return nil, Error.New("unable to query metadata log: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var entries []MetadataLogEntry
	for rows.Next() {
		var entry MetadataLogEntry
		if err := rows.Scan(&entry.MetadataFile, &entry.TimestampMS); err != nil {
			return nil, Error.Wrap(err)
		}
		entries = append(entries, entry)
	}
	return entries, Error.Wrap(rows.Err())
}

// currentMetadataLocation is the synthesized metadata pointer returned on
// load paths.
func currentMetadataLocation(location string) string {
	return location + "/metadata/current.metadata.json"
}

// initialMetadataLocation is the synthesized metadata pointer returned on
// create.
func initialMetadataLocation(location string) string {
	return fmt.Sprintf("%s/metadata/00000-%s.metadata.json", location, uuid.NewString())
}

// commitMetadataLocation is the freshly minted metadata file name recorded
// on every successful commit.
func commitMetadataLocation(location string, formatVersion int) string {
	return fmt.Sprintf("%s/metadata/%05d-%s.metadata.json", location, formatVersion, uuid.NewString())
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
