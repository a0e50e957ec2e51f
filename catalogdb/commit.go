// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"storj.io/icecat/private/dbutil"
	"storj.io/icecat/private/dbutil/txutil"
	"storj.io/icecat/private/tagsql"
)

// TableRequirement is a commit precondition, checked before any update is
// applied.
type TableRequirement interface {
	// RequirementType returns the wire tag of the requirement.
	RequirementType() string
	// Check verifies the precondition against the current table state.
	Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error
}

// TableUpdate is a single commit mutation.
type TableUpdate interface {
	// UpdateAction returns the wire tag of the update.
	UpdateAction() string
	// Apply performs the mutation. The engine re-reads the table header
	// after every update, so Apply never mutates header in place.
	Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error
}

// decodeRequirement dispatches on the requirement's type tag. Unrecognized
// types are precondition failures.
func decodeRequirement(data json.RawMessage) (TableRequirement, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, ErrInvalidRequest.New("malformed requirement: %v", err)
	}

	var requirement TableRequirement
	switch envelope.Type {
	case "assert-create":
		requirement = &AssertCreate{}
	case "assert-table-uuid":
		requirement = &AssertTableUUID{}
	case "assert-ref-snapshot-id":
		requirement = &AssertRefSnapshotID{}
	case "assert-last-assigned-field-id":
		requirement = &AssertLastAssignedFieldID{}
	case "assert-current-schema-id":
		requirement = &AssertCurrentSchemaID{}
	case "assert-last-assigned-partition-id":
		requirement = &AssertLastAssignedPartitionID{}
	case "assert-default-spec-id":
		requirement = &AssertDefaultSpecID{}
	case "assert-default-sort-order-id":
		requirement = &AssertDefaultSortOrderID{}
	default:
		return nil, ErrPrecondition.New("unknown requirement type %q", envelope.Type)
	}
	if err := json.Unmarshal(data, requirement); err != nil {
		return nil, ErrInvalidRequest.New("malformed %s requirement: %v", envelope.Type, err)
	}
	return requirement, nil
}

// AssertCreate requires that the table does not exist. The commit flow
// resolves the table before checking requirements, so this requirement can
// only ever fail.
type AssertCreate struct{}

// RequirementType implements TableRequirement.
func (*AssertCreate) RequirementType() string { return "assert-create" }

// Check implements TableRequirement.
func (*AssertCreate) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	return ErrTableNotFound.New("assert-create: table %q already exists", header.Name)
}

// AssertTableUUID requires the table uuid to equal the stated value.
type AssertTableUUID struct {
	UUID string `json:"uuid"`
}

// RequirementType implements TableRequirement.
func (*AssertTableUUID) RequirementType() string { return "assert-table-uuid" }

// Check implements TableRequirement.
func (r *AssertTableUUID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.TableUUID != r.UUID {
		return ErrPrecondition.New("assert-table-uuid: expected %q, have %q", r.UUID, header.TableUUID)
	}
	return nil
}

// AssertRefSnapshotID requires a named ref to be absent (nil snapshot id) or
// to point at the stated snapshot.
type AssertRefSnapshotID struct {
	Ref        string `json:"ref"`
	SnapshotID *int64 `json:"snapshot-id"`
}

// RequirementType implements TableRequirement.
func (*AssertRefSnapshotID) RequirementType() string { return "assert-ref-snapshot-id" }

// Check implements TableRequirement.
func (r *AssertRefSnapshotID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	var current int64
	err := tx.QueryRowContext(ctx, `
		SELECT snapshot_id FROM snapshot_refs WHERE table_id = $1 AND name = $2`,
		header.ID, r.Ref).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if r.SnapshotID == nil {
				return nil
			}
			return ErrPrecondition.New("assert-ref-snapshot-id: ref %q does not exist", r.Ref)
		}
		return Error.New("unable to query ref: %w", err)
	}
	if r.SnapshotID == nil {
		return ErrPrecondition.New("assert-ref-snapshot-id: ref %q exists", r.Ref)
	}
	if current != *r.SnapshotID {
		return ErrPrecondition.New("assert-ref-snapshot-id: ref %q at %d, expected %d", r.Ref, current, *r.SnapshotID)
	}
	return nil
}

// AssertLastAssignedFieldID requires last_column_id to equal the stated
// value.
type AssertLastAssignedFieldID struct {
	LastAssignedFieldID int `json:"last-assigned-field-id"`
}

// RequirementType implements TableRequirement.
func (*AssertLastAssignedFieldID) RequirementType() string { return "assert-last-assigned-field-id" }

// Check implements TableRequirement.
func (r *AssertLastAssignedFieldID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.LastColumnID != r.LastAssignedFieldID {
		return ErrPrecondition.New("assert-last-assigned-field-id: have %d, expected %d", header.LastColumnID, r.LastAssignedFieldID)
	}
	return nil
}

// AssertCurrentSchemaID requires current_schema_id to equal the stated
// value.
type AssertCurrentSchemaID struct {
	CurrentSchemaID int `json:"current-schema-id"`
}

// RequirementType implements TableRequirement.
func (*AssertCurrentSchemaID) RequirementType() string { return "assert-current-schema-id" }

// Check implements TableRequirement.
func (r *AssertCurrentSchemaID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.CurrentSchemaID != r.CurrentSchemaID {
		return ErrPrecondition.New("assert-current-schema-id: have %d, expected %d", header.CurrentSchemaID, r.CurrentSchemaID)
	}
	return nil
}

// AssertLastAssignedPartitionID requires last_partition_id to equal the
// stated value.
type AssertLastAssignedPartitionID struct {
	LastAssignedPartitionID int `json:"last-assigned-partition-id"`
}

// RequirementType implements TableRequirement.
func (*AssertLastAssignedPartitionID) RequirementType() string {
	return "assert-last-assigned-partition-id"
}

// Check implements TableRequirement.
func (r *AssertLastAssignedPartitionID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.LastPartitionID != r.LastAssignedPartitionID {
		return ErrPrecondition.New("assert-last-assigned-partition-id: have %d, expected %d", header.LastPartitionID, r.LastAssignedPartitionID)
	}
	return nil
}

// AssertDefaultSpecID requires default_spec_id to equal the stated value.
type AssertDefaultSpecID struct {
	DefaultSpecID int `json:"default-spec-id"`
}

// RequirementType implements TableRequirement.
func (*AssertDefaultSpecID) RequirementType() string { return "assert-default-spec-id" }

// Check implements TableRequirement.
func (r *AssertDefaultSpecID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.DefaultSpecID != r.DefaultSpecID {
		return ErrPrecondition.New("assert-default-spec-id: have %d, expected %d", header.DefaultSpecID, r.DefaultSpecID)
	}
	return nil
}

// AssertDefaultSortOrderID requires default_sort_order_id to equal the
// stated value.
type AssertDefaultSortOrderID struct {
	DefaultSortOrderID int `json:"default-sort-order-id"`
}

// RequirementType implements TableRequirement.
func (*AssertDefaultSortOrderID) RequirementType() string { return "assert-default-sort-order-id" }

// Check implements TableRequirement.
func (r *AssertDefaultSortOrderID) Check(ctx context.Context, tx tagsql.Tx, header *tableHeader) error {
	if header.DefaultSortOrderID != r.DefaultSortOrderID {
		return ErrPrecondition.New("assert-default-sort-order-id: have %d, expected %d", header.DefaultSortOrderID, r.DefaultSortOrderID)
	}
	return nil
}

// decodeUpdate dispatches on the update's action tag. Unrecognized actions
// are rejected at decode time.
func decodeUpdate(data json.RawMessage) (TableUpdate, error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, ErrInvalidRequest.New("malformed update: %v", err)
	}

	var update TableUpdate
	switch envelope.Action {
	case "assign-uuid":
		update = &AssignUUID{}
	case "upgrade-format-version":
		update = &UpgradeFormatVersion{}
	case "add-schema":
		update = &AddSchema{}
	case "set-current-schema":
		update = &SetCurrentSchema{}
	case "add-spec":
		update = &AddSpec{}
	case "set-default-spec":
		update = &SetDefaultSpec{}
	case "add-sort-order":
		update = &AddSortOrder{}
	case "set-default-sort-order":
		update = &SetDefaultSortOrder{}
	case "add-snapshot":
		update = &AddSnapshot{}
	case "set-snapshot-ref":
		update = &SetSnapshotRef{}
	case "remove-snapshots":
		update = &RemoveSnapshots{}
	case "remove-snapshot-ref":
		update = &RemoveSnapshotRef{}
	case "remove-partition-specs":
		update = &RemovePartitionSpecs{}
	case "remove-schemas":
		update = &RemoveSchemas{}
	case "set-location":
		update = &SetLocation{}
	case "set-properties":
		update = &SetProperties{}
	case "remove-properties":
		update = &RemoveProperties{}
	case "set-statistics":
		update = &SetStatistics{}
	case "set-partition-statistics":
		update = &SetPartitionStatistics{}
	case "remove-statistics":
		update = &RemoveStatistics{}
	case "remove-partition-statistics":
		update = &RemovePartitionStatistics{}
	case "enable-row-lineage":
		update = &EnableRowLineage{}
	default:
		return nil, ErrInvalidRequest.New("unknown update action %q", envelope.Action)
	}
	if err := json.Unmarshal(data, update); err != nil {
		return nil, ErrInvalidRequest.New("malformed %s update: %v", envelope.Action, err)
	}
	return update, nil
}

// AssignUUID overwrites the table uuid.
type AssignUUID struct {
	UUID string `json:"uuid"`
}

// UpdateAction implements TableUpdate.
func (*AssignUUID) UpdateAction() string { return "assign-uuid" }

// Apply implements TableUpdate.
func (u *AssignUUID) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if u.UUID == "" {
		return ErrInvalidRequest.New("assign-uuid: uuid missing")
	}
	_, err := tx.ExecContext(ctx, `UPDATE tables SET table_uuid = $1 WHERE id = $2`, u.UUID, header.ID)
	if err != nil {
		return Error.New("unable to assign uuid: %w", err)
	}
	return nil
}

// UpgradeFormatVersion overwrites the table format version.
type UpgradeFormatVersion struct {
	FormatVersion int `json:"format-version"`
}

// UpdateAction implements TableUpdate.
func (*UpgradeFormatVersion) UpdateAction() string { return "upgrade-format-version" }

// Apply implements TableUpdate.
func (u *UpgradeFormatVersion) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if u.FormatVersion != 1 && u.FormatVersion != 2 {
		return ErrInvalidRequest.New("upgrade-format-version: unsupported version %d", u.FormatVersion)
	}
	if u.FormatVersion < header.FormatVersion {
		return ErrInvalidRequest.New("upgrade-format-version: cannot downgrade from %d to %d", header.FormatVersion, u.FormatVersion)
	}
	_, err := tx.ExecContext(ctx, `UPDATE tables SET format_version = $1 WHERE id = $2`, u.FormatVersion, header.ID)
	if err != nil {
		return Error.New("unable to upgrade format version: %w", err)
	}
	return nil
}

// AddSchema stores a new schema, assigning an id when the schema carries
// none.
type AddSchema struct {
	Schema Schema `json:"schema"`
}

// UpdateAction implements TableUpdate.
func (*AddSchema) UpdateAction() string { return "add-schema" }

// Apply implements TableUpdate.
func (u *AddSchema) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	schema := u.Schema
	schema.Type = "struct"

	if schema.SchemaID == nil {
		maxID, err := maxChildID(ctx, tx, "schemas", "schema_id", header.ID)
		if err != nil {
			return err
		}
		schema.SchemaID = intPtr(maxID + 1)
	}

	if err := insertSchema(ctx, tx, header.ID, *schema.SchemaID, &schema); err != nil {
		return err
	}

	if maxFieldID := schema.MaxFieldID(); maxFieldID > header.LastColumnID {
		_, err := tx.ExecContext(ctx, `UPDATE tables SET last_column_id = $1 WHERE id = $2`,
			maxFieldID, header.ID)
		if err != nil {
			return Error.New("unable to advance last column id: %w", err)
		}
	}
	return nil
}

// SetCurrentSchema switches the current schema. The value -1 resolves to the
// maximum stored schema id.
type SetCurrentSchema struct {
	SchemaID int `json:"schema-id"`
}

// UpdateAction implements TableUpdate.
func (*SetCurrentSchema) UpdateAction() string { return "set-current-schema" }

// Apply implements TableUpdate.
func (u *SetCurrentSchema) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	schemaID := u.SchemaID
	if schemaID == -1 {
		maxID, err := maxChildID(ctx, tx, "schemas", "schema_id", header.ID)
		if err != nil {
			return err
		}
		schemaID = maxID
	}

	exists, err := childExists(ctx, tx, "schemas", "schema_id", header.ID, schemaID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrInvalidRequest.New("set-current-schema: schema %d does not exist", schemaID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tables SET current_schema_id = $1, schema_id = $2 WHERE id = $3`,
		schemaID, schemaID, header.ID)
	if err != nil {
		return Error.New("unable to set current schema: %w", err)
	}
	return nil
}

// AddSpec stores a new partition spec, assigning spec and field ids when
// absent.
type AddSpec struct {
	Spec PartitionSpec `json:"spec"`
}

// UpdateAction implements TableUpdate.
func (*AddSpec) UpdateAction() string { return "add-spec" }

// Apply implements TableUpdate.
func (u *AddSpec) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	spec := u.Spec
	if spec.SpecID == nil {
		maxID, err := maxChildID(ctx, tx, "partition_specs", "spec_id", header.ID)
		if err != nil {
			return err
		}
		spec.SpecID = intPtr(maxID + 1)
	}

	lastPartitionID := header.LastPartitionID
	if maxFieldID := spec.MaxFieldID(); maxFieldID > lastPartitionID {
		lastPartitionID = maxFieldID
	}
	for i := range spec.Fields {
		if spec.Fields[i].FieldID == nil {
			lastPartitionID++
			spec.Fields[i].FieldID = intPtr(lastPartitionID)
		}
	}

	if err := insertPartitionSpec(ctx, tx, header.ID, *spec.SpecID, &spec); err != nil {
		return err
	}

	if lastPartitionID > header.LastPartitionID {
		_, err := tx.ExecContext(ctx, `UPDATE tables SET last_partition_id = $1 WHERE id = $2`,
			lastPartitionID, header.ID)
		if err != nil {
			return Error.New("unable to advance last partition id: %w", err)
		}
	}
	return nil
}

// SetDefaultSpec switches the default partition spec. The value -1 resolves
// to the maximum stored spec id.
type SetDefaultSpec struct {
	SpecID int `json:"spec-id"`
}

// UpdateAction implements TableUpdate.
func (*SetDefaultSpec) UpdateAction() string { return "set-default-spec" }

// Apply implements TableUpdate.
func (u *SetDefaultSpec) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	specID := u.SpecID
	if specID == -1 {
		maxID, err := maxChildID(ctx, tx, "partition_specs", "spec_id", header.ID)
		if err != nil {
			return err
		}
		specID = maxID
	}

	exists, err := childExists(ctx, tx, "partition_specs", "spec_id", header.ID, specID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrInvalidRequest.New("set-default-spec: spec %d does not exist", specID)
	}

	_, err = tx.ExecContext(ctx, `UPDATE tables SET default_spec_id = $1 WHERE id = $2`, specID, header.ID)
	if err != nil {
		return Error.New("unable to set default spec: %w", err)
	}
	return nil
}

// AddSortOrder stores a new sort order, assigning an id when absent.
type AddSortOrder struct {
	SortOrder SortOrder `json:"sort-order"`
}

// UpdateAction implements TableUpdate.
func (*AddSortOrder) UpdateAction() string { return "add-sort-order" }

// Apply implements TableUpdate.
func (u *AddSortOrder) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	order := u.SortOrder
	if order.OrderID == nil {
		maxID, err := maxChildID(ctx, tx, "sort_orders", "order_id", header.ID)
		if err != nil {
			return err
		}
		order.OrderID = intPtr(maxID + 1)
	}
	return insertSortOrder(ctx, tx, header.ID, *order.OrderID, &order)
}

// SetDefaultSortOrder switches the default sort order. The value -1 resolves
// to the maximum stored order id.
type SetDefaultSortOrder struct {
	SortOrderID int `json:"sort-order-id"`
}

// UpdateAction implements TableUpdate.
func (*SetDefaultSortOrder) UpdateAction() string { return "set-default-sort-order" }

// Apply implements TableUpdate.
func (u *SetDefaultSortOrder) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	orderID := u.SortOrderID
	if orderID == -1 {
		maxID, err := maxChildID(ctx, tx, "sort_orders", "order_id", header.ID)
		if err != nil {
			return err
		}
		orderID = maxID
	}

	exists, err := childExists(ctx, tx, "sort_orders", "order_id", header.ID, orderID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrInvalidRequest.New("set-default-sort-order: order %d does not exist", orderID)
	}

	_, err = tx.ExecContext(ctx, `UPDATE tables SET default_sort_order_id = $1 WHERE id = $2`, orderID, header.ID)
	if err != nil {
		return Error.New("unable to set default sort order: %w", err)
	}
	return nil
}

// AddSnapshot inserts a snapshot, makes it current and raises the table's
// last sequence number.
type AddSnapshot struct {
	Snapshot Snapshot `json:"snapshot"`
}

// UpdateAction implements TableUpdate.
func (*AddSnapshot) UpdateAction() string { return "add-snapshot" }

// Apply implements TableUpdate.
func (u *AddSnapshot) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	snapshot := u.Snapshot
	if err := snapshot.Verify(); err != nil {
		return err
	}
	if snapshot.TimestampMS == 0 {
		snapshot.TimestampMS = db.nowMillis()
	}

	summary, err := encodeJSONMap(snapshot.Summary)
	if err != nil {
		return Error.Wrap(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (
			table_id, snapshot_id, parent_snapshot_id, sequence_number,
			timestamp_ms, manifest_list, summary, schema_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		header.ID, snapshot.SnapshotID, snapshot.ParentSnapshotID, snapshot.SequenceNumber,
		snapshot.TimestampMS, snapshot.ManifestList, summary, snapshot.SchemaID)
	if err != nil {
		if dbutil.IsConstraintViolation(err) {
			return ErrInvalidRequest.New("add-snapshot: snapshot %d already exists", snapshot.SnapshotID)
		}
		return Error.New("unable to insert snapshot: %w", err)
	}

	lastSequenceNumber := header.LastSequenceNumber
	if snapshot.SequenceNumber > lastSequenceNumber {
		lastSequenceNumber = snapshot.SequenceNumber
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tables SET current_snapshot_id = $1, last_sequence_number = $2 WHERE id = $3`,
		snapshot.SnapshotID, lastSequenceNumber, header.ID)
	if err != nil {
		return Error.New("unable to update snapshot pointers: %w", err)
	}
	return nil
}

// SetSnapshotRef upserts a named ref. The ref must point at an existing
// snapshot.
type SetSnapshotRef struct {
	RefName string `json:"ref-name"`
	SnapshotRef
}

// UpdateAction implements TableUpdate.
func (*SetSnapshotRef) UpdateAction() string { return "set-snapshot-ref" }

// Apply implements TableUpdate.
func (u *SetSnapshotRef) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if u.RefName == "" {
		return ErrInvalidRequest.New("set-snapshot-ref: ref-name missing")
	}
	if err := u.SnapshotRef.Verify(); err != nil {
		return err
	}

	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM snapshots WHERE table_id = $1 AND snapshot_id = $2)`,
		header.ID, u.SnapshotID).Scan(&exists)
	if err != nil {
		return Error.New("unable to check snapshot: %w", err)
	}
	if !exists {
		return ErrInvalidRequest.New("set-snapshot-ref: snapshot %d does not exist", u.SnapshotID)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE snapshot_refs
		SET snapshot_id = $1, type = $2, min_snapshots_to_keep = $3,
			max_snapshot_age_ms = $4, max_ref_age_ms = $5
		WHERE table_id = $6 AND name = $7`,
		u.SnapshotID, u.Type, u.MinSnapshotsToKeep,
		u.MaxSnapshotAgeMS, u.MaxRefAgeMS, header.ID, u.RefName)
	if err != nil {
		return Error.New("unable to update ref: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_refs (
			table_id, name, snapshot_id, type,
			min_snapshots_to_keep, max_snapshot_age_ms, max_ref_age_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		header.ID, u.RefName, u.SnapshotID, u.Type,
		u.MinSnapshotsToKeep, u.MaxSnapshotAgeMS, u.MaxRefAgeMS)
	if err != nil {
		return Error.New("unable to insert ref: %w", err)
	}
	return nil
}

// RemoveSnapshots bulk deletes snapshots by id, along with their statistics
// rows. A snapshot still targeted by a ref cannot be removed.
type RemoveSnapshots struct {
	SnapshotIDs []int64 `json:"snapshot-ids"`
}

// UpdateAction implements TableUpdate.
func (*RemoveSnapshots) UpdateAction() string { return "remove-snapshots" }

// Apply implements TableUpdate.
func (u *RemoveSnapshots) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if len(u.SnapshotIDs) == 0 {
		return nil
	}
	args := []interface{}{header.ID}
	for _, id := range u.SnapshotIDs {
		args = append(args, id)
	}
	in := placeholders(2, len(u.SnapshotIDs))

	var refName string
	err := tx.QueryRowContext(ctx, `
		SELECT name FROM snapshot_refs WHERE table_id = $1 AND snapshot_id IN `+in+` LIMIT 1`,
		args...).Scan(&refName)
	if err == nil {
		return ErrInvalidRequest.New("remove-snapshots: ref %q still points at a removed snapshot", refName)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Error.New("unable to check refs: %w", err)
	}

	for _, table := range []string{"table_statistics", "partition_statistics", "snapshots"} {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE table_id = $1 AND snapshot_id IN `+in, args...)
		if err != nil {
			return Error.New("unable to remove snapshots: %w", err)
		}
	}
	return nil
}

// RemoveSnapshotRef deletes a named ref. Removing an absent ref is silent.
type RemoveSnapshotRef struct {
	RefName string `json:"ref-name"`
}

// UpdateAction implements TableUpdate.
func (*RemoveSnapshotRef) UpdateAction() string { return "remove-snapshot-ref" }

// Apply implements TableUpdate.
func (u *RemoveSnapshotRef) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM snapshot_refs WHERE table_id = $1 AND name = $2`,
		header.ID, u.RefName)
	if err != nil {
		return Error.New("unable to remove ref: %w", err)
	}
	return nil
}

// RemovePartitionSpecs bulk deletes partition specs by id. The default spec
// cannot be removed.
type RemovePartitionSpecs struct {
	SpecIDs []int `json:"spec-ids"`
}

// UpdateAction implements TableUpdate.
func (*RemovePartitionSpecs) UpdateAction() string { return "remove-partition-specs" }

// Apply implements TableUpdate.
func (u *RemovePartitionSpecs) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if len(u.SpecIDs) == 0 {
		return nil
	}
	for _, id := range u.SpecIDs {
		if id == header.DefaultSpecID {
			return ErrInvalidRequest.New("remove-partition-specs: spec %d is the default spec", id)
		}
	}
	args := []interface{}{header.ID}
	for _, id := range u.SpecIDs {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM partition_specs WHERE table_id = $1 AND spec_id IN `+placeholders(2, len(u.SpecIDs)),
		args...)
	if err != nil {
		return Error.New("unable to remove partition specs: %w", err)
	}
	return nil
}

// RemoveSchemas bulk deletes schemas by id. The current schema cannot be
// removed.
type RemoveSchemas struct {
	SchemaIDs []int `json:"schema-ids"`
}

// UpdateAction implements TableUpdate.
func (*RemoveSchemas) UpdateAction() string { return "remove-schemas" }

// Apply implements TableUpdate.
func (u *RemoveSchemas) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if len(u.SchemaIDs) == 0 {
		return nil
	}
	for _, id := range u.SchemaIDs {
		if id == header.CurrentSchemaID {
			return ErrInvalidRequest.New("remove-schemas: schema %d is the current schema", id)
		}
	}
	args := []interface{}{header.ID}
	for _, id := range u.SchemaIDs {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM schemas WHERE table_id = $1 AND schema_id IN `+placeholders(2, len(u.SchemaIDs)),
		args...)
	if err != nil {
		return Error.New("unable to remove schemas: %w", err)
	}
	return nil
}

// SetLocation rewrites the table's base location.
type SetLocation struct {
	Location string `json:"location"`
}

// UpdateAction implements TableUpdate.
func (*SetLocation) UpdateAction() string { return "set-location" }

// Apply implements TableUpdate.
func (u *SetLocation) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	if u.Location == "" {
		return ErrInvalidRequest.New("set-location: location missing")
	}
	_, err := tx.ExecContext(ctx, `UPDATE tables SET location = $1 WHERE id = $2`, u.Location, header.ID)
	if err != nil {
		return Error.New("unable to set location: %w", err)
	}
	return nil
}

// SetProperties merges updates into the table property map.
type SetProperties struct {
	Updates map[string]string `json:"updates"`
}

// UpdateAction implements TableUpdate.
func (*SetProperties) UpdateAction() string { return "set-properties" }

// Apply implements TableUpdate.
func (u *SetProperties) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	properties, err := decodeJSONMap(header.Properties)
	if err != nil {
		return err
	}
	for key, value := range u.Updates {
		properties[key] = value
	}
	return writeTableProperties(ctx, tx, header.ID, properties)
}

// RemoveProperties deletes keys from the table property map. Removing an
// absent key is silent.
type RemoveProperties struct {
	Removals []string `json:"removals"`
}

// UpdateAction implements TableUpdate.
func (*RemoveProperties) UpdateAction() string { return "remove-properties" }

// Apply implements TableUpdate.
func (u *RemoveProperties) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	properties, err := decodeJSONMap(header.Properties)
	if err != nil {
		return err
	}
	for _, key := range u.Removals {
		delete(properties, key)
	}
	return writeTableProperties(ctx, tx, header.ID, properties)
}

func writeTableProperties(ctx context.Context, tx tagsql.Tx, tableID int64, properties map[string]string) error {
	encoded, err := encodeJSONMap(properties)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE tables SET properties = $1 WHERE id = $2`, encoded, tableID)
	if err != nil {
		return Error.New("unable to update properties: %w", err)
	}
	return nil
}

// SetStatistics upserts a statistics file by snapshot.
type SetStatistics struct {
	SnapshotID *int64         `json:"snapshot-id"`
	Statistics StatisticsFile `json:"statistics"`
}

// UpdateAction implements TableUpdate.
func (*SetStatistics) UpdateAction() string { return "set-statistics" }

// Apply implements TableUpdate.
func (u *SetStatistics) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	file := u.Statistics
	if file.SnapshotID == 0 && u.SnapshotID != nil {
		file.SnapshotID = *u.SnapshotID
	}
	if file.StatisticsPath == "" {
		return ErrInvalidRequest.New("set-statistics: statistics-path missing")
	}

	var blob *string
	if len(file.BlobMetadata) > 0 {
		s := string(file.BlobMetadata)
		blob = &s
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE table_statistics
		SET statistics_path = $1, file_size_in_bytes = $2,
			file_footer_size_in_bytes = $3, blob_metadata = $4
		WHERE table_id = $5 AND snapshot_id = $6`,
		file.StatisticsPath, file.FileSizeInBytes,
		file.FileFooterSizeInBytes, blob, header.ID, file.SnapshotID)
	if err != nil {
		return Error.New("unable to update statistics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO table_statistics (
			table_id, snapshot_id, statistics_path,
			file_size_in_bytes, file_footer_size_in_bytes, blob_metadata
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		header.ID, file.SnapshotID, file.StatisticsPath,
		file.FileSizeInBytes, file.FileFooterSizeInBytes, blob)
	if err != nil {
		return Error.New("unable to insert statistics: %w", err)
	}
	return nil
}

// SetPartitionStatistics upserts a partition statistics file by snapshot.
type SetPartitionStatistics struct {
	PartitionStatistics PartitionStatisticsFile `json:"partition-statistics"`
}

// UpdateAction implements TableUpdate.
func (*SetPartitionStatistics) UpdateAction() string { return "set-partition-statistics" }

// Apply implements TableUpdate.
func (u *SetPartitionStatistics) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	file := u.PartitionStatistics
	if file.StatisticsPath == "" {
		return ErrInvalidRequest.New("set-partition-statistics: statistics-path missing")
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE partition_statistics
		SET statistics_path = $1, file_size_in_bytes = $2
		WHERE table_id = $3 AND snapshot_id = $4`,
		file.StatisticsPath, file.FileSizeInBytes, header.ID, file.SnapshotID)
	if err != nil {
		return Error.New("unable to update partition statistics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO partition_statistics (
			table_id, snapshot_id, statistics_path, file_size_in_bytes
		) VALUES ($1, $2, $3, $4)`,
		header.ID, file.SnapshotID, file.StatisticsPath, file.FileSizeInBytes)
	if err != nil {
		return Error.New("unable to insert partition statistics: %w", err)
	}
	return nil
}

// RemoveStatistics deletes a statistics file by snapshot.
type RemoveStatistics struct {
	SnapshotID int64 `json:"snapshot-id"`
}

// UpdateAction implements TableUpdate.
func (*RemoveStatistics) UpdateAction() string { return "remove-statistics" }

// Apply implements TableUpdate.
func (u *RemoveStatistics) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM table_statistics WHERE table_id = $1 AND snapshot_id = $2`,
		header.ID, u.SnapshotID)
	if err != nil {
		return Error.New("unable to remove statistics: %w", err)
	}
	return nil
}

// RemovePartitionStatistics deletes a partition statistics file by snapshot.
type RemovePartitionStatistics struct {
	SnapshotID int64 `json:"snapshot-id"`
}

// UpdateAction implements TableUpdate.
func (*RemovePartitionStatistics) UpdateAction() string { return "remove-partition-statistics" }

// Apply implements TableUpdate.
func (u *RemovePartitionStatistics) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM partition_statistics WHERE table_id = $1 AND snapshot_id = $2`,
		header.ID, u.SnapshotID)
	if err != nil {
		return Error.New("unable to remove partition statistics: %w", err)
	}
	return nil
}

// EnableRowLineage turns row lineage tracking on.
type EnableRowLineage struct{}

// UpdateAction implements TableUpdate.
func (*EnableRowLineage) UpdateAction() string { return "enable-row-lineage" }

// Apply implements TableUpdate.
func (u *EnableRowLineage) Apply(ctx context.Context, db *DB, tx tagsql.Tx, header *tableHeader) error {
	_, err := tx.ExecContext(ctx, `UPDATE tables SET row_lineage = TRUE WHERE id = $1`, header.ID)
	if err != nil {
		return Error.New("unable to enable row lineage: %w", err)
	}
	return nil
}

// maxChildID returns the maximum stored id in a child table, or -1 when the
// table has no rows, so that max+1 starts at 0.
func maxChildID(ctx context.Context, tx tagsql.Tx, table, column string, tableID int64) (int, error) {
	var maxID sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(`+column+`) FROM `+table+` WHERE table_id = $1`, tableID).Scan(&maxID)
	if err != nil {
		return 0, Error.New("unable to query max %s: %w", column, err)
	}
	if !maxID.Valid {
		return -1, nil
	}
	return int(maxID.Int64), nil
}

func childExists(ctx context.Context, tx tagsql.Tx, table, column string, tableID int64, id int) (exists bool, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE table_id = $1 AND `+column+` = $2)`,
		tableID, id).Scan(&exists)
	if err != nil {
		return false, Error.New("unable to check %s existence: %w", table, err)
	}
	return exists, nil
}

// placeholders renders "($start, $start+1, ...)" for dynamic IN clauses.
func placeholders(start, n int) string {
	var b strings.Builder
	b.WriteString("(")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("$")
		b.WriteString(strconv.Itoa(start + i))
	}
	b.WriteString(")")
	return b.String()
}

// CommitTable is a single-table commit request: ordered requirements
// followed by ordered updates, applied in one transaction.
type CommitTable struct {
	Table        TableIdentifier
	Requirements []TableRequirement
	Updates      []TableUpdate
}

// UnmarshalJSON decodes a commit request, dispatching requirement and update
// variants by tag.
func (c *CommitTable) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Identifier   *TableIdentifier  `json:"identifier"`
		Requirements []json.RawMessage `json:"requirements"`
		Updates      []json.RawMessage `json:"updates"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ErrInvalidRequest.New("malformed commit request: %v", err)
	}

	if envelope.Identifier != nil {
		c.Table = *envelope.Identifier
	}
	c.Requirements = nil
	c.Updates = nil
	for _, raw := range envelope.Requirements {
		requirement, err := decodeRequirement(raw)
		if err != nil {
			return err
		}
		c.Requirements = append(c.Requirements, requirement)
	}
	for _, raw := range envelope.Updates {
		update, err := decodeUpdate(raw)
		if err != nil {
			return err
		}
		c.Updates = append(c.Updates, update)
	}
	return nil
}

// CommitResult is the outcome of a successful commit.
type CommitResult struct {
	MetadataLocation string         `json:"metadata-location"`
	Metadata         *TableMetadata `json:"metadata"`
}

// UpdateTable validates requirements and applies updates to a table inside
// one transaction, returning the rematerialized document.
func (db *DB) UpdateTable(ctx context.Context, opts CommitTable) (result *CommitResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Table.Verify(); err != nil {
		return nil, err
	}

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		result, err = db.commitTable(ctx, tx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// commitTable runs the single-table commit flow inside an existing
// transaction.
func (db *DB) commitTable(ctx context.Context, tx tagsql.Tx, opts CommitTable) (_ *CommitResult, err error) {
	defer mon.Task()(&ctx)(&err)

	header, err := getTableHeader(ctx, tx, opts.Table)
	if err != nil {
		return nil, err
	}
	if db.impl == dbutil.Postgres {
		// Lock the header row so concurrent commits to the same table
		// serialize here instead of failing at commit time.
		header, err = getTableHeaderByID(ctx, tx, header.ID, true)
		if err != nil {
			return nil, err
		}
	}

	for _, requirement := range opts.Requirements {
		if err := requirement.Check(ctx, tx, header); err != nil {
			return nil, err
		}
	}

	for _, update := range opts.Updates {
		if err := update.Apply(ctx, db, tx, header); err != nil {
			return nil, err
		}
		// Later updates observe earlier ones.
		header, err = getTableHeaderByID(ctx, tx, header.ID, false)
		if err != nil {
			return nil, err
		}
	}

	// Advance last_updated_ms strictly so ETags never repeat even within
	// one clock millisecond.
	newMS := db.nowMillis()
	if newMS <= header.LastUpdatedMS {
		newMS = header.LastUpdatedMS + 1
	}
	metadataFile := commitMetadataLocation(header.Location, header.FormatVersion)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata_log (table_id, metadata_file, timestamp_ms)
		VALUES ($1, $2, $3)`, header.ID, metadataFile, newMS); err != nil {
		return nil, Error.New("unable to append metadata log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tables SET last_updated_ms = $1, updated_at = $2 WHERE id = $3`,
		newMS, newMS, header.ID); err != nil {
		return nil, Error.New("unable to finalize commit: %w", err)
	}

	header, err = getTableHeaderByID(ctx, tx, header.ID, false)
	if err != nil {
		return nil, err
	}
	metadata, err := assembleMetadata(ctx, tx, header, SnapshotsAll)
	if err != nil {
		return nil, err
	}

	db.log.Debug("table committed", zapTable(opts.Table),
		zap.Int("updates", len(opts.Updates)),
		zap.String("metadata_location", metadataFile))
	return &CommitResult{MetadataLocation: metadataFile, Metadata: metadata}, nil
}
