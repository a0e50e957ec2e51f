// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/icecat/catalogdb"
	"storj.io/icecat/catalogdb/catalogdbtest"
)

func TestSnapshotsFilterParse(t *testing.T) {
	filter, err := catalogdb.ParseSnapshotsFilter("")
	require.NoError(t, err)
	require.Equal(t, catalogdb.SnapshotsAll, filter)

	filter, err = catalogdb.ParseSnapshotsFilter("refs")
	require.NoError(t, err)
	require.Equal(t, catalogdb.SnapshotsRefs, filter)

	_, err = catalogdb.ParseSnapshotsFilter("some")
	require.Error(t, err)
	require.True(t, catalogdb.ErrInvalidRequest.Has(err))
}

func TestAssemblyRepairsMissingIDs(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"repair"}
		createTestTable(ctx, t, db, namespace, "t")
		id := catalogdb.TableIdentifier{Namespace: namespace, Name: "t"}

		var tableID int64
		require.NoError(t, db.TestingQueryRow(ctx,
			`SELECT id FROM tables WHERE name = 't'`).Scan(&tableID))

		// Stored blobs without their id fields, as an older writer might
		// have produced.
		require.NoError(t, db.TestingExec(ctx, `
			INSERT INTO schemas (table_id, schema_id, schema_json)
			VALUES ($1, 7, '{"type":"struct","fields":[{"id":1,"name":"amt","type":"long","required":true}]}')`,
			tableID))
		require.NoError(t, db.TestingExec(ctx, `
			INSERT INTO partition_specs (table_id, spec_id, spec_json)
			VALUES ($1, 3, '{"fields":[{"source-id":1,"name":"amt_bucket","transform":"bucket[4]"}]}')`,
			tableID))

		loaded, err := db.LoadTable(ctx, catalogdb.LoadTable{Table: id})
		require.NoError(t, err)

		var repairedSchema *catalogdb.Schema
		for _, schema := range loaded.Metadata.Schemas {
			if *schema.SchemaID == 7 {
				repairedSchema = schema
			}
		}
		require.NotNil(t, repairedSchema)

		var repairedSpec *catalogdb.PartitionSpec
		for _, spec := range loaded.Metadata.PartitionSpecs {
			if *spec.SpecID == 3 {
				repairedSpec = spec
			}
		}
		require.NotNil(t, repairedSpec)
		require.NotNil(t, repairedSpec.Fields[0].FieldID)
		require.Equal(t, loaded.Metadata.LastPartitionID+1, *repairedSpec.Fields[0].FieldID)

		// Assembly is deterministic: a second load yields the identical
		// document apart from freshly resolved credentials.
		again, err := db.LoadTable(ctx, catalogdb.LoadTable{Table: id})
		require.NoError(t, err)
		require.Equal(t, loaded.Metadata, again.Metadata)
	})
}
