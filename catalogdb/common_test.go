// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/icecat/catalogdb"
)

func testSchema() *catalogdb.Schema {
	return &catalogdb.Schema{
		Fields: []catalogdb.SchemaField{
			{ID: 1, Name: "amt", Type: json.RawMessage(`"long"`), Required: true},
		},
	}
}

func testSnapshot(snapshotID, sequenceNumber int64) catalogdb.Snapshot {
	return catalogdb.Snapshot{
		SnapshotID:     snapshotID,
		SequenceNumber: sequenceNumber,
		TimestampMS:    1700000000000,
		ManifestList:   "s3://warehouse/metadata/snap.avro",
		Summary:        map[string]string{"operation": "append"},
	}
}

func createTestTable(ctx context.Context, t *testing.T, db *catalogdb.DB, namespace catalogdb.NamespacePath, name string) *catalogdb.LoadTableResult {
	t.Helper()
	if exists, err := db.NamespaceExists(ctx, namespace); err == nil && !exists {
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))
	}
	result, err := db.CreateTable(ctx, catalogdb.CreateTable{
		Namespace: namespace,
		Name:      name,
		Schema:    testSchema(),
	})
	require.NoError(t, err)
	return result
}
