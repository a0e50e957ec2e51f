// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/icecat/catalogdb"
	"storj.io/icecat/catalogdb/catalogdbtest"
)

func TestTableCreateThenLoad(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"acct", "tax"}
		created := createTestTable(ctx, t, db, namespace, "t1")

		require.NotEmpty(t, created.Metadata.TableUUID)
		require.Equal(t, 2, created.Metadata.FormatVersion)
		require.Equal(t, 1, created.Metadata.LastColumnID)
		require.Equal(t, 0, created.Metadata.CurrentSchemaID)
		require.Equal(t, 0, created.Metadata.DefaultSpecID)
		require.Contains(t, created.MetadataLocation, "/metadata/00000-")

		loaded, err := db.LoadTable(ctx, catalogdb.LoadTable{
			Table: catalogdb.TableIdentifier{Namespace: namespace, Name: "t1"},
		})
		require.NoError(t, err)
		require.Equal(t, created.Metadata.TableUUID, loaded.Metadata.TableUUID)
		require.Empty(t, loaded.Metadata.Snapshots)
		require.Empty(t, loaded.Metadata.Refs)
		require.Len(t, loaded.Metadata.Schemas, 1)
		require.Equal(t, 0, *loaded.Metadata.Schemas[0].SchemaID)
		require.True(t, strings.HasSuffix(loaded.MetadataLocation, "/metadata/current.metadata.json"))

		_, err = db.LoadTable(ctx, catalogdb.LoadTable{
			Table: catalogdb.TableIdentifier{Namespace: namespace, Name: "missing"},
		})
		require.Error(t, err)
		require.True(t, catalogdb.ErrTableNotFound.Has(err))
	})
}

func TestTableCreateDerivedLocation(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		require.NoError(t, db.TestingExec(ctx, `
			UPDATE catalog_config
			SET config_json = '{"overrides":{},"defaults":{"warehouse":"s3://warehouse"}}'
			WHERE catalog_name = 'default'`))

		namespace := catalogdb.NamespacePath{"a", "b"}
		result := createTestTable(ctx, t, db, namespace, "t")
		require.Equal(t, "s3://warehouse/a.b/t", result.Metadata.Location)
	})
}

func TestTableCreateConflictsAndValidation(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"ns"}
		createTestTable(ctx, t, db, namespace, "t")

		_, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace, Name: "t", Schema: testSchema(),
		})
		require.Error(t, err)
		require.True(t, catalogdb.ErrTableExists.Has(err))

		_, err = db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: catalogdb.NamespacePath{"missing"}, Name: "t2", Schema: testSchema(),
		})
		require.Error(t, err)
		require.True(t, catalogdb.ErrNamespaceNotFound.Has(err))

		_, err = db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace, Name: "t3",
		})
		require.Error(t, err)
		require.True(t, catalogdb.ErrInvalidRequest.Has(err))
	})
}

func TestTableCreatePartitionFieldAssignment(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"parts"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))

		result, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace,
			Name:      "t",
			Schema:    testSchema(),
			PartitionSpec: &catalogdb.PartitionSpec{
				Fields: []catalogdb.PartitionField{
					{SourceID: 1, Name: "amt_bucket", Transform: "bucket[16]"},
					{SourceID: 1, Name: "amt_identity", Transform: "identity"},
				},
			},
		})
		require.NoError(t, err)

		spec := result.Metadata.PartitionSpecs[0]
		require.Equal(t, 0, *spec.SpecID)
		require.Equal(t, 1, *spec.Fields[0].FieldID)
		require.Equal(t, 2, *spec.Fields[1].FieldID)
		require.Equal(t, 2, result.Metadata.LastPartitionID)
	})
}

func TestTableListPagination(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"list"}
		for _, name := range []string{"t1", "t2", "t3"} {
			createTestTable(ctx, t, db, namespace, name)
		}

		page, err := db.ListTables(ctx, catalogdb.ListTables{Namespace: namespace, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page.Tables, 2)
		require.Equal(t, "t1", page.Tables[0].Name)
		require.NotEmpty(t, page.NextPageToken)

		page, err = db.ListTables(ctx, catalogdb.ListTables{
			Namespace: namespace, PageSize: 2, PageToken: page.NextPageToken,
		})
		require.NoError(t, err)
		require.Len(t, page.Tables, 1)
		require.Equal(t, "t3", page.Tables[0].Name)
		require.Empty(t, page.NextPageToken)

		_, err = db.ListTables(ctx, catalogdb.ListTables{Namespace: catalogdb.NamespacePath{"missing"}})
		require.Error(t, err)
		require.True(t, catalogdb.ErrNamespaceNotFound.Has(err))
	})
}

func TestTableDropCascades(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"cascade"}
		createTestTable(ctx, t, db, namespace, "t")
		id := catalogdb.TableIdentifier{Namespace: namespace, Name: "t"}

		// Add a snapshot and a ref so there are child rows beyond the
		// create-time ones.
		_, err := db.UpdateTable(ctx, catalogdb.CommitTable{
			Table: id,
			Updates: []catalogdb.TableUpdate{
				&catalogdb.AddSnapshot{Snapshot: testSnapshot(10, 1)},
				&catalogdb.SetSnapshotRef{
					RefName:     "main",
					SnapshotRef: catalogdb.SnapshotRef{Type: "branch", SnapshotID: 10},
				},
			},
		})
		require.NoError(t, err)

		require.NoError(t, db.DropTable(ctx, catalogdb.DropTable{Table: id, Purge: true}))

		for _, child := range []string{
			"schemas", "partition_specs", "sort_orders", "snapshots",
			"snapshot_refs", "metadata_log",
		} {
			var count int
			require.NoError(t, db.TestingQueryRow(ctx,
				`SELECT COUNT(*) FROM `+child).Scan(&count))
			require.Zero(t, count, child)
		}

		exists, err := db.TableExists(ctx, id)
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestTableRename(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		a := catalogdb.NamespacePath{"a"}
		b := catalogdb.NamespacePath{"b"}
		createTestTable(ctx, t, db, a, "t")
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: b}))

		source := catalogdb.TableIdentifier{Namespace: a, Name: "t"}
		destination := catalogdb.TableIdentifier{Namespace: b, Name: "t"}

		require.NoError(t, db.RenameTable(ctx, catalogdb.RenameTable{
			Source: source, Destination: destination,
		}))

		exists, err := db.TableExists(ctx, destination)
		require.NoError(t, err)
		require.True(t, exists)

		exists, err = db.TableExists(ctx, source)
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestTableRenameErrorPrecedence(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		a := catalogdb.NamespacePath{"a"}
		createTestTable(ctx, t, db, a, "t")
		createTestTable(ctx, t, db, a, "taken")

		// Missing source namespace wins over everything.
		err := db.RenameTable(ctx, catalogdb.RenameTable{
			Source:      catalogdb.TableIdentifier{Namespace: catalogdb.NamespacePath{"no"}, Name: "t"},
			Destination: catalogdb.TableIdentifier{Namespace: a, Name: "x"},
		})
		require.True(t, catalogdb.ErrNamespaceNotFound.Has(err))

		// Then missing destination namespace.
		err = db.RenameTable(ctx, catalogdb.RenameTable{
			Source:      catalogdb.TableIdentifier{Namespace: a, Name: "t"},
			Destination: catalogdb.TableIdentifier{Namespace: catalogdb.NamespacePath{"no"}, Name: "x"},
		})
		require.True(t, catalogdb.ErrNamespaceNotFound.Has(err))

		// Then missing source table.
		err = db.RenameTable(ctx, catalogdb.RenameTable{
			Source:      catalogdb.TableIdentifier{Namespace: a, Name: "missing"},
			Destination: catalogdb.TableIdentifier{Namespace: a, Name: "x"},
		})
		require.True(t, catalogdb.ErrTableNotFound.Has(err))

		// Then occupied destination.
		err = db.RenameTable(ctx, catalogdb.RenameTable{
			Source:      catalogdb.TableIdentifier{Namespace: a, Name: "t"},
			Destination: catalogdb.TableIdentifier{Namespace: a, Name: "taken"},
		})
		require.True(t, catalogdb.ErrTableExists.Has(err))
	})
}

func TestReportMetricsClassification(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"metrics"}
		createTestTable(ctx, t, db, namespace, "t")
		id := catalogdb.TableIdentifier{Namespace: namespace, Name: "t"}

		schemaID := 0
		require.NoError(t, db.ReportMetrics(ctx, id, catalogdb.MetricsReport{
			Filter:   json.RawMessage(`{"type":"eq","term":"amt","value":1}`),
			SchemaID: &schemaID,
			Metrics:  json.RawMessage(`{"result-data-files":{"unit":"count","value":1}}`),
		}))

		sequence := int64(3)
		require.NoError(t, db.ReportMetrics(ctx, id, catalogdb.MetricsReport{
			SequenceNumber: &sequence,
			Operation:      "append",
		}))

		var scans, commits int
		require.NoError(t, db.TestingQueryRow(ctx,
			`SELECT COUNT(*) FROM operation_metrics WHERE report_type = 'scan'`).Scan(&scans))
		require.NoError(t, db.TestingQueryRow(ctx,
			`SELECT COUNT(*) FROM operation_metrics WHERE report_type = 'commit'`).Scan(&commits))
		require.Equal(t, 1, scans)
		require.Equal(t, 1, commits)

		err := db.ReportMetrics(ctx, catalogdb.TableIdentifier{Namespace: namespace, Name: "no"}, catalogdb.MetricsReport{})
		require.True(t, catalogdb.ErrTableNotFound.Has(err))
	})
}

func TestTableVersionETag(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"etag"}
		created := createTestTable(ctx, t, db, namespace, "t")

		version, err := db.GetTableVersion(ctx, catalogdb.TableIdentifier{Namespace: namespace, Name: "t"})
		require.NoError(t, err)
		require.Equal(t,
			catalogdb.ETag(created.Metadata.TableUUID, created.Metadata.LastUpdatedMS),
			version.ETag())
		require.True(t, strings.HasPrefix(version.ETag(), `"`))
		require.True(t, strings.HasSuffix(version.ETag(), `"`))
	})
}
