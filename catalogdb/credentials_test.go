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

func TestCredentialLongestPrefixWins(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "acct",
			Warehouse: "s3://b/",
			Config:    map[string]string{"access-key-id": "broad"},
		}))
		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "acct",
			Warehouse: "s3://b/tenant/",
			Config:    map[string]string{"access-key-id": "narrow"},
		}))

		namespace := catalogdb.NamespacePath{"acct"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))
		_, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace,
			Name:      "t1",
			Location:  "s3://b/tenant/t1",
			Schema:    testSchema(),
		})
		require.NoError(t, err)

		credentials, err := db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "t1",
		})
		require.NoError(t, err)
		require.NotEmpty(t, credentials.StorageCredentials)
		// Outgoing prefix is the matched warehouse, longest first.
		require.Equal(t, "s3://b/tenant/", credentials.StorageCredentials[0].Prefix)
		require.Equal(t, "narrow", credentials.StorageCredentials[0].Config["access-key-id"])
	})
}

func TestCredentialTableScopedPrecedence(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"scoped"}
		createTestTable(ctx, t, db, namespace, "t")
		id := catalogdb.TableIdentifier{Namespace: namespace, Name: "t"}

		var tableID int64
		require.NoError(t, db.TestingQueryRow(ctx,
			`SELECT id FROM tables WHERE name = 't'`).Scan(&tableID))
		require.NoError(t, db.TestingExec(ctx, `
			INSERT INTO storage_credentials (prefix, warehouse, config, table_id, created_at, updated_at)
			VALUES ('scoped', 's3://own/', '{"access-key-id":"mine"}', $1, 0, 0)`, tableID))

		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "scoped",
			Warehouse: "s3://",
			Config:    map[string]string{"access-key-id": "global"},
		}))

		credentials, err := db.GetTableCredentials(ctx, id)
		require.NoError(t, err)
		require.Len(t, credentials.StorageCredentials, 1)
		require.Equal(t, "mine", credentials.StorageCredentials[0].Config["access-key-id"])
	})
}

func TestCredentialRootLabelFallback(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"hr", "payroll"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))
		_, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace,
			Name:      "t",
			Location:  "gs://elsewhere/t",
			Schema:    testSchema(),
		})
		require.NoError(t, err)

		// No warehouse matches gs://elsewhere, but a credential is filed
		// under the root namespace label.
		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "hr",
			Warehouse: "s3://hr-warehouse/",
			Config:    map[string]string{"access-key-id": "hr-key"},
		}))

		credentials, err := db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "t",
		})
		require.NoError(t, err)
		require.Len(t, credentials.StorageCredentials, 1)
		require.Equal(t, "s3://hr-warehouse/", credentials.StorageCredentials[0].Prefix)
	})
}

func TestCredentialPrefixIsExact(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		// An underscore in a stored warehouse is a literal byte, not a
		// single-character wildcard.
		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "acct",
			Warehouse: "s3://b_cket/",
			Config:    map[string]string{"access-key-id": "underscore"},
		}))

		namespace := catalogdb.NamespacePath{"acct"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))
		_, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace, Name: "t", Location: "s3://backet/t", Schema: testSchema(),
		})
		require.NoError(t, err)

		credentials, err := db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "t",
		})
		require.NoError(t, err)
		// No warehouse prefixes s3://backet, so the derived config is the
		// conservative default. The bundle still arrives through the
		// root-label tier.
		require.NotContains(t, credentials.Config, "s3.access-key-id")
		require.Equal(t, "us-east-1", credentials.Config["client.region"])
		require.Len(t, credentials.StorageCredentials, 1)

		_, err = db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace, Name: "exact", Location: "s3://b_cket/exact", Schema: testSchema(),
		})
		require.NoError(t, err)

		credentials, err = db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "exact",
		})
		require.NoError(t, err)
		require.Len(t, credentials.StorageCredentials, 1)
		require.Equal(t, "underscore", credentials.StorageCredentials[0].Config["access-key-id"])
		require.Equal(t, "underscore", credentials.Config["s3.access-key-id"])
	})
}

func TestCredentialConfigTranslation(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		require.NoError(t, db.UpsertCredential(ctx, catalogdb.UpsertCredential{
			Prefix:    "acct",
			Warehouse: "s3://bucket/",
			Config: map[string]string{
				"region":            "eu-west-1",
				"access-key-id":     "AK",
				"secret-access-key": "SK",
				"endpoint":          "https://s3.example.com",
				"unrelated":         "dropped",
			},
		}))

		namespace := catalogdb.NamespacePath{"acct"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))
		_, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace: namespace, Name: "t", Location: "s3://bucket/t", Schema: testSchema(),
		})
		require.NoError(t, err)

		credentials, err := db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "t",
		})
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			"client.region":        "eu-west-1",
			"s3.access-key-id":     "AK",
			"s3.secret-access-key": "SK",
			"s3.endpoint":          "https://s3.example.com",
		}, credentials.Config)
	})
}

func TestCredentialDefaultConfig(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"bare"}
		createTestTable(ctx, t, db, namespace, "t")

		credentials, err := db.GetTableCredentials(ctx, catalogdb.TableIdentifier{
			Namespace: namespace, Name: "t",
		})
		require.NoError(t, err)
		require.Empty(t, credentials.StorageCredentials)
		require.Equal(t, map[string]string{
			"client.region":               "us-east-1",
			"s3.use-instance-credentials": "true",
		}, credentials.Config)
	})
}

func TestCredentialUpsertConflict(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		opts := catalogdb.UpsertCredential{
			Prefix:    "dev",
			Warehouse: "s3://dev/",
			Config:    map[string]string{"access-key-id": "v1"},
		}
		require.NoError(t, db.UpsertCredential(ctx, opts))

		err := db.UpsertCredential(ctx, opts)
		require.Error(t, err)
		require.True(t, catalogdb.ErrCredentialExists.Has(err))

		opts.Config = map[string]string{"access-key-id": "v2"}
		opts.Overwrite = true
		require.NoError(t, db.UpsertCredential(ctx, opts))

		var config string
		require.NoError(t, db.TestingQueryRow(ctx, `
			SELECT config FROM storage_credentials
			WHERE prefix = 'dev' AND warehouse = 's3://dev/'`).Scan(&config))
		require.Contains(t, config, "v2")
	})
}

func TestCreateTableInlineCredentials(t *testing.T) {
	catalogdbtest.Run(t, func(ctx context.Context, t *testing.T, db *catalogdb.DB) {
		namespace := catalogdb.NamespacePath{"inline"}
		require.NoError(t, db.CreateNamespace(ctx, catalogdb.CreateNamespace{Path: namespace}))

		result, err := db.CreateTable(ctx, catalogdb.CreateTable{
			Namespace:   namespace,
			Name:        "t",
			Location:    "s3://inline-bucket/data/t",
			Schema:      testSchema(),
			Credentials: []map[string]string{{"access-key-id": "inline-key"}},
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.StorageCredentials)

		var warehouse, prefix string
		require.NoError(t, db.TestingQueryRow(ctx, `
			SELECT prefix, warehouse FROM storage_credentials WHERE table_id IS NULL`).
			Scan(&prefix, &warehouse))
		require.Equal(t, "inline", prefix)
		require.Equal(t, "s3://inline-bucket", warehouse)
	})
}
