// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package catalogdbtest provides a harness for tests that need a migrated
// catalog database.
package catalogdbtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/icecat/catalogdb"
)

// DatabaseEnv names the environment variable that points tests at a
// Postgres instance. Without it, tests run against in-memory SQLite.
const DatabaseEnv = "ICECAT_TEST_POSTGRES"

// Run opens a migrated database and calls fn with it. Postgres runs get a
// unique schema per test so concurrent and repeated runs never share rows;
// the schema is dropped afterwards.
func Run(t *testing.T, fn func(ctx context.Context, t *testing.T, db *catalogdb.DB)) {
	t.Helper()

	connstr := os.Getenv(DatabaseEnv)
	schema := ""
	if connstr == "" {
		connstr = "file::memory:"
	} else {
		schema = randomSchemaName(t.Name())
		connstr = connstrWithSchema(connstr, schema)
	}

	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db, err := catalogdb.Open(ctx, log, connstr)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	if schema != "" {
		require.NoError(t, db.TestingExec(ctx, `CREATE SCHEMA IF NOT EXISTS "`+schema+`"`))
		defer func() {
			require.NoError(t, db.TestingExec(ctx, `DROP SCHEMA "`+schema+`" CASCADE`))
		}()
	}

	require.NoError(t, db.MigrateToLatest(ctx))

	fn(ctx, t, db)
}

// randomSchemaName derives a unique, identifier-safe schema name from the
// test name.
func randomSchemaName(testName string) string {
	var suffix [8]byte
	_, _ = rand.Read(suffix[:])

	name := strings.ToLower(testName)
	name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 32 {
		name = name[:32]
	}
	return name + "_" + hex.EncodeToString(suffix[:])
}

// connstrWithSchema appends the search_path option so every connection in
// the pool lands in the test's schema.
func connstrWithSchema(connstr, schema string) string {
	if strings.Contains(connstr, "?") {
		connstr += "&options="
	} else {
		connstr += "?options="
	}
	return connstr + url.QueryEscape("--search_path="+schema)
}
