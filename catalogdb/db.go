// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers pgx as a database/sql driver.
	_ "github.com/mattn/go-sqlite3"    // registers sqlite3 as a database/sql driver.
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/icecat/private/dbutil"
	"storj.io/icecat/private/tagsql"
)

// DB implements the catalog metadata database.
type DB struct {
	log  *zap.Logger
	db   tagsql.DB
	impl dbutil.Implementation

	nowFn func() time.Time
}

// Open opens a connection to the catalog database.
func Open(ctx context.Context, log *zap.Logger, connstr string) (*DB, error) {
	driver, source, impl, err := dbutil.SplitConnStr(connstr)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if impl == dbutil.SQLite {
		source = withSQLiteForeignKeys(source)
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	db := &DB{
		log:   log,
		db:    tagsql.Wrap(sqlDB),
		impl:  impl,
		nowFn: time.Now,
	}

	if impl == dbutil.SQLite {
		// sqlite serializes writers anyway; a single connection keeps
		// in-memory databases alive and avoids SQLITE_BUSY churn.
		db.db.SetMaxOpenConns(1)
		db.db.SetMaxIdleConns(1)
		db.db.SetConnMaxLifetime(0)
	}

	if err := db.db.PingContext(ctx); err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.db.Close())
	}

	return db, nil
}

// Implementation returns the database backend in use.
func (db *DB) Implementation() dbutil.Implementation { return db.impl }

// Close closes the connection to the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// SetNow allows tests to have the database act as if the current time is
// whatever they want.
func (db *DB) SetNow(nowFn func() time.Time) {
	db.nowFn = nowFn
}

func (db *DB) now() time.Time { return db.nowFn() }

func (db *DB) nowMillis() int64 { return db.nowFn().UnixMilli() }

// MigrateToLatest creates the schema and seeds the required rows.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, stmt := range schemaStatements(db.impl) {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return Error.New("schema statement failed: %w", err)
		}
	}

	// The config endpoint relies on a row named "default" always existing.
	_, err = db.db.ExecContext(ctx, `
		INSERT INTO catalog_config (catalog_name, config_json)
		VALUES ('default', '{"overrides":{},"defaults":{}}')
		ON CONFLICT (catalog_name) DO NOTHING`)
	if err != nil {
		return Error.New("unable to seed default config: %w", err)
	}

	db.log.Info("database schema up to date")
	return nil
}

// TestingExec runs an arbitrary statement, for tests that need to poke at
// raw state.
func (db *DB) TestingExec(ctx context.Context, query string, args ...interface{}) error {
	_, err := db.db.ExecContext(ctx, query, args...)
	return Error.Wrap(err)
}

// TestingQueryRow runs an arbitrary single-row query, for tests that need to
// inspect raw state.
func (db *DB) TestingQueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

func withSQLiteForeignKeys(source string) string {
	if strings.Contains(source, "_foreign_keys=") {
		return source
	}
	if strings.Contains(source, "?") {
		return source + "&_foreign_keys=on"
	}
	return source + "?_foreign_keys=on"
}
