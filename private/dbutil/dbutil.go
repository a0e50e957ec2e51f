// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package dbutil contains helpers for working with the supported sql
// databases.
package dbutil

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"
)

// Error is the default error class for dbutil.
var Error = errs.Class("dbutil")

// Implementation identifies the database backend in use.
type Implementation int

const (
	// Unknown is an unsupported backend.
	Unknown Implementation = iota
	// Postgres is a PostgreSQL backend accessed through pgx.
	Postgres
	// SQLite is a SQLite3 backend.
	SQLite
)

// String returns the name of the implementation.
func (impl Implementation) String() string {
	switch impl {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite3"
	default:
		return "unknown"
	}
}

// SplitConnStr returns the driver name, the driver-specific data source and
// the implementation for a connection string.
func SplitConnStr(connstr string) (driver string, source string, impl Implementation, err error) {
	switch {
	case strings.HasPrefix(connstr, "postgres://"), strings.HasPrefix(connstr, "postgresql://"):
		return "pgx", connstr, Postgres, nil
	case strings.HasPrefix(connstr, "sqlite3://"):
		return "sqlite3", connstr[len("sqlite3://"):], SQLite, nil
	case strings.HasPrefix(connstr, "file:"):
		return "sqlite3", connstr, SQLite, nil
	default:
		return "", "", Unknown, Error.New("unsupported connection url: %q", connstr)
	}
}

// IsConstraintViolation returns whether the error is a unique or foreign key
// constraint violation on any supported backend.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		// 23xxx is the integrity constraint violation class.
		return strings.HasPrefix(pgerr.Code, "23")
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	return false
}
