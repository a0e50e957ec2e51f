// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tagsql implements a tagged wrapper for databases.
//
// It exists so that all database access flows through a single narrow
// interface which always takes a context, making cancellation propagation
// and transaction encapsulation uniform across drivers.
package tagsql

import (
	"context"
	"database/sql"
	"time"
)

// Queryer is the common query interface implemented by both DB and Tx.
type Queryer interface {
	// ExecContext executes a query without returning rows.
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// QueryContext executes a query that returns rows.
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	// QueryRowContext executes a query that is expected to return at most one row.
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is an interface for *sql.DB-like databases.
type DB interface {
	Queryer

	// BeginTx starts a transaction.
	BeginTx(ctx context.Context, txOptions *sql.TxOptions) (Tx, error)

	PingContext(ctx context.Context) error

	SetConnMaxLifetime(d time.Duration)
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)

	Close() error
}

// Wrap turns a *sql.DB into a DB-matching interface.
func Wrap(db *sql.DB) DB {
	return sqlDB{db: db}
}

type sqlDB struct {
	db *sql.DB
}

func (s sqlDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s sqlDB) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s sqlDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s sqlDB) BeginTx(ctx context.Context, txOptions *sql.TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, err
	}
	return sqlTx{tx: tx}, nil
}

func (s sqlDB) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s sqlDB) SetConnMaxLifetime(d time.Duration) { s.db.SetConnMaxLifetime(d) }
func (s sqlDB) SetMaxIdleConns(n int)              { s.db.SetMaxIdleConns(n) }
func (s sqlDB) SetMaxOpenConns(n int)              { s.db.SetMaxOpenConns(n) }

func (s sqlDB) Close() error { return s.db.Close() }

// Rows implements a minimal interface for *sql.Rows.
type Rows interface {
	Close() error
	Err() error
	Next() bool
	Scan(dest ...interface{}) error
}
