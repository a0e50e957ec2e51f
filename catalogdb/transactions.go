// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storj.io/icecat/private/dbutil/txutil"
	"storj.io/icecat/private/tagsql"
)

// CommitTransaction is a multi-table commit request. Every inner commit must
// carry a table identifier.
type CommitTransaction struct {
	TableChanges []CommitTable `json:"table-changes"`
}

// Verify commit transaction fields.
func (opts CommitTransaction) Verify() error {
	if len(opts.TableChanges) == 0 {
		return ErrInvalidRequest.New("transaction has no table changes")
	}
	for _, change := range opts.TableChanges {
		if err := change.Table.Verify(); err != nil {
			return ErrInvalidRequest.New("table change without identifier: %v", err)
		}
	}
	return nil
}

// CommitTransaction applies several single-table commits atomically. A
// transaction row tracks progress; any inner failure rolls everything back,
// including the row itself.
func (db *DB) CommitTransaction(ctx context.Context, opts CommitTransaction) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Verify(); err != nil {
		return err
	}

	transactionID := uuid.NewString()
	return txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		now := db.nowMillis()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (transaction_id, status, created_at, updated_at)
			VALUES ($1, 'committing', $2, $3)`,
			transactionID, now, now); err != nil {
			return Error.New("unable to record transaction: %w", err)
		}

		for _, change := range opts.TableChanges {
			if _, err := db.commitTable(ctx, tx, change); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions SET status = 'completed', updated_at = $1
			WHERE transaction_id = $2`,
			db.nowMillis(), transactionID); err != nil {
			return Error.New("unable to complete transaction: %w", err)
		}

		db.log.Debug("transaction committed",
			zap.String("transaction_id", transactionID),
			zap.Int("tables", len(opts.TableChanges)))
		return nil
	})
}
