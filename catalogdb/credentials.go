// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/icecat/private/dbutil"
	"storj.io/icecat/private/dbutil/txutil"
	"storj.io/icecat/private/tagsql"
)

// credentialKeyTranslation maps stored credential keys to engine-side
// configuration keys. Adding a credential backend means extending this
// table, not the commit path.
var credentialKeyTranslation = map[string]string{
	"region":            "client.region",
	"access-key-id":     "s3.access-key-id",
	"secret-access-key": "s3.secret-access-key",
	"session-token":     "s3.session-token",
	"endpoint":          "s3.endpoint",
}

// defaultTableConfig is returned when no stored credential matches a table's
// location.
func defaultTableConfig() map[string]string {
	return map[string]string{
		"client.region":               "us-east-1",
		"s3.use-instance-credentials": "true",
	}
}

// resolveCredentials returns credential bundles for a table in precedence
// order: table-scoped rows first, then global rows whose warehouse prefixes
// the location (longest first), then global rows keyed on the root namespace
// label. Outgoing bundles carry the matched warehouse as their prefix so
// engines can select them by longest-prefix match on file URIs.
func resolveCredentials(ctx context.Context, q tagsql.Queryer, tableID int64, location, rootLabel string) (_ []StorageCredential, err error) {
	defer mon.Task()(&ctx)(&err)

	credentials, err := queryCredentials(ctx, q, `
		SELECT warehouse, config FROM storage_credentials
		WHERE table_id = $1
		ORDER BY LENGTH(warehouse) DESC`, tableID)
	if err != nil || len(credentials) > 0 {
		return credentials, err
	}

	credentials, err = queryCredentials(ctx, q, `
		SELECT warehouse, config FROM storage_credentials
		WHERE table_id IS NULL AND SUBSTR($1, 1, LENGTH(warehouse)) = warehouse
		ORDER BY LENGTH(warehouse) DESC`, location)
	if err != nil || len(credentials) > 0 {
		return credentials, err
	}

	if rootLabel == "" {
		return nil, nil
	}
	return queryCredentials(ctx, q, `
		SELECT warehouse, config FROM storage_credentials
		WHERE table_id IS NULL AND prefix = $1
		ORDER BY LENGTH(warehouse) DESC`, rootLabel)
}

func queryCredentials(ctx context.Context, q tagsql.Queryer, query string, arg interface{}) (_ []StorageCredential, err error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, Error.New("unable to query credentials: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var credentials []StorageCredential
	for rows.Next() {
		var warehouse, config string
		if err := rows.Scan(&warehouse, &config); err != nil {
			return nil, Error.Wrap(err)
		}
		bundle, err := decodeJSONMap(config)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, StorageCredential{
			Prefix: warehouse,
			Config: bundle,
		})
	}
	return credentials, Error.Wrap(rows.Err())
}

// tableConfig derives the engine-side config for a table location from the
// best matching global credential, falling back to a conservative default.
func tableConfig(ctx context.Context, q tagsql.Queryer, location string) (_ map[string]string, err error) {
	defer mon.Task()(&ctx)(&err)

	var config string
	err = q.QueryRowContext(ctx, `
		SELECT config FROM storage_credentials
		WHERE table_id IS NULL AND SUBSTR($1, 1, LENGTH(warehouse)) = warehouse
		ORDER BY LENGTH(warehouse) DESC
		LIMIT 1`, location).Scan(&config)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultTableConfig(), nil
		}
		return nil, Error.New("unable to query credential config: %w", err)
	}

	stored, err := decodeJSONMap(config)
	if err != nil {
		return nil, err
	}

	translated := map[string]string{}
	for key, value := range stored {
		if engineKey, ok := credentialKeyTranslation[key]; ok {
			translated[engineKey] = value
		}
	}
	if _, ok := translated["client.region"]; !ok {
		translated["client.region"] = "us-east-1"
	}
	return translated, nil
}

// TableCredentials is the credentials endpoint response: the resolved
// bundles plus the derived engine config.
type TableCredentials struct {
	StorageCredentials []StorageCredential
	Config             map[string]string
}

// GetTableCredentials resolves credentials for a table by identifier.
func (db *DB) GetTableCredentials(ctx context.Context, id TableIdentifier) (_ TableCredentials, err error) {
	defer mon.Task()(&ctx)(&err)

	header, err := getTableHeader(ctx, db.db, id)
	if err != nil {
		return TableCredentials{}, err
	}

	rootLabel := id.Namespace[0]
	credentials, err := resolveCredentials(ctx, db.db, header.ID, header.Location, rootLabel)
	if err != nil {
		return TableCredentials{}, err
	}
	config, err := tableConfig(ctx, db.db, header.Location)
	if err != nil {
		return TableCredentials{}, err
	}

	db.log.Debug("credentials resolved", zapTable(id), zap.Int("count", len(credentials)))
	return TableCredentials{StorageCredentials: credentials, Config: config}, nil
}

// UpsertCredential contains arguments for storing a global credential.
type UpsertCredential struct {
	Prefix    string
	Warehouse string
	Config    map[string]string
	Overwrite bool
}

// Verify upsert credential fields.
func (opts UpsertCredential) Verify() error {
	switch {
	case opts.Prefix == "":
		return ErrInvalidRequest.New("prefix missing")
	case opts.Warehouse == "":
		return ErrInvalidRequest.New("warehouse missing")
	case len(opts.Config) == 0:
		return ErrInvalidRequest.New("config missing")
	}
	return nil
}

// UpsertCredential stores a global credential row for a (prefix, warehouse)
// pair. An existing row conflicts unless overwrite is requested.
func (db *DB) UpsertCredential(ctx context.Context, opts UpsertCredential) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Verify(); err != nil {
		return err
	}

	config, err := encodeJSONMap(opts.Config)
	if err != nil {
		return Error.Wrap(err)
	}

	return txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		now := db.nowMillis()
		if opts.Overwrite {
			result, err := tx.ExecContext(ctx, `
				UPDATE storage_credentials SET config = $1, updated_at = $2
				WHERE prefix = $3 AND warehouse = $4 AND table_id IS NULL`,
				config, now, opts.Prefix, opts.Warehouse)
			if err != nil {
				return Error.New("unable to update credential: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return Error.Wrap(err)
			}
			if affected > 0 {
				db.log.Debug("credential overwritten",
					zap.String("prefix", opts.Prefix), zap.String("warehouse", opts.Warehouse))
				return nil
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO storage_credentials (prefix, warehouse, config, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			opts.Prefix, opts.Warehouse, config, now, now)
		if err != nil {
			if dbutil.IsConstraintViolation(err) {
				return ErrCredentialExists.New("prefix %q warehouse %q", opts.Prefix, opts.Warehouse)
			}
			return Error.New("unable to insert credential: %w", err)
		}

		db.log.Debug("credential stored",
			zap.String("prefix", opts.Prefix), zap.String("warehouse", opts.Warehouse))
		return nil
	})
}
