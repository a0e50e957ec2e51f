// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/errs"

	"storj.io/icecat/private/dbutil"
	"storj.io/icecat/private/dbutil/txutil"
	"storj.io/icecat/private/tagsql"
)

// Namespace is a catalog namespace with its stored properties.
type Namespace struct {
	Path       NamespacePath
	Properties map[string]string
}

// ListNamespaces contains arguments for listing namespaces.
type ListNamespaces struct {
	Parent    NamespacePath
	PageToken string
	PageSize  int
}

// ListNamespacesResult is a single page of namespaces.
type ListNamespacesResult struct {
	Namespaces    []NamespacePath
	NextPageToken string
}

// ListNamespaces returns a lexicographically ordered page of namespaces,
// optionally restricted to direct children of a parent.
func (db *DB) ListNamespaces(ctx context.Context, opts ListNamespaces) (result ListNamespacesResult, err error) {
	defer mon.Task()(&ctx)(&err)

	var conds []string
	var args []interface{}
	next := func() string { return "$" + strconv.Itoa(len(args)) }

	if len(opts.Parent) > 0 {
		exists, err := db.NamespaceExists(ctx, opts.Parent)
		if err != nil {
			return ListNamespacesResult{}, err
		}
		if !exists {
			return ListNamespacesResult{}, ErrNamespaceNotFound.New("%s", opts.Parent)
		}

		args = append(args, likeEscape(opts.Parent.Encoded())+pathSeparator+"%")
		conds = append(conds, `levels LIKE `+next()+` ESCAPE '\'`)
		args = append(args, opts.Parent.Depth()+1)
		conds = append(conds, "depth = "+next())
	}

	if opts.PageToken != "" {
		lastSeen, err := DecodePageToken(opts.PageToken)
		if err != nil {
			return ListNamespacesResult{}, err
		}
		args = append(args, lastSeen)
		conds = append(conds, "levels > "+next())
	}

	query := "SELECT levels FROM namespaces"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY levels"
	if opts.PageSize > 0 {
		args = append(args, opts.PageSize+1)
		query += " LIMIT " + next()
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListNamespacesResult{}, Error.New("unable to list namespaces: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var levels []string
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return ListNamespacesResult{}, Error.Wrap(err)
		}
		levels = append(levels, encoded)
	}
	if err := rows.Err(); err != nil {
		return ListNamespacesResult{}, Error.Wrap(err)
	}

	if opts.PageSize > 0 && len(levels) > opts.PageSize {
		levels = levels[:opts.PageSize]
		result.NextPageToken = EncodePageToken(levels[len(levels)-1])
	}
	for _, encoded := range levels {
		result.Namespaces = append(result.Namespaces, namespacePathFromEncoded(encoded))
	}
	return result, nil
}

// CreateNamespace contains arguments for creating a namespace.
type CreateNamespace struct {
	Path       NamespacePath
	Properties map[string]string
}

// CreateNamespace registers a new namespace.
func (db *DB) CreateNamespace(ctx context.Context, opts CreateNamespace) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Path.Verify(); err != nil {
		return err
	}

	properties, err := encodeJSONMap(opts.Properties)
	if err != nil {
		return Error.Wrap(err)
	}

	now := db.nowMillis()
	_, err = db.db.ExecContext(ctx, `
		INSERT INTO namespaces (levels, depth, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		opts.Path.Encoded(), opts.Path.Depth(), properties, now, now)
	if err != nil {
		if dbutil.IsConstraintViolation(err) {
			return ErrNamespaceExists.New("%s", opts.Path)
		}
		return Error.New("unable to create namespace: %w", err)
	}

	db.log.Debug("namespace created", zapNamespace(opts.Path))
	return nil
}

// GetNamespace returns a namespace with its properties.
func (db *DB) GetNamespace(ctx context.Context, path NamespacePath) (_ Namespace, err error) {
	defer mon.Task()(&ctx)(&err)

	var properties string
	err = db.db.QueryRowContext(ctx, `
		SELECT properties FROM namespaces WHERE levels = $1`,
		path.Encoded()).Scan(&properties)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Namespace{}, ErrNamespaceNotFound.New("%s", path)
		}
		return Namespace{}, Error.New("unable to query namespace: %w", err)
	}

	props, err := decodeJSONMap(properties)
	if err != nil {
		return Namespace{}, Error.Wrap(err)
	}
	return Namespace{Path: path, Properties: props}, nil
}

// NamespaceExists checks whether a namespace exists.
func (db *DB) NamespaceExists(ctx context.Context, path NamespacePath) (exists bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM namespaces WHERE levels = $1)`,
		path.Encoded()).Scan(&exists)
	if err != nil {
		return false, Error.New("unable to check namespace existence: %w", err)
	}
	return exists, nil
}

// DropNamespace deletes a namespace. The namespace must own no tables and no
// views.
func (db *DB) DropNamespace(ctx context.Context, path NamespacePath) (err error) {
	defer mon.Task()(&ctx)(&err)

	return txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		var namespaceID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM namespaces WHERE levels = $1`,
			path.Encoded()).Scan(&namespaceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNamespaceNotFound.New("%s", path)
			}
			return Error.New("unable to query namespace: %w", err)
		}

		var hasChildren bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM tables WHERE namespace_id = $1)
				OR EXISTS (SELECT 1 FROM views WHERE namespace_id = $2)`,
			namespaceID, namespaceID).Scan(&hasChildren)
		if err != nil {
			return Error.New("unable to check namespace emptiness: %w", err)
		}
		if hasChildren {
			return ErrNamespaceNotEmpty.New("%s", path)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE id = $1`, namespaceID); err != nil {
			return Error.New("unable to drop namespace: %w", err)
		}

		db.log.Debug("namespace dropped", zapNamespace(path))
		return nil
	})
}

// UpdateNamespaceProperties contains arguments for a property update.
type UpdateNamespaceProperties struct {
	Path     NamespacePath
	Removals []string
	Updates  map[string]string
}

// UpdateNamespacePropertiesResult reports the outcome of a property update.
type UpdateNamespacePropertiesResult struct {
	Updated []string
	Removed []string
	Missing []string
}

// UpdateNamespaceProperties applies removals then updates to the namespace
// property map. A key appearing in both sets is rejected.
func (db *DB) UpdateNamespaceProperties(ctx context.Context, opts UpdateNamespaceProperties) (result UpdateNamespacePropertiesResult, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, key := range opts.Removals {
		if _, ok := opts.Updates[key]; ok {
			return UpdateNamespacePropertiesResult{}, ErrUnprocessable.New("key %q in both removals and updates", key)
		}
	}

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		result = UpdateNamespacePropertiesResult{}

		var namespaceID int64
		var stored string
		err := tx.QueryRowContext(ctx, `
			SELECT id, properties FROM namespaces WHERE levels = $1`,
			opts.Path.Encoded()).Scan(&namespaceID, &stored)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNamespaceNotFound.New("%s", opts.Path)
			}
			return Error.New("unable to query namespace: %w", err)
		}

		properties, err := decodeJSONMap(stored)
		if err != nil {
			return Error.Wrap(err)
		}

		for _, key := range opts.Removals {
			if _, ok := properties[key]; ok {
				delete(properties, key)
				result.Removed = append(result.Removed, key)
			} else {
				result.Missing = append(result.Missing, key)
			}
		}
		for key, value := range opts.Updates {
			properties[key] = value
			result.Updated = append(result.Updated, key)
		}
		sort.Strings(result.Updated)

		encoded, err := encodeJSONMap(properties)
		if err != nil {
			return Error.Wrap(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE namespaces SET properties = $1, updated_at = $2 WHERE id = $3`,
			encoded, db.nowMillis(), namespaceID)
		if err != nil {
			return Error.New("unable to update namespace properties: %w", err)
		}
		return nil
	})
	if err != nil {
		return UpdateNamespacePropertiesResult{}, err
	}
	return result, nil
}

// encodeJSONMap encodes a string map as JSON, normalizing nil to an empty
// object.
func encodeJSONMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSONMap decodes a JSON object of strings. Double-encoded values
// (a JSON string containing an object) are accepted as well.
func decodeJSONMap(stored string) (map[string]string, error) {
	if stored == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(stored), &m); err == nil {
		if m == nil {
			m = map[string]string{}
		}
		return m, nil
	}
	var nested string
	if err := json.Unmarshal([]byte(stored), &nested); err != nil {
		return nil, Error.New("malformed json map: %q", stored)
	}
	return decodeJSONMap(nested)
}
