// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package catalogdb implements storing table metadata for the REST catalog.
package catalogdb

import (
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

var (
	// Error is the default error for catalogdb.
	Error = errs.Class("catalogdb")
	// ErrInvalidRequest is used to indicate malformed or invalid requests.
	ErrInvalidRequest = errs.Class("invalid request")
	// ErrUnprocessable is used to indicate requests that are well formed but
	// semantically contradictory.
	ErrUnprocessable = errs.Class("unprocessable request")
	// ErrPrecondition is used to indicate a failed commit requirement.
	ErrPrecondition = errs.Class("commit requirement failed")
	// ErrNamespaceNotFound is used to indicate that a namespace does not exist.
	ErrNamespaceNotFound = errs.Class("namespace not found")
	// ErrNamespaceExists is used to indicate that a namespace already exists.
	ErrNamespaceExists = errs.Class("namespace already exists")
	// ErrNamespaceNotEmpty is used to indicate that a namespace still owns
	// tables or views.
	ErrNamespaceNotEmpty = errs.Class("namespace not empty")
	// ErrTableNotFound is used to indicate that a table does not exist.
	ErrTableNotFound = errs.Class("table not found")
	// ErrTableExists is used to indicate that a table already exists.
	ErrTableExists = errs.Class("table already exists")
	// ErrCredentialExists is used to indicate that a storage credential
	// already exists.
	ErrCredentialExists = errs.Class("credential already exists")
)

// pathSeparator joins namespace labels in their encoded form. The wire form
// percent-encodes it as %1F.
const pathSeparator = "\x1f"

// NamespacePath is an ordered list of labels identifying a namespace.
type NamespacePath []string

// ParseNamespacePath parses a namespace from its URL-segment form. The
// separator is the unit-separator byte, accepted both raw and in its literal
// %1F spelling. A missing separator yields a single-label path.
func ParseNamespacePath(segment string) NamespacePath {
	if segment == "" {
		return nil
	}
	if strings.Contains(segment, "%1F") {
		segment = strings.ReplaceAll(segment, "%1F", pathSeparator)
	}
	return strings.Split(segment, pathSeparator)
}

// Verify namespace path fields.
func (path NamespacePath) Verify() error {
	if len(path) == 0 {
		return ErrInvalidRequest.New("namespace missing")
	}
	for _, label := range path {
		if label == "" {
			return ErrInvalidRequest.New("namespace contains an empty label")
		}
		if strings.Contains(label, pathSeparator) {
			return ErrInvalidRequest.New("namespace label contains a separator byte")
		}
	}
	return nil
}

// Encoded returns the storage form of the path, labels joined by the
// unit separator. Lexicographic order on the encoded form matches
// lexicographic order on the label list.
func (path NamespacePath) Encoded() string {
	return strings.Join(path, pathSeparator)
}

// String returns the path with labels joined by dots, for logs and cache keys.
func (path NamespacePath) String() string {
	return strings.Join(path, ".")
}

// Depth returns the number of labels in the path.
func (path NamespacePath) Depth() int { return len(path) }

// Equal reports whether two paths have the same labels.
func (path NamespacePath) Equal(other NamespacePath) bool {
	if len(path) != len(other) {
		return false
	}
	for i := range path {
		if path[i] != other[i] {
			return false
		}
	}
	return true
}

// namespacePathFromEncoded is the inverse of Encoded.
func namespacePathFromEncoded(encoded string) NamespacePath {
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, pathSeparator)
}

// TableIdentifier identifies a table inside a namespace.
type TableIdentifier struct {
	Namespace NamespacePath `json:"namespace"`
	Name      string        `json:"name"`
}

// Verify table identifier fields.
func (id TableIdentifier) Verify() error {
	if err := id.Namespace.Verify(); err != nil {
		return err
	}
	if id.Name == "" {
		return ErrInvalidRequest.New("table name missing")
	}
	return nil
}

// Key returns the cache key for the identifier, namespace labels and table
// name joined by dots.
func (id TableIdentifier) Key() string {
	return id.Namespace.String() + "." + id.Name
}

// String implements fmt.Stringer.
func (id TableIdentifier) String() string { return id.Key() }

func zapNamespace(path NamespacePath) zap.Field {
	return zap.Stringer("namespace", path)
}

func zapTable(id TableIdentifier) zap.Field {
	return zap.Stringer("table", id)
}

// likeEscape escapes LIKE metacharacters in s so it can be embedded in a
// pattern with ESCAPE '\'.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
