// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"encoding/base64"
)

// EncodePageToken encodes the last-seen sort key as an opaque forward-only
// page token.
func EncodePageToken(lastSeen string) string {
	return base64.StdEncoding.EncodeToString([]byte(lastSeen))
}

// DecodePageToken decodes a page token back into the last-seen sort key. A
// malformed token is an invalid request.
func DecodePageToken(token string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidRequest.New("invalid page token %q", token)
	}
	return string(decoded), nil
}
