// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/icecat/catalogdb"
)

func newTestServer(t *testing.T) (*Server, *catalogdb.DB) {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db, err := catalogdb.Open(ctx, log.Named("catalogdb"), "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	require.NoError(t, db.MigrateToLatest(ctx))

	return NewServer(log.Named("restapi"), nil, db, Config{}), db
}

func doJSON(t *testing.T, server *Server, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, target, reader)
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, value interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), value))
}

func TestServerCreateThenLoad(t *testing.T) {
	server, _ := newTestServer(t)

	response := doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"acct", "tax"},
	}, nil)
	require.Equal(t, http.StatusOK, response.Code)

	response = doJSON(t, server, "POST", "/v1/p/namespaces/acct%1Ftax/tables", map[string]interface{}{
		"name": "t1",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long", "required": true},
			},
		},
	}, nil)
	require.Equal(t, http.StatusOK, response.Code)
	require.NotEmpty(t, response.Header().Get("ETag"))

	response = doJSON(t, server, "GET", "/v1/p/namespaces/acct%1Ftax/tables/t1", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)
	require.NotEmpty(t, response.Header().Get("ETag"))

	var loaded struct {
		MetadataLocation string                  `json:"metadata-location"`
		Metadata         catalogdb.TableMetadata `json:"metadata"`
	}
	decodeJSON(t, response, &loaded)
	require.NotEmpty(t, loaded.Metadata.TableUUID)
	require.Equal(t, 1, loaded.Metadata.LastColumnID)
	require.Equal(t, 0, loaded.Metadata.CurrentSchemaID)
	require.Equal(t, 0, loaded.Metadata.DefaultSpecID)
	require.Empty(t, loaded.Metadata.Snapshots)
	require.Empty(t, loaded.Metadata.Refs)
	require.Contains(t, loaded.MetadataLocation, "/metadata/current.metadata.json")
}

func TestServerConditionalLoad(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"cond"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/cond/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response := doJSON(t, server, "GET", "/v1/p/namespaces/cond/tables/t", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)
	etag := response.Header().Get("ETag")
	require.NotEmpty(t, etag)

	// Matching etag with a cached envelope: full 200, not a bare 304.
	response = doJSON(t, server, "GET", "/v1/p/namespaces/cond/tables/t", nil, map[string]string{
		"If-None-Match": etag,
	})
	require.Equal(t, http.StatusOK, response.Code)
	var cached struct {
		Metadata catalogdb.TableMetadata `json:"metadata"`
		Config   map[string]string       `json:"config"`
	}
	decodeJSON(t, response, &cached)
	require.NotEmpty(t, cached.Metadata.TableUUID)
	require.NotEmpty(t, cached.Config)

	// Without a cache entry the conditional GET degrades to 304.
	server.cache.Invalidate("cond.t")
	response = doJSON(t, server, "GET", "/v1/p/namespaces/cond/tables/t", nil, map[string]string{
		"If-None-Match": etag,
	})
	require.Equal(t, http.StatusNotModified, response.Code)
	require.Empty(t, response.Body.Bytes())

	// A stale etag is a normal load.
	response = doJSON(t, server, "GET", "/v1/p/namespaces/cond/tables/t", nil, map[string]string{
		"If-None-Match": `"other-etag-0"`,
	})
	require.Equal(t, http.StatusOK, response.Code)
}

func TestServerNamespaceDropRejection(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"n"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/n/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response := doJSON(t, server, "DELETE", "/v1/p/namespaces/n", nil, nil)
	require.Equal(t, http.StatusConflict, response.Code)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, response, &envelope)
	require.Equal(t, "NamespaceNotEmptyException", envelope.Error.Type)
	require.Equal(t, http.StatusConflict, envelope.Error.Code)

	response = doJSON(t, server, "DELETE", "/v1/p/namespaces/n/tables/t", nil, nil)
	require.Equal(t, http.StatusNoContent, response.Code)

	response = doJSON(t, server, "DELETE", "/v1/p/namespaces/n", nil, nil)
	require.Equal(t, http.StatusNoContent, response.Code)
}

func TestServerRenameAcrossNamespaces(t *testing.T) {
	server, _ := newTestServer(t)

	for _, name := range []string{"a", "b"} {
		doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
			"namespace": []string{name},
		}, nil)
	}
	doJSON(t, server, "POST", "/v1/p/namespaces/a/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response := doJSON(t, server, "POST", "/v1/p/tables/rename", map[string]interface{}{
		"source":      map[string]interface{}{"namespace": []string{"a"}, "name": "t"},
		"destination": map[string]interface{}{"namespace": []string{"b"}, "name": "t"},
	}, nil)
	require.Equal(t, http.StatusNoContent, response.Code)

	response = doJSON(t, server, "GET", "/v1/p/namespaces/b/tables/t", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)

	response = doJSON(t, server, "GET", "/v1/p/namespaces/a/tables/t", nil, nil)
	require.Equal(t, http.StatusNotFound, response.Code)
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeJSON(t, response, &envelope)
	require.Equal(t, "NoSuchTableException", envelope.Error.Type)
}

func TestServerPropertyConflict(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"props"},
	}, nil)

	response := doJSON(t, server, "POST", "/v1/p/namespaces/props/properties", map[string]interface{}{
		"removals": []string{"k"},
		"updates":  map[string]string{"k": "v"},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, response.Code)
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeJSON(t, response, &envelope)
	require.Equal(t, "UnprocessableEntityException", envelope.Error.Type)
}

func TestServerCommitConflict(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"occ"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/occ/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	commit := map[string]interface{}{
		"requirements": []map[string]interface{}{
			{"type": "assert-current-schema-id", "current-schema-id": 0},
		},
		"updates": []map[string]interface{}{
			{"action": "add-schema", "schema": map[string]interface{}{
				"fields": []map[string]interface{}{
					{"id": 1, "name": "amt", "type": "long"},
					{"id": 2, "name": "extra", "type": "string"},
				},
			}},
			{"action": "set-current-schema", "schema-id": -1},
		},
	}

	response := doJSON(t, server, "POST", "/v1/p/namespaces/occ/tables/t", commit, nil)
	require.Equal(t, http.StatusOK, response.Code)

	// A stale client repeating the same commit loses.
	response = doJSON(t, server, "POST", "/v1/p/namespaces/occ/tables/t", commit, nil)
	require.Equal(t, http.StatusConflict, response.Code)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeJSON(t, response, &envelope)
	require.Equal(t, "CommitFailedException", envelope.Error.Type)
	require.Contains(t, envelope.Error.Message, "assert-current-schema-id")
}

func TestServerUnknownUpdateAction(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"bad"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/bad/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response := doJSON(t, server, "POST", "/v1/p/namespaces/bad/tables/t", map[string]interface{}{
		"updates": []map[string]interface{}{
			{"action": "defragment"},
		},
	}, nil)
	require.Equal(t, http.StatusBadRequest, response.Code)
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeJSON(t, response, &envelope)
	require.Equal(t, "BadRequestException", envelope.Error.Type)
}

func TestServerHeadEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"head"},
	}, nil)

	response := doJSON(t, server, "HEAD", "/v1/p/namespaces/head", nil, nil)
	require.Equal(t, http.StatusNoContent, response.Code)

	response = doJSON(t, server, "HEAD", "/v1/p/namespaces/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, response.Code)

	response = doJSON(t, server, "HEAD", "/v1/p/namespaces/head/tables/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestServerCredentialEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	response := doJSON(t, server, "POST", "/v1/p/credentials", map[string]interface{}{
		"prefix":    "acct",
		"warehouse": "s3://bucket/",
		"config":    map[string]string{"access-key-id": "AK", "region": "eu-central-1"},
	}, nil)
	require.Equal(t, http.StatusCreated, response.Code)

	// Same pair again conflicts unless overwrite is requested.
	response = doJSON(t, server, "POST", "/v1/p/credentials", map[string]interface{}{
		"prefix":    "acct",
		"warehouse": "s3://bucket/",
		"config":    map[string]string{"access-key-id": "AK2"},
	}, nil)
	require.Equal(t, http.StatusConflict, response.Code)

	response = doJSON(t, server, "POST", "/v1/p/credentials?overwrite=true", map[string]interface{}{
		"prefix":    "acct",
		"warehouse": "s3://bucket/",
		"config":    map[string]string{"access-key-id": "AK2"},
	}, nil)
	require.Equal(t, http.StatusCreated, response.Code)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"acct"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/acct/tables", map[string]interface{}{
		"name":     "t",
		"location": "s3://bucket/t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response = doJSON(t, server, "GET", "/v1/p/namespaces/acct/tables/t/credentials", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)
	var credentials struct {
		StorageCredentials []catalogdb.StorageCredential `json:"storage-credentials"`
		Config             map[string]string             `json:"config"`
	}
	decodeJSON(t, response, &credentials)
	require.Len(t, credentials.StorageCredentials, 1)
	require.Equal(t, "s3://bucket/", credentials.StorageCredentials[0].Prefix)
	require.Equal(t, "AK2", credentials.Config["s3.access-key-id"])
}

func TestServerMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/v1/p/namespaces", map[string]interface{}{
		"namespace": []string{"m"},
	}, nil)
	doJSON(t, server, "POST", "/v1/p/namespaces/m/tables", map[string]interface{}{
		"name": "t",
		"schema": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"id": 1, "name": "amt", "type": "long"},
			},
		},
	}, nil)

	response := doJSON(t, server, "POST", "/v1/p/namespaces/m/tables/t/metrics", map[string]interface{}{
		"report-type": "scan-report",
		"filter":      map[string]interface{}{"type": "true"},
		"schema-id":   0,
		"metrics":     map[string]interface{}{},
	}, nil)
	require.Equal(t, http.StatusNoContent, response.Code)

	response = doJSON(t, server, "POST", "/v1/p/namespaces/m/tables/missing/metrics", map[string]interface{}{}, nil)
	require.Equal(t, http.StatusNotFound, response.Code)
}
