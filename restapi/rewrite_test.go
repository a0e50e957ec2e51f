// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewritePrefix(t *testing.T) {
	server, _ := newTestServer(t)

	var gotPath, gotQuery string
	handler := server.rewritePrefix(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))

	serve := func(target string) {
		gotPath, gotQuery = "", ""
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", target, nil))
	}

	// Canonical paths pass through untouched.
	serve("/v1/p/namespaces")
	require.Equal(t, "/v1/p/namespaces", gotPath)

	serve("/v1/config?warehouse=s3://w")
	require.Equal(t, "/v1/config", gotPath)
	require.Equal(t, "warehouse=s3://w", gotQuery)

	// Prefixed paths move the prefix behind the version segment.
	serve("/myprefix/v1/namespaces")
	require.Equal(t, "/v1/myprefix/namespaces", gotPath)

	serve("/myprefix/v1/namespaces/a/tables/t")
	require.Equal(t, "/v1/myprefix/namespaces/a/tables/t", gotPath)

	// The config endpoint turns the leading segment into a warehouse hint.
	serve("/wh1/v1/config")
	require.Equal(t, "/v1/config", gotPath)
	require.Equal(t, "warehouse=wh1", gotQuery)

	// An explicit warehouse parameter wins over the path segment.
	serve("/wh1/v1/config?warehouse=other")
	require.Equal(t, "/v1/config", gotPath)
	require.Equal(t, "warehouse=other", gotQuery)

	// Paths without a version segment stay as they are.
	serve("/healthz")
	require.Equal(t, "/healthz", gotPath)
}

func TestRewritePrefixEndToEnd(t *testing.T) {
	server, _ := newTestServer(t)

	response := doJSON(t, server, "POST", "/client-prefix/v1/namespaces", map[string]interface{}{
		"namespace": []string{"via-prefix"},
	}, nil)
	require.Equal(t, http.StatusOK, response.Code)

	response = doJSON(t, server, "GET", "/v1/client-prefix/namespaces/via-prefix", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)

	response = doJSON(t, server, "GET", "/some-warehouse/v1/config", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)
	var config struct {
		Overrides map[string]string `json:"overrides"`
		Defaults  map[string]string `json:"defaults"`
	}
	decodeJSON(t, response, &config)
	require.NotNil(t, config.Overrides)
	require.NotNil(t, config.Defaults)
}
