// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// rewritePrefix makes the surface prefix-agnostic: clients may address the
// catalog as /{prefix}/v1/... and the handler tree only ever sees
// /v1/{prefix}/... . The config endpoint is special: /{warehouse}/v1/config
// becomes /v1/config?warehouse={warehouse}, keeping any caller-supplied
// warehouse parameter.
func (server *Server) rewritePrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/v1/") || path == "/v1" {
			next.ServeHTTP(w, r)
			return
		}

		prefix, rest, found := strings.Cut(strings.TrimPrefix(path, "/"), "/")
		if !found || prefix == "" || !strings.HasPrefix(rest, "v1/") {
			next.ServeHTTP(w, r)
			return
		}
		rest = strings.TrimPrefix(rest, "v1/")

		if rest == "config" {
			r.URL.Path = "/v1/config"
			query := r.URL.Query()
			if query.Get("warehouse") == "" {
				query.Set("warehouse", prefix)
				r.URL.RawQuery = query.Encode()
			}
		} else {
			r.URL.Path = "/v1/" + prefix + "/" + rest
		}

		server.log.Debug("rewrote request path",
			zap.String("from", path), zap.String("to", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}
