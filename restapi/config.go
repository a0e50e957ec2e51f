// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"
)

func (server *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	config, err := server.db.GetCatalogConfig(ctx, r.URL.Query().Get("warehouse"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, config)
}
