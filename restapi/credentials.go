// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"

	"storj.io/icecat/catalogdb"
)

type tableCredentialsResponse struct {
	StorageCredentials []catalogdb.StorageCredential `json:"storage-credentials"`
	Config             map[string]string             `json:"config,omitempty"`
}

func (server *Server) getTableCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	credentials, err := server.db.GetTableCredentials(ctx, id)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	response := tableCredentialsResponse{
		StorageCredentials: credentials.StorageCredentials,
		Config:             credentials.Config,
	}
	if response.StorageCredentials == nil {
		response.StorageCredentials = []catalogdb.StorageCredential{}
	}
	serveJSON(w, http.StatusOK, response)
}

type upsertCredentialRequest struct {
	Prefix    string            `json:"prefix"`
	Warehouse string            `json:"warehouse"`
	Config    map[string]string `json:"config"`
	Overwrite bool              `json:"overwrite"`
}

func (server *Server) upsertCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var request upsertCredentialRequest
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}
	if r.URL.Query().Get("overwrite") == "true" {
		request.Overwrite = true
	}

	err = server.db.UpsertCredential(ctx, catalogdb.UpsertCredential{
		Prefix:    request.Prefix,
		Warehouse: request.Warehouse,
		Config:    request.Config,
		Overwrite: request.Overwrite,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	serveJSON(w, http.StatusCreated, map[string]string{
		"prefix":    request.Prefix,
		"warehouse": request.Warehouse,
	})
}
