// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"storj.io/icecat/catalogdb"
)

func pageSizeParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page_size")
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return 0, catalogdb.ErrInvalidRequest.New("invalid page_size %q", raw)
	}
	return size, nil
}

func namespaceParam(r *http.Request) (catalogdb.NamespacePath, error) {
	path := catalogdb.ParseNamespacePath(mux.Vars(r)["namespace"])
	if err := path.Verify(); err != nil {
		return nil, err
	}
	return path, nil
}

type listNamespacesResponse struct {
	Namespaces    []catalogdb.NamespacePath `json:"namespaces"`
	NextPageToken string                    `json:"next-page-token,omitempty"`
}

func (server *Server) listNamespaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	pageSize, err := pageSizeParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	result, err := server.db.ListNamespaces(ctx, catalogdb.ListNamespaces{
		Parent:    catalogdb.ParseNamespacePath(r.URL.Query().Get("parent")),
		PageToken: r.URL.Query().Get("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	response := listNamespacesResponse{
		Namespaces:    result.Namespaces,
		NextPageToken: result.NextPageToken,
	}
	if response.Namespaces == nil {
		response.Namespaces = []catalogdb.NamespacePath{}
	}
	serveJSON(w, http.StatusOK, response)
}

type namespaceResponse struct {
	Namespace  catalogdb.NamespacePath `json:"namespace"`
	Properties map[string]string       `json:"properties"`
}

func (server *Server) createNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var request struct {
		Namespace  catalogdb.NamespacePath `json:"namespace"`
		Properties map[string]string       `json:"properties"`
	}
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}

	err = server.db.CreateNamespace(ctx, catalogdb.CreateNamespace{
		Path:       request.Namespace,
		Properties: request.Properties,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	if request.Properties == nil {
		request.Properties = map[string]string{}
	}
	serveJSON(w, http.StatusOK, namespaceResponse{
		Namespace:  request.Namespace,
		Properties: request.Properties,
	})
}

func (server *Server) getNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	path, err := namespaceParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	namespace, err := server.db.GetNamespace(ctx, path)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, namespaceResponse{
		Namespace:  namespace.Path,
		Properties: namespace.Properties,
	})
}

func (server *Server) headNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	path, err := namespaceParam(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	exists, err := server.db.NamespaceExists(ctx, path)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) dropNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	path, err := namespaceParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	if err = server.db.DropNamespace(ctx, path); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) updateNamespaceProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	path, err := namespaceParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var request struct {
		Removals []string          `json:"removals"`
		Updates  map[string]string `json:"updates"`
	}
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}

	result, err := server.db.UpdateNamespaceProperties(ctx, catalogdb.UpdateNamespaceProperties{
		Path:     path,
		Removals: request.Removals,
		Updates:  request.Updates,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	response := struct {
		Updated []string `json:"updated"`
		Removed []string `json:"removed"`
		Missing []string `json:"missing,omitempty"`
	}{
		Updated: result.Updated,
		Removed: result.Removed,
		Missing: result.Missing,
	}
	if response.Updated == nil {
		response.Updated = []string{}
	}
	if response.Removed == nil {
		response.Removed = []string{}
	}
	serveJSON(w, http.StatusOK, response)
}
