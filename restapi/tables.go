// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"storj.io/icecat/catalogdb"
)

func tableParam(r *http.Request) (catalogdb.TableIdentifier, error) {
	id := catalogdb.TableIdentifier{
		Namespace: catalogdb.ParseNamespacePath(mux.Vars(r)["namespace"]),
		Name:      mux.Vars(r)["table"],
	}
	if err := id.Verify(); err != nil {
		return catalogdb.TableIdentifier{}, err
	}
	return id, nil
}

type listTablesResponse struct {
	Identifiers   []catalogdb.TableIdentifier `json:"identifiers"`
	NextPageToken string                      `json:"next-page-token,omitempty"`
}

func (server *Server) listTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	namespace, err := namespaceParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	pageSize, err := pageSizeParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	result, err := server.db.ListTables(ctx, catalogdb.ListTables{
		Namespace: namespace,
		PageToken: r.URL.Query().Get("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	response := listTablesResponse{
		Identifiers:   result.Tables,
		NextPageToken: result.NextPageToken,
	}
	if response.Identifiers == nil {
		response.Identifiers = []catalogdb.TableIdentifier{}
	}
	serveJSON(w, http.StatusOK, response)
}

type createTableRequest struct {
	Name          string                   `json:"name"`
	Location      string                   `json:"location"`
	Schema        *catalogdb.Schema        `json:"schema"`
	PartitionSpec *catalogdb.PartitionSpec `json:"partition-spec"`
	WriteOrder    *catalogdb.SortOrder     `json:"write-order"`
	Properties    map[string]string        `json:"properties"`
	Credentials   *struct {
		Config map[string]string `json:"config"`
	} `json:"credentials"`
}

func (server *Server) createTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	namespace, err := namespaceParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var request createTableRequest
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}

	opts := catalogdb.CreateTable{
		Namespace:     namespace,
		Name:          request.Name,
		Location:      request.Location,
		Schema:        request.Schema,
		PartitionSpec: request.PartitionSpec,
		WriteOrder:    request.WriteOrder,
		Properties:    request.Properties,
	}
	if request.Credentials != nil {
		opts.Credentials = []map[string]string{request.Credentials.Config}
	}

	result, err := server.db.CreateTable(ctx, opts)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	id := catalogdb.TableIdentifier{Namespace: namespace, Name: request.Name}
	etag := catalogdb.ETag(result.Metadata.TableUUID, result.Metadata.LastUpdatedMS)
	server.cache.Put(id.Key(), etag, *result)

	w.Header().Set("ETag", etag)
	serveJSON(w, http.StatusOK, result)
}

func (server *Server) loadTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	filter, err := catalogdb.ParseSnapshotsFilter(r.URL.Query().Get("snapshots"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	if match := r.Header.Get("If-None-Match"); match != "" {
		version, err := server.db.GetTableVersion(ctx, id)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		if match == version.ETag() {
			server.serveNotModified(w, r, id, version.ETag())
			return
		}
	}

	result, err := server.db.LoadTable(ctx, catalogdb.LoadTable{Table: id, Snapshots: filter})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	etag := catalogdb.ETag(result.Metadata.TableUUID, result.Metadata.LastUpdatedMS)
	server.cache.Put(id.Key(), etag, *result)

	w.Header().Set("ETag", etag)
	serveJSON(w, http.StatusOK, result)
}

// serveNotModified handles a conditional GET whose etag still matches. With
// a cached envelope the response is a full 200 carrying fresh credentials;
// without one it degrades to a bodyless 304.
func (server *Server) serveNotModified(w http.ResponseWriter, r *http.Request, id catalogdb.TableIdentifier, etag string) {
	ctx := r.Context()

	cached, ok := server.cache.Get(id.Key(), etag)
	if !ok {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	// Credentials must not go stale while the metadata document is served
	// from cache.
	if fresh, err := server.db.GetTableCredentials(ctx, id); err == nil {
		cached.Config = fresh.Config
		cached.StorageCredentials = fresh.StorageCredentials
	}

	w.Header().Set("ETag", etag)
	serveJSON(w, http.StatusOK, cached)
}

func (server *Server) headTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	exists, err := server.db.TableExists(ctx, id)
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

func (server *Server) updateTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var request catalogdb.CommitTable
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}
	request.Table = id

	result, err := server.db.UpdateTable(ctx, request)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.cache.Invalidate(id.Key())
	w.Header().Set("ETag", catalogdb.ETag(result.Metadata.TableUUID, result.Metadata.LastUpdatedMS))
	serveJSON(w, http.StatusOK, result)
}

func (server *Server) dropTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	err = server.db.DropTable(ctx, catalogdb.DropTable{
		Table: id,
		Purge: r.URL.Query().Get("purge_requested") == "true",
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.cache.Invalidate(id.Key())
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) renameTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var request struct {
		Source      catalogdb.TableIdentifier `json:"source"`
		Destination catalogdb.TableIdentifier `json:"destination"`
	}
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}

	err = server.db.RenameTable(ctx, catalogdb.RenameTable{
		Source:      request.Source,
		Destination: request.Destination,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.cache.Invalidate(request.Source.Key())
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) reportMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := tableParam(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var report catalogdb.MetricsReport
	if err = decodeBody(r, &report); err != nil {
		server.serveError(w, r, err)
		return
	}

	if err = server.db.ReportMetrics(ctx, id, report); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) commitTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var request catalogdb.CommitTransaction
	if err = decodeBody(r, &request); err != nil {
		server.serveError(w, r, err)
		return
	}

	if err = server.db.CommitTransaction(ctx, request); err != nil {
		server.serveError(w, r, err)
		return
	}

	for _, change := range request.TableChanges {
		server.cache.Invalidate(change.Table.Key())
	}
	w.WriteHeader(http.StatusNoContent)
}
