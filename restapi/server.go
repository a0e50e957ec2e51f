// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/icecat/catalogdb"
)

// Config defines configuration for the catalog HTTP server.
type Config struct {
	Address string
	DevMode bool
}

// Server serves the catalog REST surface.
type Server struct {
	log *zap.Logger

	listener net.Listener
	server   http.Server

	db    *catalogdb.DB
	cache *ResponseCache

	config Config
}

// NewServer returns a new catalog Server.
func NewServer(log *zap.Logger, listener net.Listener, db *catalogdb.DB, config Config) *Server {
	server := &Server{
		log:      log,
		listener: listener,
		db:       db,
		cache:    NewResponseCache(),
		config:   config,
	}

	root := mux.NewRouter()
	v1 := root.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/config", server.getConfig).Methods("GET")

	api := v1.PathPrefix("/{prefix}").Subrouter()
	api.HandleFunc("/namespaces", server.listNamespaces).Methods("GET")
	api.HandleFunc("/namespaces", server.createNamespace).Methods("POST")
	api.HandleFunc("/namespaces/{namespace}", server.getNamespace).Methods("GET")
	api.HandleFunc("/namespaces/{namespace}", server.headNamespace).Methods("HEAD")
	api.HandleFunc("/namespaces/{namespace}", server.dropNamespace).Methods("DELETE")
	api.HandleFunc("/namespaces/{namespace}/properties", server.updateNamespaceProperties).Methods("POST")

	api.HandleFunc("/namespaces/{namespace}/tables", server.listTables).Methods("GET")
	api.HandleFunc("/namespaces/{namespace}/tables", server.createTable).Methods("POST")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}", server.loadTable).Methods("GET")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}", server.headTable).Methods("HEAD")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}", server.updateTable).Methods("POST")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}", server.dropTable).Methods("DELETE")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}/credentials", server.getTableCredentials).Methods("GET")
	api.HandleFunc("/namespaces/{namespace}/tables/{table}/metrics", server.reportMetrics).Methods("POST")

	api.HandleFunc("/tables/rename", server.renameTable).Methods("POST")
	api.HandleFunc("/credentials", server.upsertCredential).Methods("POST")
	api.HandleFunc("/transactions/commit", server.commitTransaction).Methods("POST")

	server.server.Handler = server.rewritePrefix(root)
	server.server.ReadHeaderTimeout = 10 * time.Second
	return server
}

// Run starts the server until the context is canceled.
func (server *Server) Run(ctx context.Context) error {
	if server.listener == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// TestingCache exposes the response cache to tests.
func (server *Server) TestingCache() *ResponseCache { return server.cache }
