// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package restapi implements the catalog's HTTP surface.
package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/icecat/catalogdb"
)

var mon = monkit.Package()

// Error is the default error for the restapi package.
var Error = errs.Class("restapi")

// errorBody is the wire form of every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Stack   string `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// classify maps catalogdb error classes to HTTP status codes and
// Iceberg-style exception type tags.
func classify(err error) (status int, typeTag string) {
	switch {
	case catalogdb.ErrNamespaceNotFound.Has(err):
		return http.StatusNotFound, "NoSuchNamespaceException"
	case catalogdb.ErrTableNotFound.Has(err):
		return http.StatusNotFound, "NoSuchTableException"
	case catalogdb.ErrNamespaceExists.Has(err),
		catalogdb.ErrTableExists.Has(err),
		catalogdb.ErrCredentialExists.Has(err):
		return http.StatusConflict, "AlreadyExistsException"
	case catalogdb.ErrNamespaceNotEmpty.Has(err):
		return http.StatusConflict, "NamespaceNotEmptyException"
	case catalogdb.ErrPrecondition.Has(err):
		return http.StatusConflict, "CommitFailedException"
	case catalogdb.ErrUnprocessable.Has(err):
		return http.StatusUnprocessableEntity, "UnprocessableEntityException"
	case catalogdb.ErrInvalidRequest.Has(err):
		return http.StatusBadRequest, "BadRequestException"
	default:
		return http.StatusInternalServerError, "InternalServerError"
	}
}

// serveError writes the JSON error envelope for err. Internal errors are
// logged with their cause; the body only carries a summary unless dev mode
// includes the stack.
func (server *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	status, typeTag := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		server.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = fmt.Sprintf("internal server error: %v", err)
	} else {
		server.log.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	body := errorBody{Message: message, Type: typeTag, Code: status}
	if server.config.DevMode {
		stack := make([]byte, 4096)
		body.Stack = string(stack[:runtime.Stack(stack, false)])
	}
	serveJSON(w, status, errorEnvelope{Error: body})
}

// serveJSON writes a JSON response with the given status.
func serveJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeBody parses a JSON request body into value.
func decodeBody(r *http.Request, value interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(value); err != nil {
		return catalogdb.ErrInvalidRequest.New("malformed request body: %v", err)
	}
	return nil
}
