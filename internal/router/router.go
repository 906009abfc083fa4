// Package router maps a parsed request to one of the fixed routes.
package router

import (
	"log/slog"
	"net/http"

	"httpd/internal/filestore"
	"httpd/internal/request"
	"httpd/internal/response"
)

// HandlerFunc produces the response for one request.
type HandlerFunc func(*request.Request) *response.Response

// Router dispatches on the first path segment. It holds no per-request state.
type Router struct {
	routes map[string]HandlerFunc
	store  *filestore.Store
	logger *slog.Logger
}

// New creates a router whose file routes are served from store.
func New(store *filestore.Store, logger *slog.Logger) *Router {
	r := &Router{
		routes: make(map[string]HandlerFunc),
		store:  store,
		logger: logger,
	}
	r.registerRoutes()
	return r
}

// registerRoutes registers the fixed route table
func (r *Router) registerRoutes() {
	r.routes["/"] = r.handleRoot
	r.routes["/user-agent"] = r.handleUserAgent

	// Subpath carries the payload: /echo/:text, GET|POST /files/:name
	r.routes["/echo"] = r.handleEcho
	r.routes["/files"] = r.handleFiles
}

// Dispatch returns the response for req. Unknown paths yield 404.
func (r *Router) Dispatch(req *request.Request) *response.Response {
	handler, ok := r.routes[req.Path]
	if !ok {
		return response.Empty(req, http.StatusNotFound)
	}
	return handler(req)
}

func (r *Router) handleRoot(req *request.Request) *response.Response {
	return response.Empty(req, http.StatusOK)
}

func (r *Router) handleEcho(req *request.Request) *response.Response {
	return response.Text(req, http.StatusOK, req.Subpath)
}

func (r *Router) handleUserAgent(req *request.Request) *response.Response {
	ua, _ := req.Header(request.HeaderUserAgent)
	return response.Text(req, http.StatusOK, ua)
}

func (r *Router) handleFiles(req *request.Request) *response.Response {
	switch req.Method {
	case request.MethodGet:
		data, err := r.store.Read(req.Subpath)
		if err != nil {
			r.logger.Debug("File read failed", "name", req.Subpath, "error", err)
			return response.Error(req, err)
		}
		return response.Binary(req, http.StatusOK, data, response.ContentTypeOctetStream)

	case request.MethodPost:
		if err := r.store.Write(req.Subpath, req.Body); err != nil {
			r.logger.Warn("File write failed", "name", req.Subpath, "error", err)
			return response.Error(req, err)
		}
		r.logger.Debug("File written", "name", req.Subpath, "bytes", len(req.Body))
		return response.Empty(req, http.StatusCreated)

	default:
		return response.Empty(req, http.StatusNotFound)
	}
}
