// Package server exposes the store registry over HTTP: a JSON API for
// reading and patching stores, the WebSocket change feed, and endpoints for
// the binding directives.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/reactive/internal/bind"
	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/i18n"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/router"
	"github.com/conneroisu/reactive/internal/websocket"
)

const (
	maxBodyBytes    = 4 << 20
	readHeaderLimit = 10 * time.Second
)

// Deps are the collaborators a Server serves. Stores is required; a nil
// translator or router disables the endpoints that need it.
type Deps struct {
	Stores     *registry.StoreRegistry
	Translator *i18n.Translator
	Router     *router.Router
	Logger     logging.Logger
}

// Server owns the HTTP listener, the WebSocket hub and the handler tree.
//
// Invariants:
//   - stores, hub and mux are never nil after New
//   - httpServer is nil until Start and is guarded by serverMutex
type Server struct {
	config     *config.Config
	stores     *registry.StoreRegistry
	translator *i18n.Translator
	router     *router.Router
	binder     *bind.Binder
	hub        *websocket.Hub
	logger     logging.Logger
	errs       *errors.ErrorHandler

	mux     *http.ServeMux
	handler http.Handler

	httpServer  *http.Server
	serverMutex sync.RWMutex
	isShutdown  bool
}

// New wires a server for cfg. It starts the WebSocket hub, so the server must
// be shut down even if Start is never called.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "server: config cannot be nil")
	}
	if deps.Stores == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "server: stores cannot be nil", nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")

	s := &Server{
		config:     cfg,
		stores:     deps.Stores,
		translator: deps.Translator,
		router:     deps.Router,
		binder:     bind.NewBinder(deps.Stores, deps.Translator, deps.Router, logger),
		hub:        websocket.NewHub(deps.Stores, websocket.AllowedOrigins(cfg.Server.AllowedOrigins), logger),
		logger:     logger,
		errs:       errors.NewErrorHandler(logger),
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	s.handler = s.withMiddleware(s.mux)
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/stores", s.handleStores)
	s.mux.HandleFunc("GET /api/stores/{name}", s.handleStore)
	s.mux.HandleFunc("PUT /api/stores/{name}", s.handleReplaceStore)
	s.mux.HandleFunc("PATCH /api/stores/{name}", s.handlePatchStore)
	s.mux.HandleFunc("POST /api/stores/{name}/set", s.handleApply)

	s.mux.HandleFunc("POST /api/render", s.handleRender)
	s.mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	s.mux.HandleFunc("GET /api/translate/{key}", s.handleTranslate)

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Handler returns the full handler tree including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Address()
}

// Start listens on the configured address and blocks until the server is
// shut down or fails. Cancelling ctx shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		return errors.NewInternalError(errors.ErrCodeInternalError, "server already shut down", nil)
	}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderLimit,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "Shutdown failed")
		}
	})
	defer stop()

	s.logger.Info(ctx, "Server listening", "addr", server.Addr, "stores", s.stores.Count())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeRequestFailed, "server error", err).
			WithContext("addr", server.Addr)
	}
	return nil
}

// Shutdown stops the hub and gracefully closes the listener. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		return nil
	}
	s.isShutdown = true
	server := s.httpServer
	s.serverMutex.Unlock()

	var errs []error
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, errors.NewNetworkError(errors.ErrCodeRequestFailed, "http shutdown", err))
		}
	}
	return errors.CombineErrors(errs...)
}
