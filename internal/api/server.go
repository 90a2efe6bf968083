// Package api exposes the service over HTTP.
//
// Endpoints:
//
//	POST   /api/chat                              answer a query
//	POST   /api/ingest                            ingest source text
//	POST   /api/ingest/url                        fetch a web page and ingest it
//	GET    /api/sources                           list ingested sources
//	DELETE /api/sources/{source}                  delete a source's chunks
//	DELETE /api/chunks/{id}                       delete one chunk
//	DELETE /api/chunks                            delete chunks by id list
//	GET    /api/channels/{channel}/instructions   read instructions
//	PUT    /api/channels/{channel}/instructions   store instructions
//	PUT    /api/channels/{channel}/active         flip the activation gate
//	GET    /api/channels/{channel}/status         activation + connection state
//	GET    /api/session/events                    session lifecycle stream (SSE)
//	GET    /health                                liveness probe
//	GET    /ready                                 readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - chat.go: answering endpoint
//   - knowledge.go: ingestion and chunk management endpoints
//   - channel.go: channel settings and session status endpoints
//   - events.go: session event stream (SSE)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/knowledge"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/memory"
	"github.com/beaconhq/beacon/internal/settings"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Answerer runs the answering pipeline for one query.
type Answerer interface {
	Answer(ctx context.Context, query string, mem memory.Buffer, channel string) (string, memory.Buffer, error)
}

// Ingestor runs the ingestion pipeline for one source.
type Ingestor interface {
	Ingest(ctx context.Context, source, text string) (knowledge.IngestResult, error)
}

// SessionManager is the session surface the API consumes.
type SessionManager interface {
	Subscribe(ctx context.Context) (<-chan channel.Event, string)
	Status(ctx context.Context) (channel.Status, error)
	State() channel.State
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	chat      *ChatHandler
	knowledge *KnowledgeHandler
	channel   *ChannelHandler
	events    *EventsHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(engine Answerer, ingestor Ingestor, store knowledge.Store, settingsStore settings.Store, manager SessionManager, pinger Pinger, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger.With("component", "api"),
		health:    NewHealthHandler(pinger, logger),
		chat:      NewChatHandler(engine, logger),
		knowledge: NewKnowledgeHandler(ingestor, store, nil, logger),
		channel:   NewChannelHandler(settingsStore, manager, logger),
		events:    NewEventsHandler(manager, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.knowledge.RegisterRoutes(mux)
	s.channel.RegisterRoutes(mux)
	s.events.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
//
// WriteTimeout stays unset because the SSE event stream is long-lived; per
// handler deadlines protect the short endpoints instead.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
