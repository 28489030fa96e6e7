package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/namelens/promptc/internal/errors"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/server/handlers"
	servermw "github.com/namelens/promptc/internal/server/middleware"
)

// Server is the promptc HTTP API.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	prompts *handlers.PromptHandlers
	host    string
	port    int

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	maxBodyBytes int64
	registry     registry.Registry
	adminToken   string
}

// Option customizes a Server.
type Option func(*Server)

// WithRegistry serves the /v1/prompts routes from reg.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithMaxBodyBytes caps request bodies on the /v1 API.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithTimeouts sets the http.Server timeouts. Zero values keep the defaults.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// WithAdminToken enables POST /admin/signal behind bearer auth.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// New builds the router. Middleware order is RequestID, Metrics, Recovery.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s.router = r
	s.prompts = handlers.NewPromptHandlers(s.registry, s.maxBodyBytes)

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

// Start listens on host:port and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	observability.Logger().Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", ln.Addr().String()))

	return s.server.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	observability.Logger().Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, fmt.Sprint(s.port))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.port
}
