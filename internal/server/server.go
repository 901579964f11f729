package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"golang.org/x/time/rate"
)

// ShutdownTimeout bounds how long in-flight requests get to finish on shutdown.
const ShutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// RouterOpts holds the handlers and limits of the listener.
type RouterOpts struct {
	Controller *AuthFlowController
	Runs       RunLister
	RateLimit  float64 // Requests per second per client; zero disables limiting
	RateBurst  int
	Logger     *log.Logger
}

// NewRouter registers every endpoint of the listener behind request logging and per-client rate limiting.
func NewRouter(opts RouterOpts) *BasicRouter {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	router := NewBasicRouter()
	router.Use(RequestLogger(opts.Logger))
	if opts.RateLimit > 0 {
		router.Use(NewRateLimiter(rate.Limit(opts.RateLimit), max(opts.RateBurst, 1)).Middleware())
	}

	router.Handle(http.MethodGet, "/{$}", IndexHandler())
	router.Handle(http.MethodGet, "/status", StatusHandler())
	router.Handler(opts.Controller)
	if opts.Runs != nil {
		router.Handler(NewRunsHandler(opts.Runs, opts.Logger))
	}

	return router
}

// Server runs the listener until its context ends, then drains requests and background backups.
type Server struct {
	http       *http.Server
	controller *AuthFlowController
	logger     *log.Logger
}

// NewServer creates a server for handler on addr. controller may be nil.
func NewServer(addr string, handler http.Handler, controller *AuthFlowController, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Server{
		http:       &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		controller: controller,
		logger:     logger,
	}
}

// ListenAndServe binds the address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
//
// On shutdown it stops accepting requests, waits up to [ShutdownTimeout] for in-flight ones, then waits for
// every running backup to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErrors := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down server", "error", err)
	}

	if s.controller != nil {
		s.logger.Info("waiting for running backups")
		s.controller.Wait()
	}

	return nil
}
