package server

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mpasite/internal/enhance"
	mlog "github.com/nao1215/mpasite/internal/log"
	"github.com/nao1215/mpasite/internal/route"
	"github.com/nao1215/mpasite/internal/script"
)

// HealthPath is the health check endpoint.
const HealthPath = "/_mpasite/healthz"

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Server serves a site directory. Create one with New or NewFromConfig.
type Server struct {
	site     fs.FS
	routes   *route.Table
	locales  []string
	rewriter *enhance.Rewriter

	scriptPath string
	script     []byte

	allowedOrigins    []string
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	started           time.Time

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithRoutes sets the literal route table. The default is route.DefaultTable.
func WithRoutes(t *route.Table) Option {
	return func(s *Server) {
		if t != nil {
			s.routes = t
		}
	}
}

// WithLocales sets the locale prefixes used to recognize home pages.
func WithLocales(locales []string) Option {
	return func(s *Server) {
		s.locales = locales
	}
}

// WithRewriter enables HTML enhancement. A nil rewriter serves files untouched.
func WithRewriter(rw *enhance.Rewriter) Option {
	return func(s *Server) {
		s.rewriter = rw
	}
}

// WithScript serves body as the client script at path.
func WithScript(path string, body []byte) Option {
	return func(s *Server) {
		s.scriptPath = path
		s.script = body
	}
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithReadHeaderTimeout sets http.Server.ReadHeaderTimeout.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readHeaderTimeout = d
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown in Serve.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger for request and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server for the files in site.
func New(site fs.FS, opts ...Option) *Server {
	s := &Server{
		site:              site,
		routes:            route.DefaultTable(),
		locales:           route.DefaultLocales,
		readHeaderTimeout: defaultReadHeaderTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
		logger:            mlog.Discard(),
		started:           time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.scriptPath != "" && s.script != nil {
		r.Get(s.scriptPath, s.serveScript)
	}

	r.Get("/*", s.serveSite)
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	return r
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		s.logger.Debug("shutting down", "timeout", s.shutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// ListenAndServe listens on addr and calls Serve. ready, if not nil, is
// called with the bound address before the first request is accepted.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr())
	}
	return s.Serve(ctx, ln)
}

func (s *Server) serveScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", script.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeContent(w, r, "", s.started, bytes.NewReader(s.script))
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not Found"))
}
