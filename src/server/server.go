package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"webhelp-server/src/config"
	"webhelp-server/src/db"
	"webhelp-server/src/license"
	"webhelp-server/src/session"
)

// memoryCleanupInterval is how often expired in-memory sessions are swept.
const memoryCleanupInterval = 10 * time.Minute

// appContext is what handlers and middleware need from the server.
type appContext struct {
	logger   zerolog.Logger
	config   config.Config
	licenses license.Verifier
	sessions sessions.Store
	metrics  *gateMetrics
}

// appHandler adapts handlers that report a status and an error.
type appHandler struct {
	ctx appContext
	h   func(appContext, http.ResponseWriter, *http.Request) (int, error)
}

func (ah appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, err := ah.h(ah.ctx, w, r)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
		http.Error(w, http.StatusText(status), status)
	}
}

// Server is a license-gated help file server.
type Server struct {
	config   config.Config
	logger   zerolog.Logger
	licenses *license.Store
	sessions sessions.Store
	registry *prometheus.Registry
	metrics  *gateMetrics
	router   *mux.Router
	db       *pg.DB
}

// Option customizes a Server built by New.
type Option func(*Server)

// WithSessionStore makes the server use store instead of building one from
// the configuration.
func WithSessionStore(store sessions.Store) Option {
	return func(s *Server) {
		s.sessions = store
	}
}

// New loads the license file and prepares the session store and routes. It
// does not bind any listener, so a missing license file fails here.
func New(cfg config.Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	licenses, err := license.Load(cfg.LicenseFile)
	if err != nil {
		return nil, err
	}
	logger.Info().Msgf("loaded %d license keys from %s", licenses.Len(), cfg.LicenseFile)

	st, err := os.Stat(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open static directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("static directory %s is not a directory", cfg.StaticDir)
	}

	if _, under := relativeTo(cfg.StaticDir, cfg.LicenseFile); under {
		logger.Warn().Msgf("license file %s is inside the static directory, it will not be served", cfg.LicenseFile)
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		licenses: licenses,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sessions == nil {
		if s.sessions, err = s.newSessionStore(context.Background()); err != nil {
			return nil, err
		}
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = newGateMetrics(s.registry)
	s.router = s.routes()

	return s, nil
}

func (s *Server) newSessionStore(ctx context.Context) (sessions.Store, error) {
	keyPairs := s.config.SessionKeyPairs()
	if len(keyPairs) == 0 {
		s.logger.Warn().Msg("WEBHELP_SESSION_SECRET not set, using a random key. Sessions will not survive a restart")
		keyPairs = [][]byte{securecookie.GenerateRandomKey(config.MinSessionSecretLen), nil}
	}

	var backend session.Backend
	switch s.config.SessionStore {
	case config.SessionStorePostgres:
		conn, err := db.Init(s.config.DB, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session database: %w", err)
		}

		pgBackend := session.NewPGBackend(conn, s.config.SessionMaxAge, keyPairs...)
		if err := pgBackend.CreateSchema(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create sessions table: %w", err)
		}
		if n, err := pgBackend.DeleteExpired(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete expired sessions")
		} else {
			s.logger.Debug().Msgf("deleted %d expired sessions", n)
		}

		s.db = conn
		backend = pgBackend
	default:
		backend = session.NewMemoryBackend(s.config.SessionMaxAge, memoryCleanupInterval)
	}

	s.logger.Info().Msgf("using %s session store", s.config.SessionStore)

	return session.NewStore(backend, sessions.Options{
		Path:     "/",
		MaxAge:   int(s.config.SessionMaxAge.Seconds()),
		Secure:   s.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, keyPairs...), nil
}

func (s *Server) routes() *mux.Router {
	ctx := appContext{
		logger:   s.logger,
		config:   s.config,
		licenses: s.licenses,
		sessions: s.sessions,
		metrics:  s.metrics,
	}

	// Paths reach the gate as sent; http.FileServer cleans them afterwards.
	r := mux.NewRouter().SkipClean(true)

	r.Handle("/healthz", appHandler{ctx, handleHealth}).Methods(http.MethodGet, http.MethodHead)
	if s.config.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Everything else is a help file behind the license gate. Methods are
	// checked by the static handler so that the gate answers first.
	helpR := r.PathPrefix("/").Subrouter()
	helpR.Use(licenseGate(ctx))
	helpR.PathPrefix("/").Handler(newStaticHandler(s.config.StaticDir, s.config.LicenseFile))

	return r
}

// Handler returns the router wrapped with request logging.
func (s *Server) Handler() http.Handler {
	h := hlog.AccessHandler(accessLog)(s.router)
	h = hlog.RemoteAddrHandler("remote")(h)
	return hlog.NewHandler(s.logger)(h)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msgf("Terma WebHelp server listening on %s serving %s", ln.Addr(), s.config.StaticDir)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutdown signal received, gracefully stopping web server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	s.logger.Info().Msg("web server stopped")
	return nil
}

// Close releases the session database connection, if any.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
