// Package server is the composition root: it builds every dependency from
// config, mounts the routes and runs the HTTP server with graceful
// shutdown.
//
// DEPENDENCY GRAPH:
//
//	config ─► store (sqlite | postgres) ─┬─► SessionService ─► AuthHandler
//	          redis (optional) ─► cache ─┤
//	          GoogleProvider (optional) ─┴─► ExternalAuthService ─► ExternalAuthHandler
//	                                              └─► CalendarService ─► CalendarHandler
//
// Nothing below this package reads the environment or a global logger.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/jiaa-auth/internal/auth"
	"github.com/sakif/jiaa-auth/internal/cache"
	"github.com/sakif/jiaa-auth/internal/calendar"
	"github.com/sakif/jiaa-auth/internal/config"
	"github.com/sakif/jiaa-auth/internal/handler"
	"github.com/sakif/jiaa-auth/internal/middleware"
	"github.com/sakif/jiaa-auth/internal/repository"
	"github.com/sakif/jiaa-auth/internal/repository/postgres"
	sqliteRepo "github.com/sakif/jiaa-auth/internal/repository/sqlite"
	"github.com/sakif/jiaa-auth/internal/service"
	"github.com/sakif/jiaa-auth/internal/telemetry"
)

const (
	serviceName         = "jiaa-auth"
	outboundHTTPTimeout = 15 * time.Second
	cacheKeyPrefix      = "jiaa:external-token"
)

// Server owns the router and every long-lived resource it was built with.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  config.Config
	logger  *slog.Logger
	store   repository.Store
	redis   redis.UniversalClient
	metrics *telemetry.Metrics
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	store      repository.Store
	provider   service.OAuthProvider
	httpClient *http.Client
	redis      redis.UniversalClient
}

// WithStore uses store instead of opening DB_DRIVER. The server takes
// ownership and closes it on shutdown.
func WithStore(store repository.Store) Option {
	return func(o *options) { o.store = store }
}

// WithProvider uses p instead of building the Google provider.
func WithProvider(p service.OAuthProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithHTTPClient sets the client used for Google and Calendar calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRedis uses client for the external token cache instead of REDIS_ADDR.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// New wires the service. On error every resource opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   outboundHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	// === TOKENS ===
	var tokenOpts []auth.TokenOption
	if cfg.Production() {
		tokenOpts = append(tokenOpts, auth.WithStrictSecret())
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if tokens.Padded() {
		logger.Warn("JWT_SECRET is shorter than 32 bytes and was padded; set a longer secret before production")
	}

	// === STORAGE ===
	store := o.store
	if store == nil {
		store, err = OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: telemetry.NewMetrics(),
	}

	// === CACHE ===
	var tokenCache service.TokenCache
	s.redis = o.redis
	if s.redis == nil && cfg.RedisAddr != "" {
		s.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, external token cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			_ = s.redis.Close()
			s.redis = nil
		}
	}
	if s.redis != nil {
		tokenCache = cache.NewRedisTokenCache(s.redis, cacheKeyPrefix)
	}

	// === GOOGLE ===
	provider, providerErr := o.provider, error(nil)
	if provider == nil {
		provider, providerErr = s.googleProvider(httpClient)
	}

	// === SERVICES ===
	passwords := auth.NewPasswordService()
	sessions := service.NewSessionService(store, store, tokens, passwords, cfg.RefreshTokenTTL, s.metrics, logger)
	external := service.NewExternalAuthService(provider, providerErr, store, store, sessions, passwords, tokenCache, s.metrics, logger)
	calendarSvc := service.NewCalendarService(external, calendar.NewClient(cfg.CalendarAPIURL, httpClient), logger)
	quizSvc := service.NewQuizService(store, logger)

	s.setupRoutes(tokens, sessions, external, calendarSvc, quizSvc)
	s.handler = otelhttp.NewHandler(s.router, serviceName)
	return s, nil
}

// googleProvider builds the provider from config. A missing or placeholder
// setting is not fatal: the server runs with Google sign-in disabled and
// the Google endpoints answer with the configuration error.
func (s *Server) googleProvider(httpClient *http.Client) (service.OAuthProvider, error) {
	p, err := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     s.config.GoogleClientID,
		ClientSecret: s.config.GoogleClientSecret,
		RedirectURI:  s.config.GoogleRedirectURI,
		Scopes:       s.config.Scopes(),
	}, httpClient)
	if err != nil {
		s.logger.Warn("Google sign-in disabled", slog.String("reason", err.Error()))
		return nil, err
	}
	return p, nil
}

// OpenStore opens the backend selected by DB_DRIVER and brings its schema
// up to date.
func OpenStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres: %w", err)
		}
		return store, nil
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite: %w", err)
		}
		return db, nil
	}
}

// setupRoutes mounts middleware and routes.
//
// ROUTES:
//
//	GET    /healthz                      store ping
//	GET    /metrics                      Prometheus
//	POST   /auth/signup|signin|refresh|logout
//	GET    /auth/me                      (auth)
//	PUT    /auth/password                (auth)
//	GET    /auth/external/url
//	GET    /auth/external/callback
//	GET    /auth/external/token          (auth)
//	*      /api/calendar/events[/{id}]   (auth)
//	POST   /api/quiz/submit              (auth)
//	GET    /api/quiz/daily[?date=]       (auth)
//
// Authenticate runs on every request and never rejects; RequireAuth on
// the routes marked (auth) does.
func (s *Server) setupRoutes(
	tokens *auth.TokenService,
	sessions *service.SessionService,
	external *service.ExternalAuthService,
	calendarSvc *service.CalendarService,
	quizSvc *service.QuizService,
) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics(s.metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))
	r.Use(auth.Authenticate(tokens, s.store, s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	authHandler := handler.NewAuthHandler(sessions, s.logger)
	externalHandler := handler.NewExternalAuthHandler(external, s.logger)
	calendarHandler := handler.NewCalendarHandler(calendarSvc, s.logger)
	quizHandler := handler.NewQuizHandler(quizSvc, s.logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/signin", authHandler.HandleSignin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/me", authHandler.HandleMe)
			r.Put("/password", authHandler.HandleUpdatePassword)
		})

		r.Route("/external", func(r chi.Router) {
			r.Get("/url", externalHandler.HandleURL)
			r.Get("/callback", externalHandler.HandleCallback)
			r.With(auth.RequireAuth).Get("/token", externalHandler.HandleToken)
		})
	})

	r.Route("/api/calendar", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/events", calendarHandler.HandleList)
		r.Post("/events", calendarHandler.HandleCreate)
		r.Put("/events/{id}", calendarHandler.HandleUpdate)
		r.Delete("/events/{id}", calendarHandler.HandleDelete)
	})

	r.Route("/api/quiz", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Post("/submit", quizHandler.HandleSubmit)
		r.Get("/daily", quizHandler.HandleDaily)
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the fully wrapped HTTP handler. Tests serve it through
// httptest without opening a port.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases the store and the redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then drains
// in-flight requests for up to 30 seconds and closes every resource.
func (s *Server) Start(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("dbDriver", s.config.DBDriver),
			slog.Bool("cache", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
