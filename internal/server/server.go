package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/config"
	"github.com/driveclone/apiserver/internal/auth"
	"github.com/driveclone/apiserver/internal/db"
	"github.com/driveclone/apiserver/internal/handlers"
	"github.com/driveclone/apiserver/internal/logging"
	"github.com/driveclone/apiserver/internal/mq"
	"github.com/driveclone/apiserver/internal/services"
	"github.com/driveclone/apiserver/internal/storage"
	"github.com/driveclone/apiserver/internal/store"
)

const requestTimeout = 60 * time.Second

// Deps are the external collaborators of the HTTP API.
type Deps struct {
	Accounts services.AccountRepository
	Objects  services.ObjectStore
	Events   services.EventPublisher
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     zerolog.Logger
	closers    []io.Closer
}

// New connects the configured backends and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	var closers []io.Closer
	fail := func(err error) (*Server, error) {
		closeAll(closers, logger)
		return nil, err
	}

	var accounts services.AccountRepository
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory credential store; accounts are lost on restart")
		accounts = store.NewMemoryAccountRepository()
	default:
		dbConn, err := db.Open(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, dbConn)
		accounts = store.NewAccountRepository(dbConn)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fail(err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return fail(fmt.Errorf("ensure bucket %q: %w", objects.Bucket(), err))
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, queue)

	handler, err := NewHandler(cfg, Deps{Accounts: accounts, Objects: objects, Events: queue}, logger)
	if err != nil {
		return fail(err)
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		router:  handler,
		logger:  logger,
		closers: closers,
	}, nil
}

// NewHandler builds the router with every API route and middleware.
func NewHandler(cfg config.Config, deps Deps, logger zerolog.Logger) (*chi.Mux, error) {
	codec, err := auth.NewCodec([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, err
	}

	accounts, err := services.NewAccountService(deps.Accounts, codec, services.AccountConfig{
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger)
	if err != nil {
		return nil, err
	}

	files := services.NewFileService(deps.Objects, deps.Events, services.FileConfig{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
		EventChannel: cfg.MQ.UploadChannel,
	}, logger)

	cookie := auth.CookieConfig{
		Name:     cfg.Auth.CookieName,
		Path:     "/",
		Secure:   cfg.IsProduction(),
		SameSite: auth.ParseSameSite(cfg.Auth.CookieSameSite),
	}
	exposeErrors := !cfg.IsProduction()
	gate := auth.NewGate(codec, auth.GateConfig{
		Cookie:         cookie,
		TTL:            cfg.Auth.TokenTTL,
		SlidingRefresh: cfg.Auth.SlidingRefresh,
	}, logger)

	authHandler := handlers.NewAuthHandler(accounts, handlers.AuthHandlerConfig{
		Cookie:       cookie,
		ExposeToken:  cfg.Auth.ExposeToken,
		ExposeErrors: exposeErrors,
	}, logger)
	fileHandler := handlers.NewFileHandler(files, exposeErrors, logger)
	healthHandler := handlers.NewHealthHandler(accounts, cfg.Env)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		recoverer(logger),
		securityHeaders(cfg.IsProduction()),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			ExposedHeaders:   []string{auth.RefreshHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Compress(5),
		middleware.Timeout(requestTimeout),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", healthHandler.Healthcheck)
	router.Route("/api", func(r chi.Router) {
		r.Get("/healthcheck", healthHandler.Healthcheck)
		r.Get("/status", handlers.Status)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window, "Too many requests, please try again later"))

			r.Route("/users", func(r chi.Router) {
				handlers.AuthRouter(r, authHandler, gate)
			})
			r.With(gate.Require).Get("/home", handlers.Home)
			r.Route("/files", func(r chi.Router) {
				handlers.FileRouter(r, fileHandler, gate,
					rateLimit(cfg.Upload.RateLimit, cfg.Upload.RateWindow, "Too many uploads, please try again later"))
			})
		})
	})

	return router, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeAll(s.closers, s.logger)
	return err
}

func closeAll(closers []io.Closer, logger zerolog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn().Err(err).Msg("close backend")
		}
	}
}
