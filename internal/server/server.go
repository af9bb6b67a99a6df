// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
//   - which backend (SQLite or MongoDB) and which collaborators (SMTP or log
//     mailer, Cloudinary or disabled storage, Redis or memory sessions) run
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → stores, redis, mailer, object store, token services
//	            → AccountService, FederatedService, PostService, CommentService
//	            → UserHandler, OAuthHandler, PostHandler, CommentHandler
//
// This is the composition root: all dependencies are wired in New, nowhere
// else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/config"
	"github.com/sakif/thoughts/internal/handler"
	"github.com/sakif/thoughts/internal/middleware"
	"github.com/sakif/thoughts/internal/service"
	"github.com/sakif/thoughts/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database handle and the Redis client. Both are closed
// in Close, which Start calls after the HTTP server has drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	stores *stores
	redis  *redis.Client
}

// handlers groups everything setupRoutes mounts. oauth is nil when Google
// login is not configured.
type handlers struct {
	users    *handler.UserHandler
	oauth    *handler.OAuthHandler
	posts    *handler.PostHandler
	comments *handler.CommentHandler
	access   *auth.TokenService
	limiter  *middleware.RateLimiter
}

// New connects the backends and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		_ = st.close(ctx)
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		stores: st,
		redis:  rdb,
	}

	h, err := s.buildHandlers()
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.setupRoutes(h)
	return s, nil
}

func (s *Server) buildHandlers() (*handlers, error) {
	cfg := s.config

	verification, err := auth.NewTokenService(cfg.VerificationSecret, auth.VerificationTTL)
	if err != nil {
		return nil, fmt.Errorf("verification tokens: %w", err)
	}
	access, err := auth.NewTokenService(cfg.AccessSecret, auth.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("access tokens: %w", err)
	}
	refresh, err := auth.NewTokenService(cfg.RefreshSecret, auth.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}

	store, err := newObjectStore(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	accounts := service.NewAccountService(
		s.stores.users,
		service.Tokens{Verification: verification, Access: access, Refresh: refresh},
		auth.NewPasswordService(),
		newMailer(cfg, s.logger),
		store,
		service.Links{APIBaseURL: cfg.ClientURL + config.APIPrefix, FrontEndURL: cfg.FrontEndURL},
		s.logger,
	)
	posts := service.NewPostService(s.stores.posts, s.stores.comments, s.stores.users, store, s.logger)
	comments := service.NewCommentService(s.stores.comments, s.stores.posts, s.stores.users, s.logger)

	cookies := handler.Cookies{Secure: cfg.CookieSecure}
	maxUpload := int64(cfg.MaxUploadMB) << 20

	h := &handlers{
		users:    handler.NewUserHandler(accounts, cookies, maxUpload, s.logger),
		posts:    handler.NewPostHandler(posts, maxUpload, s.logger),
		comments: handler.NewCommentHandler(comments, s.logger),
		access:   access,
		limiter:  middleware.NewRateLimiter(s.redis, cfg.AuthRateLimit, time.Minute, s.logger),
	}
	if s.redis == nil {
		s.logger.Warn("REDIS_URL not set, rate limiting is disabled")
	}

	if cfg.GoogleEnabled() {
		sessions, err := session.NewManager(newSessionStore(s.redis, s.logger), cfg.SessionSecret, session.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("oauth sessions: %w", err)
		}
		provider := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL())
		federated := service.NewFederatedService(accounts, provider, sessions, s.logger)
		h.oauth = handler.NewOAuthHandler(federated, cookies, s.logger)
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Google login is disabled")
	}
	return h, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and Redis connections.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.stores.close(ctx))
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database and Redis connections
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.stores.kind),
			slog.Bool("redis", s.redis != nil),
			slog.Bool("google", s.config.GoogleEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
