// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it is the one place that knows how
// the capabilities, the store and the layers above them fit together.
//
//	config → Passwords ─┐
//	                    ├→ Pipeline → sqlite.DB ─→ ResetTokens
//	                    │                  │
//	         SignedTokens                  ↓
//	                    └──────→ AccountService → AccountHandler → chi routes
//
// The password capability's hooks go into the store's pipeline, so every
// write path hashes passwords. The reset capability gets the store as its
// Patcher, so issuing a token persists exactly two columns.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/entity-auth/internal/auth"
	"github.com/sakif/entity-auth/internal/config"
	"github.com/sakif/entity-auth/internal/entity"
	"github.com/sakif/entity-auth/internal/handler"
	"github.com/sakif/entity-auth/internal/middleware"
	sqliteRepo "github.com/sakif/entity-auth/internal/repository/sqlite"
	"github.com/sakif/entity-auth/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it on shutdown;
// callers that never Start (tests) call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New wires every dependency from cfg and registers the routes.
func New(cfg *config.Config, logger *slog.Logger, notifier service.ResetNotifier) (*Server, error) {
	passwords, err := auth.NewPasswords(auth.PasswordConfig{
		Cost:   cfg.BcryptCost,
		Strict: cfg.StrictPasswords,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring passwords: %w", err)
	}

	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewSignedTokens(auth.TokenConfig{
		SigningKey: key,
		ExpiresIn:  cfg.TokenTTL,
		Issuer:     cfg.JWTIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring signed tokens: %w", err)
	}

	// === CREATE DATABASE ===
	// The pipeline is fixed from here on: the store runs it before every write.
	pipeline := entity.NewPipeline(passwords, tokens)
	db, err := sqliteRepo.New(cfg.DBPath, pipeline)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	resets, err := auth.NewResetTokens(auth.ResetConfig{ExpiresIn: cfg.ResetTTL}, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring reset tokens: %w", err)
	}

	if notifier == nil {
		notifier = service.LogNotifier{Logger: logger}
	}
	accounts := service.NewAccountService(db, passwords, resets, tokens, notifier, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(accounts, tokens)

	logger.Info("auth capabilities ready",
		slog.String("algorithm", tokens.Algorithm()),
		slog.Bool("strictPasswords", cfg.StrictPasswords),
		slog.Any("beforeInsert", pipeline.Names(entity.BeforeInsert)),
		slog.Any("beforeUpdate", pipeline.Names(entity.BeforeUpdate)),
	)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz               → liveness probe
// POST   /api/register          → create an account
// POST   /api/login             → check credentials, set the token cookie
// POST   /api/logout            → delete the token cookie
// POST   /api/password/forgot   → issue a reset token (always 202)
// POST   /api/password/reset    → set a new password with a reset token
// GET    /api/me                → current user            [auth]
// PUT    /api/password          → change password         [auth]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so the logger can include it
// 2. RealIP
// 3. Logger
// 4. Recoverer, innermost, so a panic still gets logged as a 500
func (s *Server) setupRoutes(accounts *service.AccountService, tokens *auth.SignedTokens) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	accountHandler := handler.NewAccountHandler(accounts, s.logger, s.config.SecureCookie)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", accountHandler.HandleRegister)
		r.Post("/login", accountHandler.HandleLogin)
		r.Post("/logout", accountHandler.HandleLogout)
		r.Post("/password/forgot", accountHandler.HandleForgotPassword)
		r.Post("/password/reset", accountHandler.HandleResetPassword)

		// Protected routes: RequireAuth rejects the request with 401 before
		// the handler runs if the token is missing, invalid or expired.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", accountHandler.HandleMe)
			r.Put("/password", accountHandler.HandleChangePassword)
		})
	})
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
