package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/libris-app/libris/internal/api"
	"github.com/libris-app/libris/internal/app"
	"github.com/libris-app/libris/internal/audit"
	"github.com/libris-app/libris/internal/auth"
	"github.com/libris-app/libris/internal/library/authors"
	"github.com/libris-app/libris/internal/library/books"
	"github.com/libris-app/libris/internal/observability"
	"github.com/libris-app/libris/internal/platform/cache"
	"github.com/libris-app/libris/internal/platform/db"
	"github.com/libris-app/libris/internal/rbac"
	"github.com/libris-app/libris/internal/roles"
	"github.com/libris-app/libris/internal/shared"
	"github.com/libris-app/libris/internal/users"
	"github.com/libris-app/libris/internal/view"
	"github.com/libris-app/libris/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.Deployment.SessionCookieName, cfg.SessionSecret, cfg.Deployment.SessionTTL, cfg.Deployment.SecureCookies)
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	actors := auth.NewResolver(authRepo)
	loginLimiter := app.LoginRateLimiter(cfg.Deployment)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, loginLimiter, auditLogger)

	rbacStore := rbac.NewPGStore(dbpool)
	rbacService := rbac.NewService(rbacStore, logger)
	gate := rbac.NewGate(rbacService, logger, metrics)

	// The catalog and default roles converge at boot so a fresh
	// database serves a working permission matrix immediately.
	if err := rbacService.EnsureCatalog(ctx); err != nil {
		logger.Error("ensure permission catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if err := rbacService.EnsureRoles(ctx); err != nil {
		logger.Error("ensure default roles", slog.Any("error", err))
		os.Exit(1)
	}

	authorRepo := authors.NewRepository(dbpool)
	authorService := authors.NewService(authorRepo, auditLogger)

	bookRepo := books.NewRepository(dbpool)
	bookService := books.NewService(bookRepo, auditLogger)
	booksHandler := books.NewHandler(logger, bookService, authorService, gate, actors, templates, csrfManager)
	authorsHandler := authors.NewHandler(logger, authorService, gate, actors, templates, csrfManager)

	userRepo := users.NewRepository(dbpool)
	usersHandler := users.NewHandler(logger, userRepo, rbacService, actors, templates, csrfManager, auditLogger)
	rolesHandler := roles.NewHandler(logger, rbacService, actors, templates, csrfManager, auditLogger)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, logger)
	auditHandler := audit.NewHandler(logger, auditService, actors, templates, csrfManager)

	apiHandler := api.NewHandler(logger, bookService, gate, rbacService, actors)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		BooksHandler:   booksHandler,
		AuthorsHandler: authorsHandler,
		UsersHandler:   usersHandler,
		RolesHandler:   rolesHandler,
		AuditHandler:   auditHandler,
		APIHandler:     apiHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
