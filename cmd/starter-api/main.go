package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/internal/database"
	"github.com/dimitrije/starter-api/internal/handlers"
	"github.com/dimitrije/starter-api/internal/logger"
	authmw "github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/internal/sse"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	storeTokens := services.NewStoreTokenService(cfg.StoreJWTSecret, cfg.StoreTokenExpiry)
	accountService := services.NewAccountService(db, services.NewPasswordService())
	tokenService := services.NewTokenService(db)
	recordService := services.NewRecordService(db)
	sessionService := services.NewSessionService(accountService, recordService, session.PlanCatalog(cfg.PlanPrices))
	emailService := services.NewEmailService(cfg.SMTP)
	if !emailService.IsConfigured() {
		zl.Warn("SMTP is not configured, password reset mail will not be sent")
	}

	providers := oauth.NewProviders(cfg)
	providerTags := make([]session.ProviderTag, 0, len(providers))
	for tag := range providers {
		providerTags = append(providerTags, tag)
	}
	zl.Info("social providers configured", zap.Stringers("providers", providerTags))

	hub := sse.NewHub()

	authHandler := handlers.NewAuthHandler(cfg, providers, accountService, recordService, tokenService, jwtService, emailService, zl)
	userHandler := handlers.NewUserHandler(accountService, zl)
	exchangeHandler := handlers.NewTokenExchangeHandler(accountService, storeTokens, zl)
	storeHandler := handlers.NewStoreHandler(recordService, hub, zl)
	sessionHandler := handlers.NewSessionHandler(jwtService, sessionService, zl)
	pageHandler := handlers.NewPageHandler(providerTags)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())
	app.Use(authmw.RequestLogger(zl))

	api := app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/signup", authHandler.SignUp)
	auth.Post("/login", authHandler.Login)
	auth.Get("/:provider/consent", authHandler.GetConsentURL)
	auth.Get("/:provider/callback", authHandler.Callback)
	auth.Post("/exchange", authHandler.ExchangeCode)
	auth.Post("/refresh", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/password-reset", authHandler.RequestPasswordReset)
	auth.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Get("/auth/me", userHandler.GetMe)
	protected.Post("/auth/password", userHandler.ChangePassword)
	protected.Post("/auth/email", userHandler.UpdateEmail)
	protected.Patch("/auth/profile", userHandler.UpdateProfile)
	protected.Post("/auth/logout-all", authHandler.LogoutAll)
	protected.Post("/auth/store-token", exchangeHandler.Exchange)

	store := api.Group("/store")
	store.Use(authmw.StoreAuth(storeTokens))

	store.Get("/ready", storeHandler.Ready)
	store.Get("/users/:id", storeHandler.Get)
	store.Put("/users/:id", storeHandler.Create)
	store.Patch("/users/:id", storeHandler.Update)
	store.Get("/users/:id/events", storeHandler.Events)

	api.Get("/session", sessionHandler.Get)

	api.Get("/health", func(c *drift.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
			return
		}
		_ = c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	app.Get(cfg.SignInPath, pageHandler.SignIn)
	app.Get("/reset-password", authHandler.ResetPasswordPage)
	app.Post("/reset-password", authHandler.ResetPassword)

	pages := app.Group("")
	pages.Use(authmw.GuardPage(jwtService, sessionService, cfg.SignInPath, zl))
	pages.Get("/account", pageHandler.Account)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		authHandler.CleanupLoop(ctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cleanupExpired(ctx, zl, tokenService, accountService)
			}
		}
	})

	g.Go(func() error {
		zl.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func cleanupExpired(ctx context.Context, zl *zap.Logger, tokens *services.TokenService, accounts *services.AccountService) {
	if n, err := tokens.CleanupExpired(ctx); err != nil {
		zl.Warn("refresh token cleanup failed", zap.Error(err))
	} else if n > 0 {
		zl.Debug("expired refresh tokens removed", zap.Int64("count", n))
	}

	if n, err := accounts.CleanupExpiredResets(ctx); err != nil {
		zl.Warn("password reset cleanup failed", zap.Error(err))
	} else if n > 0 {
		zl.Debug("expired password resets removed", zap.Int64("count", n))
	}
}
