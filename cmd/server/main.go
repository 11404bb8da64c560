package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/joseairosa/codesalvage-sub000/internal/adapter/githubapi"
	"github.com/joseairosa/codesalvage-sub000/internal/adapter/notify"
	"github.com/joseairosa/codesalvage-sub000/internal/adapter/store"
	"github.com/joseairosa/codesalvage-sub000/internal/handler"
	"github.com/joseairosa/codesalvage-sub000/internal/middleware"
	"github.com/joseairosa/codesalvage-sub000/internal/secret"
	"github.com/joseairosa/codesalvage-sub000/internal/service"
	"github.com/joseairosa/codesalvage-sub000/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	cfg := config.Load()

	slog.Info("starting transfer engine",
		"port", cfg.Port,
		"github_api", cfg.GitHubAPIURL,
		"sweep_interval", cfg.SweepInterval,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.EnsureSchema(context.Background()); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// ── Adapters ─────────────────────────────────────────────────────────
	cipher, err := secret.NewCipher(cfg.CredentialKey)
	if err != nil {
		slog.Error("invalid credential key", "error", err)
		os.Exit(1)
	}

	github := githubapi.NewProvider(cfg.GitHubAPIURL)
	sink := notify.NewSink(pgStore)

	// ── Services ─────────────────────────────────────────────────────────
	transferService := service.NewTransferService(
		pgStore, pgStore, github, sink, cipher,
		cfg.FrontendURL,
		cfg.MaxTransferRetries,
		time.Duration(cfg.FallbackReleaseDays)*24*time.Hour,
	)

	// ── Batch sweep ──────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweepDriver(transferService, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))
	app.Use(middleware.AuditMiddleware(pgStore))

	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"app":    cfg.AppName,
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.JWTMiddleware(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}))

	handler.NewTransferHandler(transferService).Register(api)
	handler.NewNotificationHandler(pgStore).Register(api)
	handler.NewAuditHandler(pgStore).Register(api)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
