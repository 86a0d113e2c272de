package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arturoeanton/go-star-search/internal/app"
	"github.com/arturoeanton/go-star-search/internal/handler"
	"github.com/arturoeanton/go-star-search/internal/mcp"
	"github.com/arturoeanton/go-star-search/internal/middleware"
	"github.com/arturoeanton/go-star-search/pkg/config"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

func main() {
	// ── Configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv("STARSEARCH_CONFIG"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	for _, w := range cfg.Validate() {
		slog.Warn("config", "warning", w)
	}

	slog.Info("🚀 Starting star search",
		"port", cfg.Port,
		"backend", cfg.VectorBackend,
		"embedding_provider", cfg.EmbeddingProvider,
		"mcp_enabled", cfg.MCPEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Services ─────────────────────────────────────────────────────────
	tracker := handler.NewProgressTracker()
	a, err := app.New(ctx, cfg, tracker)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())
	a.LogStartupStatus(ctx)

	// ── Fiber App ────────────────────────────────────────────────────────
	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // ?wait=true runs a whole page
	})

	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
	}))
	var auditWriter middleware.AuditWriter = middleware.LogAuditWriter{}
	if a.Audit != nil {
		auditWriter = a.Audit
	}
	server.Use(middleware.AuditMiddleware(auditWriter))

	server.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
			"running": a.Indexer.Running(),
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := server.Group("/api/v1", middleware.TokenAuth(cfg.APIToken))

	handler.NewIndexHandler(a.Indexer, tracker).Register(api)
	handler.NewSearchHandler(a.Search).Register(api)
	handler.NewSettingsHandler(a.Indexer, a.Source).Register(api)
	if a.Audit != nil {
		handler.NewAuditHandler(a.Audit).Register(api)
	}

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(a.Search, a.Indexer, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(ctx); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
