package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/stackfolio/portfolio-rag/internal/adapter/ai"
	"github.com/stackfolio/portfolio-rag/internal/adapter/ingest"
	"github.com/stackfolio/portfolio-rag/internal/adapter/store"
	"github.com/stackfolio/portfolio-rag/internal/handler"
	"github.com/stackfolio/portfolio-rag/internal/mcp"
	"github.com/stackfolio/portfolio-rag/internal/middleware"
	"github.com/stackfolio/portfolio-rag/internal/service"
	"github.com/stackfolio/portfolio-rag/internal/worker"
	"github.com/stackfolio/portfolio-rag/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting Portfolio RAG",
		"port", cfg.Port,
		"gitingest", cfg.GitingestURL,
		"embedding_model", cfg.EmbeddingModel,
		"generation_model", cfg.GenerationModel,
		"mcp_enabled", cfg.MCPEnabled,
	)
	if !cfg.RAGEnabled() {
		slog.Warn("AI provider keys missing, chat will return the unavailable message")
	}

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.InitSchema(context.Background()); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	processingStore := store.NewProcessingStore(pgStore)

	// ── Adapters ─────────────────────────────────────────────────────────
	fetcher := ingest.NewGitingestClient(cfg.GitingestURL, time.Duration(cfg.GitingestTimeoutSeconds)*time.Second)

	embedder := ai.NewOpenAIEmbedder(ai.OpenAIConfig{
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
		APIKey:  cfg.OpenAIAPIKey,
		Timeout: time.Duration(cfg.EmbeddingTimeoutSecs) * time.Second,
	})
	generator := ai.NewGroqGenerator(ai.GroqConfig{
		BaseURL:     cfg.GenerationBaseURL,
		Model:       cfg.GenerationModel,
		APIKey:      cfg.GroqAPIKey,
		MaxTokens:   cfg.GenerationMaxTokens,
		Temperature: cfg.GenerationTemperature,
		Timeout:     time.Duration(cfg.GenerationTimeoutSecs) * time.Second,
	})

	// ── Services ─────────────────────────────────────────────────────────
	processor := service.NewProcessingService(pgStore, processingStore, fetcher, embedder, service.ProcessingOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatchSize,
		BatchDelay:   time.Duration(cfg.EmbedBatchDelayMS) * time.Millisecond,
	})
	ragService := service.NewRAGService(pgStore, processingStore, embedder, generator, cfg.TopK, cfg.RAGEnabled())

	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize)
	defer pool.Shutdown()

	sweeper := service.NewSweeper(processingStore, processor, pool, service.SweeperOptions{
		Interval:    time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		MaxAttempts: cfg.SweepMaxAttempts,
	})
	go sweeper.Run(context.Background())

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Routes ───────────────────────────────────────────────────────────
	api := app.Group("/api/v1")

	projectHandler := handler.NewProjectHandler(pgStore, processor, pool)
	projectHandler.Register(api)

	ragHandler := handler.NewRAGHandler(pgStore, processor, ragService, pool)
	ragHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(pgStore, processor, ragService, pool, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
