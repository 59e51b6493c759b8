package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsdesk/tagsuggest/internal/article"
	"github.com/newsdesk/tagsuggest/internal/auth"
	"github.com/newsdesk/tagsuggest/internal/cache"
	"github.com/newsdesk/tagsuggest/internal/config"
	"github.com/newsdesk/tagsuggest/internal/corpus"
	"github.com/newsdesk/tagsuggest/internal/embedder"
	"github.com/newsdesk/tagsuggest/internal/llm"
	"github.com/newsdesk/tagsuggest/internal/repository"
	"github.com/newsdesk/tagsuggest/internal/repository/postgres"
	"github.com/newsdesk/tagsuggest/internal/reranker"
	"github.com/newsdesk/tagsuggest/internal/server"
	"github.com/newsdesk/tagsuggest/internal/suggest"
	"github.com/newsdesk/tagsuggest/internal/textutil"
	"github.com/newsdesk/tagsuggest/internal/vectorindex"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting tag suggestion service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"backend", cfg.IndexBackend,
	)

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.EmbeddingModel,
	})
	slog.Info("initialized embedder", "model", cfg.EmbeddingModel)

	// Build the corpus pipeline
	var normalize func(string) string
	if cfg.NormalizeArabic {
		normalize = textutil.NormalizeArabic
	}
	builder := corpus.NewBuilder(embed, normalize)
	source := corpus.NewCSVSource(cfg.TagsCSVPath)

	backend := vectorindex.Backend(cfg.IndexBackend)
	if backend != vectorindex.BackendFlat && backend != vectorindex.BackendHNSW {
		return fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}

	managerOpts := []suggest.ManagerOption{suggest.WithLogger(slog.Default())}
	if cfg.CorpusCacheDir != "" {
		managerOpts = append(managerOpts, suggest.WithCorpusCache(corpus.NewCache(cfg.CorpusCacheDir)))
	}
	manager := suggest.NewManager(source, builder, backend, cfg.EmbeddingModel, managerOpts...)

	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("failed to load tag corpus: %w", err)
	}

	// Initialize the suggestion engine
	engineOpts := []suggest.EngineOption{suggest.WithEngineLogger(slog.Default())}
	if cfg.RerankerEnabled {
		llmClient := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.RerankerModel),
		)
		engineOpts = append(engineOpts, suggest.WithReranker(
			reranker.NewLLMReranker(llmClient, reranker.WithModel(cfg.RerankerModel))))
		slog.Info("initialized LLM reranker", "model", cfg.RerankerModel)
	}
	engine := suggest.NewEngine(manager, embed, suggest.EngineConfig{
		DefaultK:        cfg.DefaultTopK,
		DefaultMinScore: cfg.DefaultMinScore,
		ShortlistSize:   cfg.ShortlistSize,
		HybridAlpha:     cfg.HybridAlpha,
		NormalizeArabic: cfg.NormalizeArabic,
	}, engineOpts...)

	// Optional integrations
	var articles *article.Client
	if cfg.CMSBaseURL != "" {
		articles = article.NewClient(cfg.CMSBaseURL, article.WithToken(cfg.CMSToken))
		slog.Info("initialized CMS content client", "base_url", cfg.CMSBaseURL)
	}

	var suggestionCache *cache.SuggestionCache
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		suggestionCache = cache.NewSuggestionCache(redis.NewClient(redisOpts), cfg.CacheTTL)
		slog.Info("initialized Redis response cache", "ttl", cfg.CacheTTL)
	}

	var feedbackRepo repository.FeedbackRepository
	var logRepo repository.SuggestionLogRepository
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		feedbackRepo = postgres.NewFeedbackRepo(db)
		logRepo = postgres.NewSuggestionLogRepo(db)
		slog.Info("connected to PostgreSQL")
	}

	// Create HTTP server
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:              cfg.HTTPPort,
		Logger:            slog.Default(),
		AllowedOrigins:    []string{"*"}, // Configure in production
		Engine:            engine,
		Manager:           manager,
		Auth:              auth.NewMiddleware(cfg.AdminAPIKey, auth.NewJWTManager(&auth.JWTConfig{Secret: cfg.JWTSecret, Expiry: cfg.JWTExpiry, Issuer: "tagsuggest"})),
		Model:             cfg.EmbeddingModel,
		Articles:          articles,
		Cache:             suggestionCache,
		Feedback:          feedbackRepo,
		Logs:              logRepo,
		ReloadMinInterval: cfg.ReloadMinInterval,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// SIGHUP triggers a corpus reload; SIGINT/SIGTERM shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, reloading tag corpus")
				if res, err := manager.Reload(ctx); err != nil {
					slog.Error("reload failed", "error", err, "serving_generation", res.Generation)
				}
				continue
			}
			slog.Info("received shutdown signal", "signal", sig.String())

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shutdown HTTP server", "error", err)
			}
			slog.Info("server stopped")
			return nil
		}
	}
}

// Ensure interfaces are satisfied at compile time
var (
	_ embedder.Embedder = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM           = (*llm.OllamaClient)(nil)
	_ corpus.Source     = (*corpus.CSVSource)(nil)
)
