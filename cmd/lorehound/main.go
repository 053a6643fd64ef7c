package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/chunker"
	"github.com/lorehound/lorehound/internal/config"
	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/embcache"
	logpkg "github.com/lorehound/lorehound/internal/logger"
	"github.com/lorehound/lorehound/internal/metrics"
	"github.com/lorehound/lorehound/internal/storage"
	"github.com/lorehound/lorehound/internal/storage/memory"
	"github.com/lorehound/lorehound/internal/storage/postgres"
	"github.com/lorehound/lorehound/internal/storage/sqlite"
	chiTransport "github.com/lorehound/lorehound/internal/transport/chi"
	openaiProvider "github.com/lorehound/lorehound/internal/transport/openai"
	"github.com/lorehound/lorehound/internal/transport/web"
	askuc "github.com/lorehound/lorehound/internal/usecase/ask"
	embeddinguc "github.com/lorehound/lorehound/internal/usecase/embedding"
	healthuc "github.com/lorehound/lorehound/internal/usecase/health"
	ingestuc "github.com/lorehound/lorehound/internal/usecase/ingest"
	pagesuc "github.com/lorehound/lorehound/internal/usecase/pages"
	summaryuc "github.com/lorehound/lorehound/internal/usecase/summary"
	"github.com/lorehound/lorehound/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lorehound API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_dsn", redactDSN(cfg.Storage.DSN)),
	)

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Pipeline metrics are registered explicitly (no init()).
	metrics.RegisterPipelineMetrics()

	// Optional redis embedding cache.
	var cache *embcache.Client
	if cfg.Cache.Enabled {
		cache, err = embcache.NewClient(embcache.Config{
			Addr:      cfg.Cache.Addr,
			Password:  cfg.Cache.Password,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to connect embedding cache", zap.Error(err))
		}
		defer cache.Close()
		logger.Info("Embedding cache connected", zap.String("addr", cfg.Cache.Addr))
	}

	embedder := buildEmbedder(ctx, cfg, cache, logger)

	completer := openaiProvider.NewCompleter(&openaiProvider.CompleterConfig{
		APIKey:      cfg.Embedding.APIKey,
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Synthesis.Model,
		Temperature: cfg.Synthesis.Temperature,
		Timeout:     time.Duration(cfg.Synthesis.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	fetcher := web.New(&web.Config{
		Timeout:           time.Duration(cfg.Fetcher.TimeoutSec) * time.Second,
		MaxAttempts:       cfg.Fetcher.MaxAttempts,
		MaxBodyBytes:      cfg.Fetcher.MaxBodyBytes,
		UserAgent:         cfg.Fetcher.UserAgent,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Burst:             cfg.Fetcher.Burst,
		Logger:            logger,
	})

	splitter := chunker.New(
		chunker.WithWindow(cfg.Chunking.WindowWords),
		chunker.WithOverlap(cfg.Chunking.OverlapWords),
	)

	runner := ingestuc.NewRunner(fetcher, splitter, embedder, store, ingestuc.Config{
		Workers:      cfg.Jobs.Workers,
		QueueSize:    cfg.Jobs.QueueSize,
		HistoryLimit: cfg.Jobs.HistoryLimit,
	}, logger)
	runner.Start()
	defer runner.Stop()

	askSvc := askuc.New(embedder, store, completer, askuc.Config{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	}, logger)
	summarySvc := summaryuc.New(store, fetcher, completer, summaryuc.Config{
		BudgetRunes: cfg.Synthesis.SummaryBudgetRune,
	}, logger)
	pagesSvc := pagesuc.New(store, logger)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(runner, askSvc, summarySvc, pagesSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.TenantMiddleware())
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore selects the backend by DSN prefix: postgres:// for pgvector,
// empty or :memory: for the in-process store, anything else a sqlite path.
func openStore(cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.Storage.DSN)
	switch {
	case dsn == "" || dsn == ":memory:":
		logger.Info("Using in-memory store")
		return memory.NewStore(), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		logger.Info("Using postgres store")
		return postgres.NewStore(dsn, cfg.Embedding.Dimensions)
	default:
		logger.Info("Using sqlite store", zap.String("path", dsn))
		return sqlite.NewStore(dsn)
	}
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> Cached -> Instrumented -> Instruction.
func buildEmbedder(
	ctx context.Context,
	cfg config.Config,
	cache *embcache.Client,
	logger *zap.Logger,
) domain.Embedder {
	base := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
		APIKey:       cfg.Embedding.APIKey,
		BaseURL:      cfg.Embedding.BaseURL,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		MaxAttempts:  cfg.Embedding.MaxAttempts,
		Timeout:      time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:       logger,
	})

	var embedder domain.Embedder = base
	if cache != nil {
		embedder = embcache.New(base, cache, cfg.Embedding.Model,
			time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)
	}

	// Single BudgetTracker shared across the chain; counters persist in
	// redis when the cache client is available.
	var budgetChecker embeddinguc.BudgetChecker
	if cfg.Embedding.Budget.DailyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if cfg.Embedding.Budget.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget := embeddinguc.NewBudgetTracker(cfg.Embedding.Budget.DailyTokenLimit, action, logger)
		if cache != nil {
			budget.WithStore(ctx, embcache.NewCounters(cache))
		}
		budgetChecker = budget
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Embedding.Model, budgetChecker, logger)

	// Instruction prefix outermost: the cache key must include it.
	if cfg.Embedding.Instruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.Embedding.Instruction)
	}
	return embedder
}

// embeddingHealthChecker adapts the embedder chain to the health contract.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// redactDSN hides credentials in log output.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

// jsonRecoverer converts panics to JSON 500s instead of plain text stacktraces.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
