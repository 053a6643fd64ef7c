package lorehound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/chunker"
	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/storage"
	"github.com/lorehound/lorehound/internal/storage/memory"
	"github.com/lorehound/lorehound/internal/storage/postgres"
	"github.com/lorehound/lorehound/internal/storage/sqlite"
	openaiProvider "github.com/lorehound/lorehound/internal/transport/openai"
	"github.com/lorehound/lorehound/internal/transport/web"
	askuc "github.com/lorehound/lorehound/internal/usecase/ask"
	ingestuc "github.com/lorehound/lorehound/internal/usecase/ingest"
	pagesuc "github.com/lorehound/lorehound/internal/usecase/pages"
	summaryuc "github.com/lorehound/lorehound/internal/usecase/summary"
)

// Narrow use case surfaces, substitutable in tests.
type scrapeUseCase interface {
	Enqueue(ctx context.Context, tenant domain.Tenant, urls []string) ([]domain.Job, error)
	Rescrape(ctx context.Context, tenant domain.Tenant, pageID int64) (domain.Job, domain.Page, error)
	Jobs(tenant domain.Tenant) []domain.Job
	Job(tenant domain.Tenant, id string) (domain.Job, bool)
}

type askUseCase interface {
	Answer(ctx context.Context, tenant domain.Tenant, question string, debug bool) (domain.Answer, error)
	Search(ctx context.Context, tenant domain.Tenant, question string, k int) ([]domain.ScoredChunk, error)
}

type summaryUseCase interface {
	Summarize(ctx context.Context, tenant domain.Tenant, urls []string, pageIDs []int64) (string, error)
}

type pagesUseCase interface {
	List(ctx context.Context, tenant domain.Tenant) ([]domain.PageMeta, error)
	Get(ctx context.Context, tenant domain.Tenant, id int64) (domain.Page, error)
	Delete(ctx context.Context, tenant domain.Tenant, id int64) error
	Reset(ctx context.Context, tenant domain.Tenant) error
}

// Client is the embedded lorehound entry point.
type Client struct {
	store   storage.Store
	runner  *ingestuc.Runner
	scrape  scrapeUseCase
	ask     askUseCase
	summary summaryUseCase
	pages   pagesUseCase
}

// New creates a Client, opens the store, and starts the scrape workers.
// The context is used for the initial store readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		storage:        "memory",
		embeddingModel: "text-embedding-3-small",
		dimensions:     1536,
		synthesisModel: "gpt-4o-mini",
		windowWords:    500,
		overlapWords:   50,
		topK:           5,
		workers:        4,
		queueSize:      128,
		userAgent:      "lorehound/1.0",
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	if cfg.embedder == nil && cfg.apiKey == "" {
		return nil, errors.New("lorehound: an API key (WithOpenAI) or a custom embedder (WithEmbedder) is required")
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("lorehound: store not ready: %w", err)
	}

	return wireClient(store, cfg), nil
}

func openStore(cfg *clientConfig) (storage.Store, error) {
	switch cfg.storage {
	case "sqlite":
		s, err := sqlite.NewStore(cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("lorehound: open sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.NewStore(cfg.dsn, cfg.dimensions)
		if err != nil {
			return nil, fmt.Errorf("lorehound: open postgres store: %w", err)
		}
		return s, nil
	default:
		return memory.NewStore(), nil
	}
}

func wireClient(store storage.Store, cfg *clientConfig) *Client {
	embedder := cfg.embedder
	if embedder == nil {
		embedder = openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.dimensions,
			Logger:     cfg.logger,
		})
	}
	if cfg.instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.instruction)
	}

	completer := cfg.completer
	if completer == nil {
		completer = openaiProvider.NewCompleter(&openaiProvider.CompleterConfig{
			APIKey:  cfg.apiKey,
			BaseURL: cfg.baseURL,
			Model:   cfg.synthesisModel,
			Logger:  cfg.logger,
		})
	}

	fetcher := web.New(&web.Config{
		UserAgent: cfg.userAgent,
		Logger:    cfg.logger,
	})
	splitter := chunker.New(
		chunker.WithWindow(cfg.windowWords),
		chunker.WithOverlap(cfg.overlapWords),
	)

	runner := ingestuc.NewRunner(fetcher, splitter, embedder, store, ingestuc.Config{
		Workers:   cfg.workers,
		QueueSize: cfg.queueSize,
	}, cfg.logger)
	runner.Start()

	return &Client{
		store:   store,
		runner:  runner,
		scrape:  runner,
		ask:     askuc.New(embedder, store, completer, askuc.Config{TopK: cfg.topK, MinScore: cfg.minScore}, cfg.logger),
		summary: summaryuc.New(store, fetcher, completer, summaryuc.Config{}, cfg.logger),
		pages:   pagesuc.New(store, cfg.logger),
	}
}

// Close stops the scrape workers and closes the store. Jobs still queued
// are abandoned; running ones finish first.
func (c *Client) Close() error {
	if c.runner != nil {
		c.runner.Stop()
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WaitForJobs blocks until every listed job reaches a terminal status or
// the timeout elapses. Returns the first context or timeout error.
func (c *Client) WaitForJobs(ctx context.Context, tenant string, jobIDs []string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		done := true
		for _, id := range jobIDs {
			job, ok := c.scrape.Job(domain.Tenant(tenant), id)
			if ok && !job.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lorehound: jobs not finished after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
