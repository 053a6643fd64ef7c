package lorehound

import (
	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	storage string // "memory", "sqlite", "postgres"
	dsn     string

	apiKey         string
	baseURL        string
	embeddingModel string
	dimensions     int
	synthesisModel string
	instruction    string

	embedder  domain.Embedder
	completer domain.Completer

	windowWords  int
	overlapWords int

	topK     int
	minScore float64

	workers   int
	queueSize int

	userAgent string

	logger *zap.Logger
}

// WithSQLite stores pages and vectors in a sqlite file.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.storage = "sqlite"
		c.dsn = path
	})
}

// WithPostgres stores pages and vectors in postgres with pgvector.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.storage = "postgres"
		c.dsn = dsn
	})
}

// WithOpenAI sets the API key for the default OpenAI embedding and
// completion providers.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = apiKey
	})
}

// WithBaseURL points the providers at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = url
	})
}

// WithEmbeddingModel overrides the embedding model and vector dimensions.
// Defaults: text-embedding-3-small, 1536.
func WithEmbeddingModel(model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingModel = model
		c.dimensions = dimensions
	})
}

// WithSynthesisModel overrides the generation model. Default: gpt-4o-mini.
func WithSynthesisModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.synthesisModel = model
	})
}

// WithInstruction prepends a task prefix to every embedded text. Useful for
// models that retrieve better with an instruction.
func WithInstruction(instruction string) Option {
	return optionFunc(func(c *clientConfig) {
		c.instruction = instruction
	})
}

// WithEmbedder replaces the OpenAI embedding provider entirely.
func WithEmbedder(e domain.Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithCompleter replaces the OpenAI completion provider entirely.
func WithCompleter(cm domain.Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completer = cm
	})
}

// WithChunking sets the passage window and overlap in words.
// Defaults: 500/50.
func WithChunking(windowWords, overlapWords int) Option {
	return optionFunc(func(c *clientConfig) {
		c.windowWords = windowWords
		c.overlapWords = overlapWords
	})
}

// WithRetrieval sets how many chunks feed each answer and the minimum
// similarity to keep. Defaults: 5 and 0 (no threshold).
func WithRetrieval(topK int, minScore float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = topK
		c.minScore = minScore
	})
}

// WithWorkers sets the scrape worker pool size and queue capacity.
// Defaults: 4 workers, queue of 128.
func WithWorkers(workers, queueSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = workers
		c.queueSize = queueSize
	})
}

// WithUserAgent sets the HTTP User-Agent used when fetching pages.
func WithUserAgent(ua string) Option {
	return optionFunc(func(c *clientConfig) {
		c.userAgent = ua
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
