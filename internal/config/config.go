package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the lorehound service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig holds the datastore DSN. The backend is selected by prefix:
// postgres:// or postgresql:// for pgvector, ":memory:" or empty for the
// in-memory store, anything else is a sqlite file path.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// FetcherConfig holds URL download settings.
type FetcherConfig struct {
	TimeoutSec        int     `yaml:"timeout_sec"`
	MaxAttempts       int     `yaml:"max_attempts"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // per-host politeness limit
	Burst             int     `yaml:"burst"`
}

// ChunkingConfig holds passage window settings, in words.
type ChunkingConfig struct {
	WindowWords  int `yaml:"window_words"`
	OverlapWords int `yaml:"overlap_words"`
}

// BudgetConfig holds embedding token budget settings.
type BudgetConfig struct {
	DailyTokenLimit int64  `yaml:"daily_token_limit"` // 0 = unlimited
	Action          string `yaml:"action"`            // "reject" | "warn" (default)
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey       string       `yaml:"api_key"`
	BaseURL      string       `yaml:"base_url"`
	Model        string       `yaml:"model"`
	Dimensions   int          `yaml:"dimensions"`
	MaxBatchSize int          `yaml:"max_batch_size"`
	MaxAttempts  int          `yaml:"max_attempts"`
	TimeoutSec   int          `yaml:"timeout_sec"`
	Instruction  string       `yaml:"instruction"` // optional task prefix prepended to every input
	Budget       BudgetConfig `yaml:"budget"`
}

// SynthesisConfig holds generation provider settings.
type SynthesisConfig struct {
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	SummaryBudgetRune int     `yaml:"summary_budget_runes"` // max page text fed to one summary prompt
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"` // similarity threshold in [0,1]; 0 disables
}

// CacheConfig holds the optional redis embedding cache settings.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
	TTLSec    int    `yaml:"ttl_sec"`
}

// JobsConfig holds scrape worker pool settings.
type JobsConfig struct {
	Workers      int `yaml:"workers"`
	QueueSize    int `yaml:"queue_size"`
	HistoryLimit int `yaml:"history_limit"` // terminal jobs kept per tenant
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting
// to "local". A .env file in the working directory is loaded first when
// present; existing variables are never overridden.
func GetEnv() string {
	_ = godotenv.Load()
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Fetcher.TimeoutSec <= 0 {
		c.Fetcher.TimeoutSec = 25
	}
	if c.Fetcher.MaxAttempts <= 0 {
		c.Fetcher.MaxAttempts = 3
	}
	if c.Fetcher.MaxBodyBytes <= 0 {
		c.Fetcher.MaxBodyBytes = 15 << 20
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = "lorehound/1.0"
	}
	if c.Fetcher.RequestsPerSecond <= 0 {
		c.Fetcher.RequestsPerSecond = 2
	}
	if c.Fetcher.Burst <= 0 {
		c.Fetcher.Burst = 4
	}
	if c.Chunking.WindowWords <= 0 {
		c.Chunking.WindowWords = 500
	}
	if c.Chunking.OverlapWords <= 0 {
		c.Chunking.OverlapWords = 50
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 64
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 3
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Synthesis.Model == "" {
		c.Synthesis.Model = "gpt-4o-mini"
	}
	if c.Synthesis.Temperature <= 0 {
		c.Synthesis.Temperature = 0.2
	}
	if c.Synthesis.TimeoutSec <= 0 {
		c.Synthesis.TimeoutSec = 60
	}
	if c.Synthesis.SummaryBudgetRune <= 0 {
		c.Synthesis.SummaryBudgetRune = 24000
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "lorehound:"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 86400
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 4
	}
	if c.Jobs.QueueSize <= 0 {
		c.Jobs.QueueSize = 128
	}
	if c.Jobs.HistoryLimit <= 0 {
		c.Jobs.HistoryLimit = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Chunking.OverlapWords >= c.Chunking.WindowWords {
		return fmt.Errorf(
			"chunking.overlap_words must be smaller than window_words, got %d >= %d",
			c.Chunking.OverlapWords, c.Chunking.WindowWords,
		)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be in [0,1], got %g", c.Retrieval.MinScore)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache.enabled is true")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
