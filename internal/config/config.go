package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// RedisConfig holds the distributed rate-limit counter settings.
// When Addr is empty the server falls back to an in-memory counter,
// which is only correct for a single replica.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	RetryAttempts int           `mapstructure:"retry_attempts"` // for 429/503 only
	RetryCooldown time.Duration `mapstructure:"retry_cooldown"`
}

// EmbeddingConfig holds the embedding API settings
type EmbeddingConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Dimension     int           `mapstructure:"dimension"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"` // provider batch ceiling
	ChunkTokens   int           `mapstructure:"chunk_tokens"`
	OverlapTokens int           `mapstructure:"overlap_tokens"`
	RetryAttempts int           `mapstructure:"retry_attempts"` // for 429/503 only
	RetryCooldown time.Duration `mapstructure:"retry_cooldown"`
}

// IngestConfig holds feed ingestion settings
type IngestConfig struct {
	MaxItemsPerSource int           `mapstructure:"max_items_per_source"`
	ItemDelay         time.Duration `mapstructure:"item_delay"` // fixed wait between items
	RewriteLanguage   string        `mapstructure:"rewrite_language"`
	PlaceholderImage  string        `mapstructure:"placeholder_image"`
}

// ChatConfig holds chat/translate proxy settings
type ChatConfig struct {
	MaxMessageLength int           `mapstructure:"max_message_length"`
	HistoryWindow    int           `mapstructure:"history_window"`
	RateLimit        int           `mapstructure:"rate_limit"` // requests per window per IP
	RateWindow       time.Duration `mapstructure:"rate_window"`
	LogQueueSize     int           `mapstructure:"log_queue_size"`
	SearchLimit      int           `mapstructure:"search_limit"` // retrieval chunks per turn
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	FetchCron string `mapstructure:"fetch_cron"`
	Enabled   bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".cms-engine"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("CMS")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("anthropic.api_key", "CMS_ANTHROPIC_API_KEY")
	v.BindEnv("embedding.api_key", "CMS_EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "CMS_EMBEDDING_BASE_URL")
	v.BindEnv("database.driver", "CMS_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "CMS_DATABASE_DSN")
	v.BindEnv("redis.addr", "CMS_REDIS_ADDR")
	v.BindEnv("redis.password", "CMS_REDIS_PASSWORD")
	v.BindEnv("server.addr", "CMS_SERVER_ADDR")
	v.BindEnv("server.admin_token", "CMS_SERVER_ADMIN_TOKEN")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/cms.db")

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.retry_attempts", 3)
	v.SetDefault("anthropic.retry_cooldown", time.Minute)

	// Embedding defaults
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.max_batch_size", 128)
	v.SetDefault("embedding.chunk_tokens", 500)
	v.SetDefault("embedding.overlap_tokens", 50)
	v.SetDefault("embedding.retry_attempts", 3)
	v.SetDefault("embedding.retry_cooldown", time.Minute)

	// Ingest defaults
	v.SetDefault("ingest.max_items_per_source", 10)
	v.SetDefault("ingest.item_delay", 2*time.Second)
	v.SetDefault("ingest.rewrite_language", "vi")
	v.SetDefault("ingest.placeholder_image", "/images/placeholder.jpg")

	// Chat defaults
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("chat.history_window", 10)
	v.SetDefault("chat.rate_limit", 20)
	v.SetDefault("chat.rate_window", time.Minute)
	v.SetDefault("chat.log_queue_size", 256)
	v.SetDefault("chat.search_limit", 5)

	// Server defaults
	v.SetDefault("server.addr", ":8080")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.fetch_cron", "0 */2 * * *") // Every 2 hours

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Server.AdminToken == "" {
		return fmt.Errorf("server.admin_token is required")
	}
	if c.Embedding.OverlapTokens >= c.Embedding.ChunkTokens {
		return fmt.Errorf("embedding.overlap_tokens must be smaller than embedding.chunk_tokens")
	}
	return nil
}
