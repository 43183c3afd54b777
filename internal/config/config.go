// Package config handles configuration for the PDF RAG service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete service configuration. Every numeric guardrail is
// policy with a default, not a constant.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Bedrock    BedrockConfig    `mapstructure:"bedrock"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Query      QueryConfig      `mapstructure:"query"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	OpsPort         int           `mapstructure:"ops_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DatabaseConfig contains Postgres connection settings.
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxConns     int    `mapstructure:"max_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// StorageConfig contains S3 blob store settings.
type StorageConfig struct {
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	KeyPrefix      string `mapstructure:"key_prefix"`
}

// BedrockConfig contains settings for the embedding and generation backends.
type BedrockConfig struct {
	Region      string        `mapstructure:"region"`
	EmbedModel  string        `mapstructure:"embed_model"`
	ChatModel   string        `mapstructure:"chat_model"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
}

// ProcessingConfig contains normalizer, chunker, and embedding pipeline
// settings.
type ProcessingConfig struct {
	NormalizerMaxChars int           `mapstructure:"normalizer_max_chars"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap"`
	ChunkerMaxChunks   int           `mapstructure:"chunker_max_chunks"`
	MaxDocumentChunks  int           `mapstructure:"max_document_chunks"`
	EmbedThrottle      time.Duration `mapstructure:"embed_throttle"`
	DryRun             bool          `mapstructure:"dry_run"`
}

// QueryConfig contains retrieval-side settings.
type QueryConfig struct {
	DefaultTopK     int `mapstructure:"default_top_k"`
	MaxTopK         int `mapstructure:"max_top_k"`
	MaxPassageChars int `mapstructure:"max_passage_chars"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.ops_port", 9090)
	v.SetDefault("service.shutdown_timeout", 30*time.Second)
	v.SetDefault("service.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "paperquery")
	v.SetDefault("database.username", "paperquery")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("storage.region", "us-west-2")
	v.SetDefault("storage.key_prefix", "uploads")

	v.SetDefault("bedrock.region", "us-west-2")
	v.SetDefault("bedrock.embed_model", "amazon.titan-embed-text-v2:0")
	v.SetDefault("bedrock.chat_model", "anthropic.claude-3-5-sonnet-20240620-v1:0")
	v.SetDefault("bedrock.call_timeout", 30*time.Second)
	v.SetDefault("bedrock.max_retries", 5)
	v.SetDefault("bedrock.max_tokens", 600)
	v.SetDefault("bedrock.temperature", 0.2)
	v.SetDefault("bedrock.top_p", 0.9)

	v.SetDefault("processing.normalizer_max_chars", 5_000_000)
	v.SetDefault("processing.chunk_size", 1200)
	v.SetDefault("processing.chunk_overlap", 150)
	v.SetDefault("processing.chunker_max_chunks", 5000)
	v.SetDefault("processing.max_document_chunks", 4000)
	v.SetDefault("processing.embed_throttle", 50*time.Millisecond)
	v.SetDefault("processing.dry_run", false)

	v.SetDefault("query.default_top_k", 4)
	v.SetDefault("query.max_top_k", 20)
	v.SetDefault("query.max_passage_chars", 700)
}

// Load reads configuration from an optional YAML file and PAPERQUERY_*
// environment variables, layering both over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PAPERQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		// A missing default config file is fine; env vars and defaults apply.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Processing.ChunkSize <= 0 {
		return fmt.Errorf("processing.chunk_size must be positive, got %d", c.Processing.ChunkSize)
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("processing.chunk_overlap must be in [0, chunk_size), got %d", c.Processing.ChunkOverlap)
	}
	if c.Processing.ChunkerMaxChunks <= 0 {
		return fmt.Errorf("processing.chunker_max_chunks must be positive, got %d", c.Processing.ChunkerMaxChunks)
	}
	if c.Processing.MaxDocumentChunks <= 0 {
		return fmt.Errorf("processing.max_document_chunks must be positive, got %d", c.Processing.MaxDocumentChunks)
	}
	if c.Query.MaxTopK <= 0 || c.Query.DefaultTopK <= 0 || c.Query.DefaultTopK > c.Query.MaxTopK {
		return fmt.Errorf("query.default_top_k (%d) must be in [1, max_top_k=%d]", c.Query.DefaultTopK, c.Query.MaxTopK)
	}
	if c.Bedrock.EmbedModel == "" || c.Bedrock.ChatModel == "" {
		return fmt.Errorf("bedrock.embed_model and bedrock.chat_model are required")
	}
	return nil
}
