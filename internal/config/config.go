package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	VectorBackendChromem  = "chromem"
	VectorBackendPGVector = "pgvector"

	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
)

type Config struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	HTTPPort     string `mapstructure:"http_port"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`

	ChatModel      string `mapstructure:"chat_model"`
	VisionModel    string `mapstructure:"vision_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`

	VectorBackend       string `mapstructure:"vector_backend"`
	VectorStorePath     string `mapstructure:"vector_store_path"`
	CollectionName      string `mapstructure:"collection_name"`
	VectorStoreCompress bool   `mapstructure:"vector_store_compress"`
	PGVectorDSN         string `mapstructure:"pgvector_dsn"`
	DBDebug             bool   `mapstructure:"db_debug"`

	SessionBackend string `mapstructure:"session_backend"`
	DatabaseURL    string `mapstructure:"database_url"`

	UploadDir   string `mapstructure:"upload_dir"`
	StaticDir   string `mapstructure:"static_dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`

	ChunkSize        int    `mapstructure:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap"`
	RetrievalK       int    `mapstructure:"retrieval_k"`
	DefaultSessionID string `mapstructure:"default_session_id"`
}

var defaults = map[string]any{
	"http_port":             "8080",
	"log_level":             "info",
	"log_format":            "console",
	"chat_model":            "gemini-1.5-pro-latest",
	"vision_model":          "gemini-1.5-pro-latest",
	"embedding_model":       "text-embedding-004",
	"vector_backend":        VectorBackendChromem,
	"vector_store_path":     "./vector_store",
	"collection_name":       "chat_docs",
	"vector_store_compress": false,
	"pgvector_dsn":          "",
	"db_debug":              false,
	"session_backend":       SessionBackendMemory,
	"database_url":          "rag_chat.db",
	"upload_dir":            "uploads",
	"static_dir":            "frontend",
	"max_upload_mb":         32,
	"chunk_size":            1000,
	"chunk_overlap":         200,
	"retrieval_k":           4,
	"default_session_id":    "default_user",
}

// LoadConfig resolves the configuration from defaults, an optional YAML file
// and the environment, in increasing order of precedence. A .env file in the
// working directory is loaded first if it exists.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GOOGLE_API_KEY is accepted as an alias.
	if err := v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("error binding api key env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.VectorBackend = strings.ToLower(cfg.VectorBackend)
	cfg.SessionBackend = strings.ToLower(cfg.SessionBackend)
	return &cfg, nil
}

// Validate reports the first setting that would prevent the service from starting.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	switch c.VectorBackend {
	case VectorBackendChromem:
		if c.VectorStorePath == "" {
			return errors.New("vector_store_path is required for the chromem backend")
		}
	case VectorBackendPGVector:
		if c.PGVectorDSN == "" {
			return errors.New("PGVECTOR_DSN is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown vector backend: %q", c.VectorBackend)
	}
	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendSQLite:
	default:
		return fmt.Errorf("unknown session backend: %q", c.SessionBackend)
	}
	if c.CollectionName == "" {
		return errors.New("collection_name must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("retrieval_k must be positive, got %d", c.RetrievalK)
	}
	return nil
}

// MaxUploadBytes is the multipart memory/size limit derived from MaxUploadMB.
func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 32 << 20
	}
	return c.MaxUploadMB << 20
}
