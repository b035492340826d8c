package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/contracts-parser/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	DocText  DocTextConfig
	LLM      LLMConfig
	Parser   ParserConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration.
// DSN may be a postgres:// URL or a sqlite file path.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr  string
	WatchDirs []string
}

// DocTextConfig holds document text extraction configuration
type DocTextConfig struct {
	Pdftotext      string
	DoclingPython  string
	DoclingScript  string
	DoclingEnabled bool
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// ParserConfig holds extraction engine tuning
type ParserConfig struct {
	DefaultMode       string
	MinChunkSize      int
	MaxConcurrent     int
	MaxChunksPerField int
	SessionTTL        time.Duration
}

// QueueConfig holds background processing configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "contracts.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:  getEnv("GRPC_ADDR", ":8080"),
			WatchDirs: getEnvAsList("WATCH_DIRS", nil),
		},
		DocText: DocTextConfig{
			Pdftotext:      getEnv("PDFTOTEXT_BIN", "pdftotext"),
			DoclingPython:  getEnv("DOCLING_PYTHON", "python3"),
			DoclingScript:  getEnv("DOCLING_SCRIPT", ""),
			DoclingEnabled: getEnvAsBool("DOCLING_ENABLED", false),
		},
		LLM: LLMConfig{
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", ""),
			Temperature:       getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			MaxTokens:         getEnvAsInt("OPENAI_MAX_TOKENS", 4000),
			Timeout:           getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxRetries:        getEnvAsInt("OPENAI_MAX_RETRIES", 2),
			RequestsPerSecond: getEnvAsFloat64("OPENAI_RPS", 2),
		},
		Parser: ParserConfig{
			DefaultMode:       getEnv("PARSER_DEFAULT_MODE", "AUTO"),
			MinChunkSize:      getEnvAsInt("PARSER_MIN_CHUNK_SIZE", 500),
			MaxConcurrent:     getEnvAsInt("PARSER_MAX_CONCURRENT", 3),
			MaxChunksPerField: getEnvAsInt("PARSER_MAX_CHUNKS_PER_FIELD", 3),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 2),
			Size:           getEnvAsInt("QUEUE_SIZE", 64),
			ProcessTimeout: getEnvAsDuration("QUEUE_TIMEOUT", 10*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Parser.MaxConcurrent < 1 {
		return NewAppError("CONFIG_ERROR", "PARSER_MAX_CONCURRENT must be at least 1", ErrInvalidInput)
	}
	if c.Parser.MinChunkSize < 0 {
		return NewAppError("CONFIG_ERROR", "PARSER_MIN_CHUNK_SIZE must not be negative", ErrInvalidInput)
	}
	if _, ok := constants.ParseModeFromString(c.Parser.DefaultMode); !ok {
		return NewAppError("CONFIG_ERROR", "PARSER_DEFAULT_MODE must be one of "+strings.Join(constants.ModesAsStringSlice(), ", "), ErrInvalidInput)
	}
	if c.DocText.DoclingEnabled && c.DocText.DoclingScript == "" {
		return NewAppError("CONFIG_ERROR", "DOCLING_SCRIPT is required when DOCLING_ENABLED is set", ErrInvalidInput)
	}
	return nil
}
