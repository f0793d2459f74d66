package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	apperrors "graphclone/backend/pkg/errors"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendNeo4j  = "neo4j"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Schema
	SchemaFile        string   // YAML file declaring record types
	NonCloneableTypes []string // Types shared by reference when cloning

	// Store
	StoreBackend string
	BoltPath     string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jLabel    string // Node label records are stored under
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		SchemaFile:        getEnv("SCHEMA_FILE", "schema.yaml"),
		NonCloneableTypes: getEnvList("NON_CLONEABLE_TYPES", []string{"User"}),
		StoreBackend:      getEnv("STORE_BACKEND", BackendMemory),
		BoltPath:          getEnv("BOLT_PATH", "data/records.db"),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		Neo4jLabel:        getEnv("NEO4J_LABEL", "Record"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.SchemaFile == "" {
		return apperrors.NewConfigMissingRequired("SCHEMA_FILE")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendBolt:
		if c.BoltPath == "" {
			return apperrors.NewConfigMissingRequired("BOLT_PATH")
		}
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND",
			fmt.Sprintf("unknown backend %q, want memory, bolt or neo4j", c.StoreBackend))
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable. An explicitly empty value
// yields no entries, unlike an unset one.
func getEnvList(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
