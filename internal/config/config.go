// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting the service needs.
// There is no package-level instance: callers build one with FromEnv
// and pass it to collaborator constructors explicitly.
type Config struct {
	GitLabURL string
	GitLabPAT string

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	EmbeddingProvider       string
	OpenAIEmbeddingModel    string
	LocalEmbeddingURL       string
	LocalEmbeddingDimension int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	QdrantHost string
	QdrantPort int

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	ChunkSize    int
	ChunkOverlap int
	TopKResults  int
	ReposPath    string

	HTTPPort     int
	WorkerCount  int
	SyncInterval int // SYNC_INTERVAL_SECONDS; read but not used: the server runs no periodic sync
}

// FromEnv builds a Config from process environment variables, applying
// the defaults named in the external interface contract.
func FromEnv() (*Config, error) {
	cfg := &Config{
		GitLabURL: os.Getenv("GITLAB_URL"),
		GitLabPAT: os.Getenv("GITLAB_PAT"),

		LLMProvider:   envOr("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		EmbeddingProvider:       envOr("EMBEDDING_PROVIDER", "openai"),
		OpenAIEmbeddingModel:    envOr("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		LocalEmbeddingURL:       os.Getenv("LOCAL_EMBEDDING_URL"),
		LocalEmbeddingDimension: envOrInt("LOCAL_EMBEDDING_DIMENSION", 384),

		PostgresHost:     envOr("POSTGRES_HOST", "127.0.0.1"),
		PostgresPort:     envOrInt("POSTGRES_PORT", 5432),
		PostgresUser:     envOr("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       envOr("POSTGRES_DB", "gitlab_rag"),
		PostgresSSLMode:  envOr("POSTGRES_SSLMODE", "disable"),

		QdrantHost: envOr("QDRANT_HOST", "127.0.0.1"),
		QdrantPort: envOrInt("QDRANT_PORT", 6334),

		RedisAddr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:       envOrInt("REDIS_DB", 0),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ChunkSize:    envOrInt("CHUNK_SIZE", 512),
		ChunkOverlap: envOrInt("CHUNK_OVERLAP", 50),
		TopKResults:  envOrInt("TOP_K_RESULTS", 10),
		ReposPath:    envOr("REPOS_PATH", "/app/repos"),

		HTTPPort:     envOrInt("HTTP_PORT", 8080),
		WorkerCount:  envOrInt("WORKER_COUNT", 4),
		SyncInterval: envOrInt("SYNC_INTERVAL_SECONDS", 120),
	}

	if cfg.EmbeddingProvider != "openai" && cfg.EmbeddingProvider != "local" {
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER %q, want openai or local", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingProvider == "local" && cfg.LocalEmbeddingURL == "" {
		return nil, fmt.Errorf("LOCAL_EMBEDDING_URL is required when EMBEDDING_PROVIDER=local")
	}

	return cfg, nil
}

// PostgresDSN builds a libpq-style connection string for pgxpool.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// QdrantAddr returns the gRPC dial target for Qdrant.
func (c *Config) QdrantAddr() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
