package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type TakeawayConfig struct {
	Env      Environment
	Addr     string
	BaseUrl  string
	LogLevel zerolog.Level
	Postgres PostgresConfig
	LLM      LLMConfig
	Progress ProgressConfig
	Ingest   IngestConfig
	Admin    AdminConfig
	Storage  StorageConfig
	Cors     CorsConfig
}

type PostgresConfig struct {
	// A full connection string (e.g. DATABASE_URL on hosted Postgres). Takes
	// precedence over the individual fields.
	Url string

	User     string
	Password string
	Hostname string
	Port     int
	DbName   string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

func (info PostgresConfig) DSN() string {
	if info.Url != "" {
		return info.Url
	}
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type LLMConfig struct {
	BaseUrl    string
	ApiKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

type ProgressConfig struct {
	MaxJobs       int
	TTL           time.Duration
	SweepInterval time.Duration
	Heartbeat     time.Duration
}

type IngestConfig struct {
	MaxIdeas         int
	MaxTranscriptLen int
	PromptCategories []string
}

type AdminConfig struct {
	// Output of `takeaway admin hashtoken`. When empty, admin endpoints are
	// only reachable in the dev environment.
	TokenHash string
}

type StorageConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	Key           string
	Secret        string
	PublicBaseUrl string
}

type CorsConfig struct {
	AllowedOrigins []string
}
