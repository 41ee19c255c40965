package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Loaded once at startup. Everything in the app reads from here.
var Config TakeawayConfig

func init() {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	Config = cfg
}

// Load reads configuration from the environment and, if present, a
// takeaway.yaml file in the working directory (or the path in
// TAKEAWAY_CONFIG). Environment variables win over the file.
func Load() (TakeawayConfig, error) {
	v := viper.New()

	v.SetConfigName("takeaway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := os.Getenv("TAKEAWAY_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("TAKEAWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names common hosting platforms set.
	v.BindEnv("llm.apikey", "TAKEAWAY_LLM_APIKEY", "ANTHROPIC_API_KEY")
	v.BindEnv("postgres.url", "TAKEAWAY_POSTGRES_URL", "DATABASE_URL")
	v.BindEnv("port", "TAKEAWAY_PORT", "PORT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return TakeawayConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg TakeawayConfig

	cfg.Env = Environment(v.GetString("env"))
	cfg.Addr = v.GetString("addr")
	if cfg.Addr == "" {
		cfg.Addr = ":" + v.GetString("port")
	}
	cfg.BaseUrl = strings.TrimSuffix(v.GetString("baseurl"), "/")

	logLevel, err := zerolog.ParseLevel(v.GetString("loglevel"))
	if err != nil {
		return TakeawayConfig{}, fmt.Errorf("bad log level: %w", err)
	}
	cfg.LogLevel = logLevel

	cfg.Postgres.Url = v.GetString("postgres.url")
	cfg.Postgres.User = v.GetString("postgres.user")
	cfg.Postgres.Password = v.GetString("postgres.password")
	cfg.Postgres.Hostname = v.GetString("postgres.hostname")
	cfg.Postgres.Port = v.GetInt("postgres.port")
	cfg.Postgres.DbName = v.GetString("postgres.dbname")
	cfg.Postgres.MinConn = v.GetInt32("postgres.minconn")
	cfg.Postgres.MaxConn = v.GetInt32("postgres.maxconn")
	pgLogLevel, err := tracelog.LogLevelFromString(v.GetString("postgres.loglevel"))
	if err != nil {
		return TakeawayConfig{}, fmt.Errorf("bad postgres log level: %w", err)
	}
	cfg.Postgres.LogLevel = pgLogLevel

	cfg.LLM.BaseUrl = strings.TrimSuffix(v.GetString("llm.baseurl"), "/")
	cfg.LLM.ApiKey = v.GetString("llm.apikey")
	cfg.LLM.Model = v.GetString("llm.model")
	cfg.LLM.MaxTokens = v.GetInt("llm.maxtokens")
	cfg.LLM.Timeout = v.GetDuration("llm.timeout")
	cfg.LLM.MaxRetries = v.GetInt("llm.maxretries")

	cfg.Progress.MaxJobs = v.GetInt("progress.maxjobs")
	cfg.Progress.TTL = v.GetDuration("progress.ttl")
	cfg.Progress.SweepInterval = v.GetDuration("progress.sweepinterval")
	cfg.Progress.Heartbeat = v.GetDuration("progress.heartbeat")

	cfg.Ingest.MaxIdeas = v.GetInt("ingest.maxideas")
	cfg.Ingest.MaxTranscriptLen = v.GetInt("ingest.maxtranscriptlen")
	cfg.Ingest.PromptCategories = v.GetStringSlice("ingest.promptcategories")

	cfg.Admin.TokenHash = v.GetString("admin.tokenhash")

	cfg.Storage.Endpoint = v.GetString("storage.endpoint")
	cfg.Storage.Region = v.GetString("storage.region")
	cfg.Storage.Bucket = v.GetString("storage.bucket")
	cfg.Storage.Key = v.GetString("storage.key")
	cfg.Storage.Secret = v.GetString("storage.secret")
	cfg.Storage.PublicBaseUrl = strings.TrimSuffix(v.GetString("storage.publicbaseurl"), "/")

	cfg.Cors.AllowedOrigins = v.GetStringSlice("cors.allowedorigins")

	if err := validate(cfg); err != nil {
		return TakeawayConfig{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", string(Dev))
	v.SetDefault("port", "3001")
	v.SetDefault("baseurl", "http://localhost:3001")
	v.SetDefault("loglevel", "info")

	v.SetDefault("postgres.user", "takeaway")
	v.SetDefault("postgres.password", "password")
	v.SetDefault("postgres.hostname", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.dbname", "takeaway")
	v.SetDefault("postgres.loglevel", "warn")
	v.SetDefault("postgres.minconn", 2)
	v.SetDefault("postgres.maxconn", 10)

	v.SetDefault("llm.baseurl", "https://api.anthropic.com")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.maxtokens", 4096)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.maxretries", 2)

	v.SetDefault("progress.maxjobs", 1024)
	v.SetDefault("progress.ttl", 10*time.Minute)
	v.SetDefault("progress.sweepinterval", time.Minute)
	v.SetDefault("progress.heartbeat", 15*time.Second)

	v.SetDefault("ingest.maxideas", 7)
	v.SetDefault("ingest.maxtranscriptlen", 500_000)
	v.SetDefault("ingest.promptcategories", []string{
		"Productivity",
		"Marketing",
		"Leadership",
		"Strategy",
		"Mindset",
		"Innovation",
	})

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "takeaway-images")

	v.SetDefault("cors.allowedorigins", []string{"*"})
}

func validate(cfg TakeawayConfig) error {
	switch cfg.Env {
	case Live, Beta, Dev:
	default:
		return fmt.Errorf("env must be one of live, beta, dev (got %q)", cfg.Env)
	}
	if cfg.Env == Live && cfg.Admin.TokenHash == "" {
		return fmt.Errorf("admin.tokenhash is required in the live environment")
	}
	if cfg.Ingest.MaxIdeas < 1 {
		return fmt.Errorf("ingest.maxideas must be at least 1")
	}
	if cfg.Progress.MaxJobs < 1 {
		return fmt.Errorf("progress.maxjobs must be at least 1")
	}
	return nil
}
