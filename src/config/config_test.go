package config

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.Nil(t, err)

	assert.Equal(t, Dev, cfg.Env)
	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, tracelog.LogLevelWarn, cfg.Postgres.LogLevel)
	assert.Equal(t, 7, cfg.Ingest.MaxIdeas)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Progress.Heartbeat)
	assert.Len(t, cfg.Ingest.PromptCategories, 6)
	assert.Equal(t, []string{"*"}, cfg.Cors.AllowedOrigins)
}

func TestEnvironment(t *testing.T) {
	t.Run("hosting names", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("DATABASE_URL", "postgres://u:p@db.internal:5432/takeaway")
		t.Setenv("ANTHROPIC_API_KEY", "sk-test")

		cfg, err := Load()
		require.Nil(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, "postgres://u:p@db.internal:5432/takeaway", cfg.Postgres.DSN())
		assert.Equal(t, "sk-test", cfg.LLM.ApiKey)
	})
	t.Run("addr wins over port", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("TAKEAWAY_ADDR", "127.0.0.1:9999")

		cfg, err := Load()
		require.Nil(t, err)
		assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	})
	t.Run("nested keys", func(t *testing.T) {
		t.Setenv("TAKEAWAY_INGEST_MAXIDEAS", "3")
		t.Setenv("TAKEAWAY_BASEURL", "https://takeaway.example/")

		cfg, err := Load()
		require.Nil(t, err)
		assert.Equal(t, 3, cfg.Ingest.MaxIdeas)
		assert.Equal(t, "https://takeaway.example", cfg.BaseUrl)
	})
}

func TestValidation(t *testing.T) {
	t.Run("unknown env", func(t *testing.T) {
		t.Setenv("TAKEAWAY_ENV", "staging")
		_, err := Load()
		assert.ErrorContains(t, err, "env must be one of")
	})
	t.Run("live needs an admin token", func(t *testing.T) {
		t.Setenv("TAKEAWAY_ENV", "live")
		_, err := Load()
		assert.ErrorContains(t, err, "admin.tokenhash")
	})
	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("TAKEAWAY_LOGLEVEL", "loud")
		_, err := Load()
		assert.ErrorContains(t, err, "bad log level")
	})
	t.Run("no ideas", func(t *testing.T) {
		t.Setenv("TAKEAWAY_INGEST_MAXIDEAS", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "ingest.maxideas")
	})
}

func TestDSN(t *testing.T) {
	cfg := PostgresConfig{User: "takeaway", Password: "pw", Hostname: "localhost", Port: 5432, DbName: "takeaway"}
	assert.Equal(t, "user=takeaway password=pw host=localhost port=5432 dbname=takeaway", cfg.DSN())
}
