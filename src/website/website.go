package website

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/assets"
	"github.com/thetakeaway/takeaway/src/auth"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/ingest"
	"github.com/thetakeaway/takeaway/src/jobs"
	"github.com/thetakeaway/takeaway/src/llm"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/progress"
	"github.com/thetakeaway/takeaway/src/transcript"
)

type Ingester interface {
	Process(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type ImageUploader interface {
	UploadDigestImage(ctx context.Context, digestID uuid.UUID, filename string, content []byte) (*assets.UploadedImage, error)
}

// Everything a handler might need. Built once at startup.
type Deps struct {
	Env      config.Environment
	Conn     *pgxpool.Pool
	Ingester Ingester
	Progress *progress.Registry

	// Nil when object storage is not configured.
	Images ImageUploader

	// Nil when no admin token is configured.
	AdminToken *auth.HashedToken

	AllowedOrigins []string
	Heartbeat      time.Duration
}

func NewDeps(ctx context.Context, conn *pgxpool.Pool) (*Deps, error) {
	cfg := config.Config

	registry := progress.NewRegistryFromConfig(cfg.Progress)
	relay := llm.NewClient(cfg.LLM)
	orchestrator := ingest.NewOrchestrator(
		ingest.NewPostgresStore(conn),
		relay,
		cfg.Ingest,
		ingest.WithProgress(registry),
		ingest.WithTranscriptFetcher(transcript.NewFetcher(nil)),
	)

	deps := &Deps{
		Env:            cfg.Env,
		Conn:           conn,
		Ingester:       orchestrator,
		Progress:       registry,
		AllowedOrigins: cfg.Cors.AllowedOrigins,
		Heartbeat:      cfg.Progress.Heartbeat,
	}

	if cfg.Admin.TokenHash != "" {
		hashed, err := auth.ParseHashedToken(cfg.Admin.TokenHash)
		if err != nil {
			return nil, err
		}
		deps.AdminToken = &hashed
	} else if cfg.Env == config.Dev {
		logging.Warn().Msg("No admin token configured; admin endpoints are open to everyone")
	}

	images, err := assets.NewStoreFromConfig(ctx, cfg.Storage)
	if err == nil {
		deps.Images = images
	} else if errors.Is(err, assets.ErrStorageNotConfigured) {
		logging.Info().Msg("Object storage is not configured; image uploads are disabled")
	} else {
		return nil, err
	}

	if cfg.LLM.ApiKey == "" {
		logging.Warn().Msg("No LLM API key configured; transcript processing will fail")
	}

	return deps, nil
}

var WebsiteCommand = &cobra.Command{
	Use:   "takeaway",
	Short: "Run The Takeaway API server",
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Msg("Hello, Takeaway!")

		var wg sync.WaitGroup

		conn, err := db.NewConnPool()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to the database")
		}
		defer conn.Close()

		deps, err := NewDeps(context.Background(), conn)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to set up the server")
		}

		// Start background jobs
		wg.Add(1)
		backgroundJobs := jobs.Jobs{
			progress.RunJanitor(deps.Progress, config.Config.Progress.SweepInterval),
		}

		// Create HTTP server
		wg.Add(1)
		server := http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(deps),
		}
		go func() {
			logging.Info().Str("addr", config.Config.Addr).Msg("Serving the API")
			serverErr := server.ListenAndServe()
			if !errors.Is(serverErr, http.ErrServerClosed) {
				logging.Error().Err(serverErr).Msg("Server shut down unexpectedly")
			}
			// The wg.Done() happens in the shutdown logic below.
		}()

		// Wait for SIGINT in the background and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		go func() {
			<-signals // First SIGINT (start shutdown)
			logging.Info().Msg("Shutting down the API")

			const timeout = 10 * time.Second

			go func() {
				logging.Info().Msg("Shutting down background jobs...")
				unfinished := backgroundJobs.CancelAndWait(timeout)
				if len(unfinished) == 0 {
					logging.Info().Msg("Background jobs closed gracefully")
				} else {
					logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
				}
				wg.Done()
			}()

			// Gracefully shut down the HTTP server. Open progress streams are
			// long-lived, so they are cut off at the deadline.
			go func() {
				timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				err := server.Shutdown(timeoutCtx)
				if err != nil {
					logging.Warn().Err(err).Msg("Server did not shut down gracefully")
				}
				wg.Done()
			}()

			<-signals // Second SIGINT (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the API")
			os.Exit(1)
		}()

		// Wait for all of the above to finish, then exit
		wg.Wait()
	},
}
