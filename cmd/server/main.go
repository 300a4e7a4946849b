package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/cms-engine/internal/ai"
	"github.com/cms-engine/internal/chat"
	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/internal/embedding"
	"github.com/cms-engine/internal/feed"
	"github.com/cms-engine/internal/ingest"
	"github.com/cms-engine/internal/review"
	"github.com/cms-engine/internal/search"
	"github.com/cms-engine/internal/server"
	"github.com/cms-engine/internal/settings"
	"github.com/cms-engine/internal/storage/gormdb"
	"github.com/cms-engine/internal/translate"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "cms-server",
		Short: "Content engine HTTP API and scheduler",
		Long: `Serves the content-engine API (ingest, review, search, chat, translate)
and runs the periodic feed fetch cycle in-process.`,
		RunE: runServer,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting content engine server")

	repo, err := gormdb.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
	embClient := embedding.NewClient(cfg.Embedding, limiter, log)
	fetcher := feed.NewFetcher(cfg.Ingest.MaxItemsPerSource, cfg.Ingest.PlaceholderImage, limiter, log)

	ingestAgent := ingest.NewAgent(fetcher, aiClient, repo, cfg.Ingest, log)
	workflow := review.NewWorkflow(repo, log)
	ingestor := embedding.NewIngestor(embClient, repo, cfg.Embedding.ChunkTokens, cfg.Embedding.OverlapTokens, log)
	retriever := search.NewRetriever(embClient, repo, log)
	settingsCache := settings.NewCache(repo, 5*time.Minute)
	chatSvc := chat.NewService(aiClient, retriever, repo, settingsCache, cfg.Chat, log)
	defer chatSvc.Close()
	translateSvc := translate.NewService(aiClient, repo, log)

	// Rate-limit counter: Redis when configured, otherwise a single-replica
	// in-memory fallback
	var counter server.Counter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		counter = server.NewRedisCounter(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis rate-limit counter")
	} else {
		counter = server.NewMemoryCounter()
		log.Warn().Msg("Redis not configured, using in-memory rate-limit counter")
	}

	srv := server.New(cfg.Server, cfg.Chat, server.Deps{
		Ingest:     ingestAgent,
		Review:     workflow,
		Ingestor:   ingestor,
		Retriever:  retriever,
		Chat:       chatSvc,
		Translate:  translateSvc,
		Settings:   settingsCache,
		Repository: repo,
		Counter:    counter,
	}, log)

	// Periodic fetch cycle
	var c *cron.Cron
	if cfg.Scheduler.Enabled {
		c = cron.New(cron.WithLogger(cronLogger{log}))
		_, err = c.AddFunc(cfg.Scheduler.FetchCron, func() {
			ctx := context.Background()
			log.Info().Msg("Running scheduled fetch cycle")

			result, err := ingestAgent.Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Scheduled fetch cycle failed")
				return
			}

			log.Info().
				Int("total_fetched", result.TotalFetched).
				Int("total_imported", result.TotalImported).
				Msg("Scheduled fetch cycle completed")
		})
		if err != nil {
			return fmt.Errorf("failed to schedule fetch job: %w", err)
		}
		c.Start()
		log.Info().Str("cron", cfg.Scheduler.FetchCron).Msg("Fetch job scheduled")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	if c != nil {
		c.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// cronLogger adapts our logger to the cron.Logger interface
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Interface("kv", keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Interface("kv", keysAndValues).Msg(msg)
}
