package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cms-engine/internal/ai"
	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/internal/embedding"
	"github.com/cms-engine/internal/feed"
	"github.com/cms-engine/internal/ingest"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/review"
	"github.com/cms-engine/internal/search"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/internal/storage/gormdb"
	"github.com/cms-engine/internal/translate"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

var cfgFile string

// app bundles the wired services the CLI commands need.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	repo      *gormdb.Repository
	ingest    *ingest.Agent
	review    *review.Workflow
	ingestor  *embedding.Ingestor
	retriever *search.Retriever
	translate *translate.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err := gormdb.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
	embClient := embedding.NewClient(cfg.Embedding, limiter, log)
	fetcher := feed.NewFetcher(cfg.Ingest.MaxItemsPerSource, cfg.Ingest.PlaceholderImage, limiter, log)

	return &app{
		cfg:       cfg,
		log:       log,
		repo:      repo,
		ingest:    ingest.NewAgent(fetcher, aiClient, repo, cfg.Ingest, log),
		review:    review.NewWorkflow(repo, log),
		ingestor:  embedding.NewIngestor(embClient, repo, cfg.Embedding.ChunkTokens, cfg.Embedding.OverlapTokens, log),
		retriever: search.NewRetriever(embClient, repo, log),
		translate: translate.NewService(aiClient, repo, log),
	}, nil
}

func (a *app) close() {
	a.repo.Close()
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return uint(id), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "cms-cli",
		Short: "Operator CLI for the content engine",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddCommand(
		sourcesCmd(),
		fetchCmd(),
		importsCmd(),
		embeddingsCmd(),
		searchCmd(),
		translateCmd(),
		settingsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage RSS feed sources",
	}

	var name, url string
	var interval int
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a feed source",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			source := &models.FeedSource{
				Name:                 name,
				URL:                  url,
				IsActive:             true,
				FetchIntervalMinutes: interval,
			}
			if err := source.Validate(); err != nil {
				return err
			}
			if err := a.repo.CreateSource(cmd.Context(), source); err != nil {
				return fmt.Errorf("failed to create source: %w", err)
			}
			fmt.Printf("Created source %d (%s)\n", source.ID, source.Name)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "source name")
	addCmd.Flags().StringVar(&url, "url", "", "feed URL")
	addCmd.Flags().IntVar(&interval, "interval", 60, "fetch interval in minutes")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("url")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all feed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.repo.ListSources(cmd.Context(), false)
			if err != nil {
				return err
			}
			for _, s := range sources {
				status := "inactive"
				if s.IsActive {
					status = "active"
				}
				last := "never"
				if s.LastFetchedAt != nil {
					last = s.LastFetchedAt.Format(time.RFC3339)
				}
				fmt.Printf("%4d  %-10s  %-30s  articles=%d  last=%s\n", s.ID, status, s.Name, s.ArticlesCount, last)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func fetchCmd() *cobra.Command {
	var sourceID uint
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a fetch cycle over active sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var result *ingest.RunResult
			if sourceID != 0 {
				result, err = a.ingest.RunSource(cmd.Context(), sourceID)
			} else {
				result, err = a.ingest.Run(cmd.Context())
			}
			if err != nil {
				return err
			}

			for _, sr := range result.PerSource {
				if sr.Error != "" {
					fmt.Printf("%-30s  FAILED: %s\n", sr.SourceName, sr.Error)
					continue
				}
				fmt.Printf("%-30s  fetched=%d imported=%d skipped=%d\n",
					sr.SourceName, sr.Fetched, sr.Imported, sr.Skipped)
			}
			fmt.Printf("Done in %s: %d fetched, %d imported\n",
				result.Duration.Round(time.Millisecond), result.TotalFetched, result.TotalImported)
			return nil
		},
	}
	cmd.Flags().UintVar(&sourceID, "source", 0, "fetch a single source by id")
	return cmd
}

func importsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Review pending imports",
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List imported articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			filter := storage.DefaultImportFilter()
			if status != "" {
				st := models.ImportStatus(status)
				filter.Status = &st
			}
			imports, err := a.repo.ListImports(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, imp := range imports {
				fmt.Printf("%4d  %-8s  %s\n", imp.ID, imp.Status, imp.Title())
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status (pending, approved, rejected)")

	approveCmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an import and publish it as a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			post, err := a.review.Approve(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Published post %d (%s)\n", post.ID, post.Slug)
			return nil
		},
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.review.Reject(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Rejected import %d\n", id)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an import record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.review.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted import %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(listCmd, approveCmd, rejectCmd, deleteCmd)
	return cmd
}

func embeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embeddings",
		Short: "Manage post embeddings",
	}

	var force bool
	ingestCmd := &cobra.Command{
		Use:   "ingest <post-id>",
		Short: "Chunk and embed a published post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			result, err := a.ingestor.Ingest(cmd.Context(), id, force)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %d chunks (%d tokens, %d failed)\n",
				result.Chunks, result.Tokens, result.FailedChunks)
			return nil
		},
	}
	ingestCmd.Flags().BoolVar(&force, "force", false, "embed even if the post is not published")

	cmd.AddCommand(ingestCmd)
	return cmd
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Similarity search over embedded post chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			matches, err := a.retriever.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("post=%d chunk=%d similarity=%.4f\n  %s\n", m.PostID, m.ChunkIndex, m.Similarity, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of matches")
	return cmd
}

func translateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <post-id> <language>",
		Short: "Translate a post, reusing the cached translation if present",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tr, err := a.translate.Translate(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s\n\n%s\n", tr.Title, tr.ContentHTML)
			return nil
		},
	}
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write site settings",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			value, err := a.repo.GetSetting(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.repo.SaveSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
