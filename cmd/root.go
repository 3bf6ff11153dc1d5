// Package cmd defines and implements the CLI commands for the toolscout
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toolscout/toolscout/internal/archive"
	"github.com/toolscout/toolscout/internal/classify"
	"github.com/toolscout/toolscout/internal/clock/system"
	"github.com/toolscout/toolscout/internal/config"
	"github.com/toolscout/toolscout/internal/id/uuid"
	"github.com/toolscout/toolscout/internal/llm"
	"github.com/toolscout/toolscout/internal/logging"
	"github.com/toolscout/toolscout/internal/metrics"
	"github.com/toolscout/toolscout/internal/publisher/pubsub"
	"github.com/toolscout/toolscout/internal/scrape"
	"github.com/toolscout/toolscout/internal/store"
)

var cfgFile string

// app holds the wired service dependencies shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	runner   *scrape.Runner
	cleanups []func()
}

func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolscout",
		Short: "Discovers and catalogs developer tools from public sources.",
		Long: `toolscout scrapes GitHub Trending, Hacker News and Product Hunt,
classifies candidates as developer tools via a remote model with keyword
fallbacks, and stores the accepted ones for browsing through an HTTP API.`,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newScrapeCmd(), newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &app{cfg: cfg, logger: logger}
	a.cleanups = append(a.cleanups, func() {
		_ = logger.Sync()
	})

	if err := a.buildStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildRunner(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database configured; tools will not be persisted")
		a.store = store.NoOpStore{}
		return nil
	}
	pg, err := store.NewPostgresStore(ctx, store.PostgresConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	a.store = pg
	a.cleanups = append(a.cleanups, pg.Close)
	return nil
}

func (a *app) buildRunner(ctx context.Context) error {
	classifier := a.buildClassifier()
	blobs, err := a.buildArchive(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return err
	}

	clk := system.New()
	scrapeCfg := a.cfg.Scrape
	scrapers := []scrape.Scraper{
		scrape.NewGitHubTrending(scrape.GitHubConfig{
			UserAgent: scrapeCfg.UserAgent,
			Timeout:   scrapeCfg.Timeout(),
		}, clk),
		scrape.NewHackerNews(scrape.HackerNewsConfig{
			UserAgent: scrapeCfg.UserAgent,
			Timeout:   scrapeCfg.Timeout(),
			MinScore:  scrapeCfg.HackerNewsMinScore,
		}, scrape.HNTop, clk),
		scrape.NewHackerNews(scrape.HackerNewsConfig{
			UserAgent: scrapeCfg.UserAgent,
			Timeout:   scrapeCfg.Timeout(),
			MinScore:  scrapeCfg.ShowHNMinScore,
		}, scrape.HNShow, clk),
	}
	if scrapeCfg.ProductHuntClientID != "" && scrapeCfg.ProductHuntSecret != "" {
		scrapers = append(scrapers, scrape.NewProductHunt(scrape.ProductHuntConfig{
			ClientID:     scrapeCfg.ProductHuntClientID,
			ClientSecret: scrapeCfg.ProductHuntSecret,
			UserAgent:    scrapeCfg.UserAgent,
			Timeout:      scrapeCfg.Timeout(),
		}, clk))
	} else {
		a.logger.Info("product hunt credentials not configured; skipping that source")
	}

	runner, err := scrape.NewRunner(scrape.RunnerOptions{
		Scrapers:      scrapers,
		Classifier:    classifier,
		Store:         a.store,
		Archive:       blobs,
		Publisher:     publisher,
		IDs:           uuid.New(),
		Clock:         clk,
		Logger:        a.logger,
		ArchivePrefix: a.cfg.Archive.Prefix,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	a.runner = runner
	return nil
}

func (a *app) buildClassifier() *classify.Service {
	ccfg := a.cfg.Classifier
	var completer classify.Completer
	if ccfg.APIKey != "" {
		completer = llm.NewClient(llm.Config{
			APIKey:  ccfg.APIKey,
			BaseURL: ccfg.BaseURL,
			Model:   ccfg.Model,
			Retry: llm.RetryPolicy{
				MaxAttempts: ccfg.MaxRetries,
			},
			ConnectTimeout: time.Duration(ccfg.ConnectTimeoutMs) * time.Millisecond,
			RequestTimeout: time.Duration(ccfg.RequestTimeoutMs) * time.Millisecond,
		}, a.logger)
	} else {
		a.logger.Warn("no classifier api key; running in keyword-only mode")
	}
	return classify.NewService(classify.Config{
		DisableCache:   ccfg.DisableCache,
		DisableBatch:   ccfg.DisableBatch,
		CacheTTL:       ccfg.CacheTTL(),
		CacheCapacity:  ccfg.CacheCapacity,
		BatchSize:      ccfg.BatchSize,
		MaxConcurrency: ccfg.MaxConcurrency,
	}, completer, a.logger)
}

func (a *app) buildArchive(ctx context.Context) (archive.BlobStore, error) {
	switch {
	case a.cfg.Archive.GCSBucket != "":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.cleanups = append(a.cleanups, func() {
			_ = client.Close()
		})
		return archive.NewGCSStore(client, a.cfg.Archive.GCSBucket)
	case a.cfg.Archive.LocalDir != "":
		return archive.NewLocalStore(a.cfg.Archive.LocalDir)
	default:
		return archive.NoOp{}, nil
	}
}

func (a *app) buildPublisher(ctx context.Context) (scrape.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	publisher, client, err := pubsub.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	a.cleanups = append(a.cleanups, func() {
		_ = client.Close()
	})
	return publisher, nil
}
