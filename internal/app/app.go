// Package app wires configuration, storage, upstream clients and services
// into one App shared by cmd/etf-server and cmd/etf-fetch.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bdtoconnect-creator/etf-compass/internal/clients/polygon"
	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/analysis"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/fetcher"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/markethours"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/quote"
	"github.com/bdtoconnect-creator/etf-compass/internal/storage"
)

// App holds all initialized services and clients.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	Storage      interfaces.StorageManager
	MarketClient interfaces.MarketDataClient // nil without a Polygon key
	Gate         *markethours.Gate
	Analysis     *analysis.Manager
	Fetcher      *fetcher.Service // nil without a market data client
	Quotes       *quote.Service
	StartupTime  time.Time

	scheduler *cron.Cron
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, ETF_CONFIG, the
// binary directory, then config/etf-compass.toml for development.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("ETF_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "etf-compass.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/etf-compass.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and builds the App.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}
	logger := common.NewLoggerFromConfig(config.Logging)

	return New(ctx, config, logger)
}

// New builds the App from a resolved config. A missing Polygon key or the
// absence of any healthy AI provider is logged, not fatal.
func New(ctx context.Context, config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	for _, missing := range config.ValidateRequired() {
		logger.Warn().Str("setting", missing).Msg("Required setting not configured")
	}

	storageManager, err := storage.NewStorageManager(ctx, logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var marketClient interfaces.MarketDataClient
	if key := config.Clients.Polygon.APIKey; key != "" {
		pc := config.Clients.Polygon
		marketClient = polygon.NewClient(key,
			polygon.WithBaseURL(pc.BaseURL),
			polygon.WithLogger(logger),
			polygon.WithRateLimit(pc.RateLimit),
			polygon.WithTimeout(pc.GetTimeout()),
			polygon.WithMaxRetries(pc.MaxRetries),
		)
	} else {
		logger.Warn().Msg("Polygon API key not configured - fetch tiers and quote refetch are unavailable")
	}

	gate := markethours.NewGate(config.Market)

	manager := analysis.NewManager(config.AI,
		analysis.WithLogger(logger),
		analysis.WithCandidates(analysis.CandidatesFromConfig(config, logger)...),
		analysis.WithEventSink(func(ev analysis.RoutingEvent) {
			logger.Info().
				Str("event", ev.Kind).
				Str("role", string(ev.Role)).
				Str("from", ev.From).
				Str("to", ev.To).
				Msg("AI routing changed")
		}),
	)
	if err := manager.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("AI analysis unavailable")
	}

	var fetchService *fetcher.Service
	if marketClient != nil {
		opts := []fetcher.Option{fetcher.WithLogger(logger)}
		if config.AI.ScoreTopPicks && manager.Stats().Initialized {
			opts = append(opts, fetcher.WithScorer(manager))
		}
		fetchService = fetcher.NewService(marketClient, storageManager, gate, config.Fetch, opts...)
	}

	quoteOpts := []quote.Option{quote.WithLogger(logger)}
	if marketClient != nil {
		quoteOpts = append(quoteOpts, quote.WithClient(marketClient))
	}
	if tier, ok := config.Tier("realtime"); ok {
		quoteOpts = append(quoteOpts, quote.WithQuoteTTL(tier.GetQuoteTTL()))
	}

	a := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storageManager,
		MarketClient: marketClient,
		Gate:         gate,
		Analysis:     manager,
		Fetcher:      fetchService,
		Quotes:       quote.NewService(storageManager, quoteOpts...),
		StartupTime:  startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, close storage.
func (a *App) Close() {
	a.StopScheduler()
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
		a.Storage = nil
	}
}
