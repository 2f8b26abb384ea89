package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/fetcher"
)

// schedulerRunTimeout bounds a single scheduled run.
const schedulerRunTimeout = 2 * time.Hour

// cronLogger adapts common.Logger to cron.Logger.
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("detail", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("detail", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

// StartScheduler registers one cron entry per configured tier plus the
// expired-entry cleanup, then starts the scheduler. It does nothing unless
// [scheduler] enabled is set.
func (a *App) StartScheduler() error {
	cfg := a.Config.Scheduler
	if !cfg.Enabled {
		return nil
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	logger := cronLogger{a.Logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if a.Fetcher != nil {
		tiers := make([]string, 0, len(cfg.Tiers))
		for tier := range cfg.Tiers {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)

		for _, tier := range tiers {
			spec := cfg.Tiers[tier]
			if _, ok := a.Config.Tier(tier); !ok {
				return fmt.Errorf("scheduler: %w: %s", fetcher.ErrUnknownTier, tier)
			}
			if _, err := c.AddFunc(spec, func() { a.runScheduledTier(tier) }); err != nil {
				return fmt.Errorf("register tier %s (%s): %w", tier, spec, err)
			}
		}
	} else if len(cfg.Tiers) > 0 {
		a.Logger.Warn().Msg("Scheduler: no market data client, tier runs not registered")
	}

	if cfg.Cleanup != "" {
		if _, err := c.AddFunc(cfg.Cleanup, a.runScheduledCleanup); err != nil {
			return fmt.Errorf("register cleanup (%s): %w", cfg.Cleanup, err)
		}
	}

	c.Start()
	a.scheduler = c
	a.Logger.Info().
		Int("entries", len(c.Entries())).
		Str("timezone", loc.String()).
		Msg("Scheduler started")
	return nil
}

// StopScheduler stops the scheduler and waits for running jobs.
func (a *App) StopScheduler() {
	if a.scheduler == nil {
		return
	}
	<-a.scheduler.Stop().Done()
	a.scheduler = nil
	a.Logger.Info().Msg("Scheduler stopped")
}

func (a *App) runScheduledTier(tier string) {
	ctx, cancel := context.WithTimeout(context.Background(), schedulerRunTimeout)
	defer cancel()
	defer a.recoverJob("tier " + tier)

	summary, err := a.Fetcher.Run(ctx, tier, fetcher.RunOptions{})
	if err != nil {
		a.Logger.Error().Err(err).Str("tier", tier).Msg("Scheduled run failed")
		return
	}
	a.Logger.Info().
		Str("tier", tier).
		Str("status", string(summary.Status)).
		Int("fetched", summary.FetchCount).
		Int64("duration_ms", summary.DurationMS).
		Msg("Scheduled run complete")
}

func (a *App) runScheduledCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer a.recoverJob("cleanup")

	result, err := a.Storage.CleanupExpired(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Scheduled cleanup failed")
		return
	}
	a.Logger.Info().Int("deleted", result.Total()).Msg("Scheduled cleanup complete")
}

func (a *App) recoverJob(name string) {
	if r := recover(); r != nil {
		a.Logger.Error().
			Str("job", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(debug.Stack())).
			Msg("Recovered from panic in scheduled job")
	}
}
