package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"go.uber.org/zap"
)

const defaultRankCacheRefresh = time.Minute

// TierRefresher recomputes and stores the referral tier aggregate.
type TierRefresher interface {
	Refresh(ctx context.Context) ([]referral.TierCount, error)
}

// RankCacheWarmer keeps the referral tier cache populated so that rank
// requests rarely pay for the grouped query.
type RankCacheWarmer struct {
	refresher TierRefresher
	interval  time.Duration
	logger    *zap.Logger
}

func NewRankCacheWarmer(refresher TierRefresher, interval time.Duration, logger *zap.Logger) (*RankCacheWarmer, error) {
	if refresher == nil {
		return nil, fmt.Errorf("tier refresher is required")
	}
	if interval <= 0 {
		interval = defaultRankCacheRefresh
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RankCacheWarmer{refresher: refresher, interval: interval, logger: logger}, nil
}

// Start runs the refresh job immediately and then every interval until ctx is
// canceled.
func (w *RankCacheWarmer) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.refresh, ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule referral tier refresh: %w", err)
	}

	scheduler.Start()
	w.logger.Info("referral tier cache warmer started", zap.Duration("interval", w.interval))

	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

func (w *RankCacheWarmer) refresh(ctx context.Context) {
	tiers, err := w.refresher.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("referral tier refresh failed", zap.Error(err))
		}
		return
	}
	w.logger.Debug("referral tiers refreshed", zap.Int("tiers", len(tiers)))
}
