package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPendingScanInterval = 30 * time.Second
	defaultPendingStaleAfter   = 2 * time.Minute
	defaultPendingScanLimit    = 100
)

// PendingScanner republishes notifications that stayed NEW for too long,
// typically because the publish after ingest failed.
type PendingScanner struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	staleAfter    time.Duration
	limit         int
	now           func() time.Time
}

func NewPendingScanner(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	interval time.Duration,
	staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*PendingScanner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultPendingScanInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultPendingStaleAfter
	}
	if limit <= 0 {
		limit = defaultPendingScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PendingScanner{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		interval:      interval,
		staleAfter:    staleAfter,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (s *PendingScanner) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

func (s *PendingScanner) Start(ctx context.Context) error {
	if err := s.scanStale(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("pending scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanStale(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("pending scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *PendingScanner) scanStale(ctx context.Context) error {
	olderThan := s.now().UTC().Add(-s.staleAfter)
	stale, err := s.notifications.ListStaleNew(ctx, olderThan, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stale notifications: %w", err)
	}

	for i := range stale {
		msg := queue.TriageMessage{
			NotificationID: stale[i].ID,
			Source:         queue.SourceRescan,
		}
		if err := s.publisher.Publish(ctx, queue.TriageQueue, msg); err != nil {
			s.logger.Error("failed to republish stale notification",
				zap.String("notificationId", stale[i].ID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.IncPendingRequeued()
	}

	if len(stale) > 0 {
		s.logger.Info("republished stale notifications", zap.Int("count", len(stale)))
	}
	return nil
}
