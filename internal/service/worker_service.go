package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/ratelimit"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	triageRateLimitScope = "sns-triage"
)

// Triager runs triage on a single notification.
type Triager interface {
	Triage(ctx context.Context, n *domain.InboundNotification) (domain.State, error)
}

// WorkerService drains the triage queue. It only hands notifications that
// are still NEW to the triager, so a notification is triaged at most once
// even when its message is delivered twice.
type WorkerService struct {
	notifications repository.NotificationRepository
	consumer      queue.Consumer
	triager       Triager
	limiter       ratelimit.Limiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
}

func NewWorkerService(
	notifications repository.NotificationRepository,
	consumer queue.Consumer,
	triager Triager,
	limiter ratelimit.Limiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if triager == nil {
		return nil, fmt.Errorf("triager is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications: notifications,
		consumer:      consumer,
		triager:       triager,
		limiter:       limiter,
		logger:        logger,
		concurrency:   concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the triage queue with the configured number of consumers
// until ctx is canceled.
func (s *WorkerService) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.TriageQueue),
			)

			if err := s.consumer.Consume(groupCtx, queue.TriageQueue, s.processMessage); err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.TriageMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("notificationId", msg.NotificationID),
		zap.String("source", msg.Source),
	)

	if err := s.limiter.Wait(ctx, triageRateLimitScope); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	claimed, err := s.notifications.ClaimForTriage(ctx, msg.NotificationID, func(ctx context.Context, n *domain.InboundNotification) error {
		s.metrics.IncTriageInFlight()
		defer s.metrics.DecTriageInFlight()

		_, err := s.triager.Triage(ctx, n)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("notification not found, skipping")
		return nil
	case err != nil:
		return fmt.Errorf("triage of notification failed: %w", err)
	case !claimed:
		logger.Debug("notification already triaged, skipping")
	}
	return nil
}
