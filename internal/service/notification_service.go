package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"github.com/kursadbilgin/newsletter-engine/internal/ses"
	"go.uber.org/zap"
)

// SubscriptionConfirmer confirms SNS topic subscriptions.
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, env ses.Envelope) error
}

// NotificationService stores SNS deliveries and queues them for triage.
type NotificationService struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	confirmer     SubscriptionConfirmer
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewNotificationService builds the service. A nil confirmer leaves
// subscription confirmations to an operator.
func NewNotificationService(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	confirmer SubscriptionConfirmer,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		publisher:     publisher,
		confirmer:     confirmer,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *NotificationService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Ingest persists the raw SNS delivery as NEW and enqueues it for triage. A
// failed publish is logged and left for the pending scanner.
func (s *NotificationService) Ingest(ctx context.Context, headers map[string]string, body []byte) (*domain.InboundNotification, error) {
	rawHeaders, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}

	notification := &domain.InboundNotification{
		ID:      uuid.NewString(),
		Headers: rawHeaders,
		Data:    json.RawMessage(body),
		AddedAt: s.now().UTC(),
		State:   domain.StateNew,
	}
	if err := notification.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("notificationId", notification.ID))

	env, envErr := ses.ParseEnvelope(body)
	envelopeType := ""
	if envErr == nil {
		envelopeType = env.Type
	}
	s.metrics.IncNotificationIngested(envelopeType)

	switch {
	case envelopeType == ses.TypeSubscriptionConfirmation && s.confirmer != nil:
		if err := s.confirmer.Confirm(ctx, env); err != nil {
			logger.Error("sns subscription confirmation failed", zap.String("topicArn", env.TopicArn), zap.Error(err))
		} else {
			logger.Info("sns subscription confirmed", zap.String("topicArn", env.TopicArn))
		}
	case envelopeType == ses.TypeUnsubscribeConfirmation:
		logger.Warn("sns topic subscription removed", zap.String("topicArn", env.TopicArn))
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	msg := queue.TriageMessage{
		NotificationID: notification.ID,
		CorrelationID:  correlationID,
		Source:         queue.SourceIngest,
	}
	if err := s.publisher.Publish(ctx, queue.TriageQueue, msg); err != nil {
		logger.Warn("failed to enqueue notification for triage; pending scanner will retry", zap.Error(err))
	}

	return notification, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.InboundNotification, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid notification id %q", domain.ErrValidation, id)
	}
	return s.notifications.GetByID(ctx, id)
}
