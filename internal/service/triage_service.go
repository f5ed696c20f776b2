package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"github.com/kursadbilgin/newsletter-engine/internal/ses"
	"github.com/kursadbilgin/newsletter-engine/internal/suppression"
	"go.uber.org/zap"
)

// Failure reasons reported on triage metrics.
const (
	reasonMalformedPayload = "malformed_payload"
	reasonNotNotification  = "not_a_notification"
	reasonMalformedMessage = "malformed_message"
	reasonWrongEventType   = "wrong_event_type"
	reasonMalformedBounce  = "malformed_bounce"
	reasonSinkTransient    = "sink_transient"
	reasonSinkPermanent    = "sink_permanent"
)

// TriageService classifies one stored SNS notification, hands permanently
// bounced addresses to the suppression sink and records the outcome.
type TriageService struct {
	notifications repository.NotificationRepository
	sink          suppression.Sink
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewTriageService(
	notifications repository.NotificationRepository,
	sink suppression.Sink,
	logger *zap.Logger,
) (*TriageService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("suppression sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TriageService{
		notifications: notifications,
		sink:          sink,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *TriageService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Triage moves n from NEW to PROCESSED or FAILED. Payload problems end up in
// the stored processing error; the returned error is non-nil only when the
// result could not be persisted. Calling it again on a notification that has
// already left NEW overwrites the earlier result.
func (s *TriageService) Triage(ctx context.Context, n *domain.InboundNotification) (domain.State, error) {
	if n == nil {
		return "", fmt.Errorf("notification is required")
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("notificationId", n.ID))
	if n.State.IsTerminal() {
		logger.Warn("triaging notification that already left NEW", zap.String("state", n.State.String()))
	}

	bounced, reason, triageErr := s.evaluate(ctx, n)

	state := domain.StateProcessed
	var processingError *string
	if triageErr != nil {
		state = domain.StateFailed
		msg := domain.TruncateProcessingError(triageErr.Error())
		processingError = &msg
	}

	processedAt := s.now().UTC()
	if err := s.notifications.UpdateTriageResult(ctx, n.ID, state, processedAt, processingError); err != nil {
		return "", fmt.Errorf("failed to persist triage result: %w", err)
	}

	n.State = state
	n.LastProcessedAt = &processedAt
	n.ProcessingError = processingError

	if s.metrics != nil {
		s.metrics.IncTriageOutcome(state.String(), reason)
		s.metrics.AddBouncedAddresses(bounced)
	}

	if triageErr != nil {
		logger.Info("notification triage failed",
			zap.String("reason", reason),
			zap.Int("suppressed", bounced),
			zap.Error(triageErr),
		)
	} else {
		logger.Info("notification triaged", zap.Int("suppressed", bounced))
	}

	return state, nil
}

// evaluate runs the classification steps and reports how many addresses were
// handed off before any failure.
func (s *TriageService) evaluate(ctx context.Context, n *domain.InboundNotification) (int, string, error) {
	env, err := ses.ParseEnvelope(n.Data)
	if err != nil {
		return 0, reasonMalformedPayload, err
	}
	if !env.IsNotification() {
		return 0, reasonNotNotification, ses.ErrNotNotification
	}

	event, err := env.Event()
	if err != nil {
		return 0, reasonMalformedMessage, err
	}
	if event.EventType != ses.EventTypeOpen {
		return 0, reasonWrongEventType, ses.ErrWrongEventType
	}

	emails, err := ses.PermanentBouncedEmails(event.Bounce)
	if err != nil {
		return 0, reasonMalformedBounce, err
	}

	for i, email := range emails {
		if err := s.sink.Suppress(ctx, email); err != nil {
			reason := reasonSinkPermanent
			if suppression.IsTransient(err) {
				reason = reasonSinkTransient
			}
			return i, reason, fmt.Errorf("failed to suppress %s: %w", email, err)
		}
	}

	return len(emails), "", nil
}
