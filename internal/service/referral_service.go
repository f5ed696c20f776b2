package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"go.uber.org/zap"
)

// defaultReservationRounds bounds how many generated codes may lose the race
// for the unique index before giving up.
const defaultReservationRounds = 3

// CodeGenerator proposes a referral code that is free at the time of the call.
type CodeGenerator interface {
	Generate(ctx context.Context, email string) (string, error)
}

// TierSource returns the grouped referral counts used by the leaderboard.
type TierSource interface {
	ReferralTiers(ctx context.Context) ([]referral.TierCount, error)
}

// ReferralSummary is what a subscriber sees about their own referrals.
type ReferralSummary struct {
	UserID             string
	DisplayName        string
	ReferralCode       string
	ReferredCount      int
	ActivatedReferrals int
	OpenedEmails       int
	Rank               referral.Rank
}

type ReferralService struct {
	users     repository.UserRepository
	tiers     TierSource
	generator CodeGenerator
	logger    *zap.Logger
	metrics   *observability.Metrics
	rounds    int
	now       func() time.Time
}

// NewReferralService builds the service. tiers may be nil, in which case the
// user repository computes the aggregate on every rank request.
func NewReferralService(
	users repository.UserRepository,
	tiers TierSource,
	generator CodeGenerator,
	logger *zap.Logger,
) (*ReferralService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("referral code generator is required")
	}
	if tiers == nil {
		tiers = users
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReferralService{
		users:     users,
		tiers:     tiers,
		generator: generator,
		logger:    logger,
		rounds:    defaultReservationRounds,
		now:       time.Now,
	}, nil
}

func (s *ReferralService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// EnsureReferralCode assigns a code to the user if they have none yet. A code
// once assigned is returned unchanged.
func (s *ReferralService) EnsureReferralCode(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ReferralCode != "" {
		return user, nil
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("userId", user.ID))

	for round := 1; round <= s.rounds; round++ {
		code, err := s.generator.Generate(ctx, user.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}

		err = s.users.SetReferralCode(ctx, user.ID, code)
		switch {
		case err == nil:
			user.ReferralCode = code
			s.metrics.IncReferralCodeAssigned()
			logger.Info("referral code assigned", zap.String("referralCode", code))
			return user, nil
		case errors.Is(err, domain.ErrConflict):
			// Taken between the uniqueness check and the write.
			s.metrics.IncReferralCodeCollision()
			logger.Warn("referral code reservation collided",
				zap.String("referralCode", code),
				zap.Int("round", round),
			)
		case errors.Is(err, domain.ErrNotFound):
			// Someone else assigned a code first.
			current, getErr := s.users.GetByID(ctx, user.ID)
			if getErr != nil {
				return nil, getErr
			}
			if current.ReferralCode == "" {
				return nil, fmt.Errorf("failed to reserve referral code for user %s", user.ID)
			}
			return current, nil
		default:
			return nil, fmt.Errorf("failed to reserve referral code: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: %d reservations collided", domain.ErrReferralCodeExhausted, s.rounds)
}

// Rank places the user on the referral leaderboard.
func (s *ReferralService) Rank(ctx context.Context, userID string) (referral.Rank, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return referral.Rank{}, err
	}

	count, err := s.users.CountReferredBy(ctx, userID)
	if err != nil {
		return referral.Rank{}, fmt.Errorf("failed to count referrals: %w", err)
	}
	return s.rank(ctx, count)
}

func (s *ReferralService) rank(ctx context.Context, count int) (referral.Rank, error) {
	start := s.now()
	defer func() { s.metrics.ObserveReferralRankDuration(s.now().Sub(start)) }()

	total, err := s.users.CountActive(ctx)
	if err != nil {
		return referral.Rank{}, fmt.Errorf("failed to count active users: %w", err)
	}

	var tiers []referral.TierCount
	if count > 0 {
		tiers, err = s.tiers.ReferralTiers(ctx)
		if err != nil {
			return referral.Rank{}, fmt.Errorf("failed to load referral tiers: %w", err)
		}
	}

	return referral.CalculateRank(count, tiers, total)
}

// Summary gathers the referral figures shown to a subscriber.
func (s *ReferralService) Summary(ctx context.Context, userID string) (*ReferralSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.users.CountReferredBy(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	activated, err := s.users.CountActivatedReferrals(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count activated referrals: %w", err)
	}
	opened, err := s.users.CountOpenedEmails(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count opened emails: %w", err)
	}

	rank, err := s.rank(ctx, count)
	if err != nil {
		return nil, err
	}

	return &ReferralSummary{
		UserID:             user.ID,
		DisplayName:        user.DisplayName(),
		ReferralCode:       user.ReferralCode,
		ReferredCount:      count,
		ActivatedReferrals: activated,
		OpenedEmails:       opened,
		Rank:               rank,
	}, nil
}
