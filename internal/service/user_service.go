package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"go.uber.org/zap"
)

// TierInvalidator drops cached leaderboard data after a new referral.
type TierInvalidator interface {
	Invalidate(ctx context.Context) error
}

type CreateUserInput struct {
	Email        string
	FirstName    string
	LastName     string
	ReferralCode string
	BestUser     bool
}

type UserService struct {
	users       repository.UserRepository
	referrals   *ReferralService
	invalidator TierInvalidator
	logger      *zap.Logger
}

func NewUserService(
	users repository.UserRepository,
	referrals *ReferralService,
	invalidator TierInvalidator,
	logger *zap.Logger,
) (*UserService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if referrals == nil {
		return nil, fmt.Errorf("referral service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserService{
		users:       users,
		referrals:   referrals,
		invalidator: invalidator,
		logger:      logger,
	}, nil
}

// Create subscribes a new user, links them to the owner of the referral code
// they signed up with and assigns their own code. When no code can be
// reserved the user is still returned, without a code.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     domain.NormalizeEmail(in.Email),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsActive:  true,
		BestUser:  in.BestUser,
	}

	if code := domain.NormalizeReferralCode(in.ReferralCode); code != "" {
		if !domain.IsReferralCode(code) {
			return nil, fmt.Errorf("%w: invalid referral code %q", domain.ErrValidation, code)
		}
		referrer, err := s.users.GetByReferralCode(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown referral code %q", domain.ErrValidation, code)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve referral code: %w", err)
		}
		user.ReferredByID = &referrer.ID
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, fmt.Errorf("%w: email %s is already subscribed", domain.ErrConflict, user.Email)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: email %s is already subscribed", domain.ErrConflict, user.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("userId", user.ID))
	logger.Info("user subscribed", zap.Bool("referred", user.ReferredByID != nil))

	if user.ReferredByID != nil && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("failed to invalidate referral tiers", zap.Error(err))
		}
	}

	withCode, err := s.referrals.EnsureReferralCode(ctx, user.ID)
	if err != nil {
		logger.Warn("referral code not assigned on signup", zap.Error(err))
		return user, nil
	}
	return withCode, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return nil, fmt.Errorf("%w: invalid user id %q", domain.ErrValidation, id)
	}
	return s.users.GetByID(ctx, strings.TrimSpace(id))
}
