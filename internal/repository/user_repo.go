package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)
	SetReferralCode(ctx context.Context, id string, code string) error
	ExistsWithReferralCode(ctx context.Context, code string) (bool, error)
	CountReferredBy(ctx context.Context, id string) (int, error)
	CountActive(ctx context.Context) (int, error)
	ReferralTiers(ctx context.Context) ([]referral.TierCount, error)
	CountActivatedReferrals(ctx context.Context, id string) (int, error)
	CountOpenedEmails(ctx context.Context, id string) (int, error)
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) Create(ctx context.Context, u *domain.User) error {
	model := userModelFromDomain(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return domain.ErrConflict
		}
		return err
	}
	if u != nil {
		*u = *userModelToDomain(model)
	}
	return nil
}

func (r *GormUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormUserRepo) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.first(ctx, "referral_code = ?", code)
}

func (r *GormUserRepo) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return userModelToDomain(&model), nil
}

// SetReferralCode assigns code only while the user has none. It returns
// ErrConflict when another user already holds the code and ErrNotFound when
// the user is missing or already has a code.
func (r *GormUserRepo) SetReferralCode(ctx context.Context, id string, code string) error {
	result := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ? AND referral_code IS NULL", id).
		Update("referral_code", code)
	if result.Error != nil {
		if isUniqueViolationError(result.Error) {
			return domain.ErrConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormUserRepo) ExistsWithReferralCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormUserRepo) CountReferredBy(ctx context.Context, id string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("referred_by_id = ?", id).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormUserRepo) CountActive(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ReferralTiers groups referrers by how many users each one referred, in
// ascending order of that count.
func (r *GormUserRepo) ReferralTiers(ctx context.Context) ([]referral.TierCount, error) {
	perReferrer := r.db.
		Model(&UserModel{}).
		Select("referred_by_id, COUNT(*) AS referral_count").
		Where("referred_by_id IS NOT NULL").
		Group("referred_by_id")

	var tiers []referral.TierCount
	err := r.db.WithContext(ctx).
		Table("(?) AS per_referrer", perReferrer).
		Select("referral_count AS referrals, COUNT(*) AS referrers").
		Group("referral_count").
		Order("referral_count ASC").
		Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// CountActivatedReferrals counts referred users that opened at least one
// sent email.
func (r *GormUserRepo) CountActivatedReferrals(ctx context.Context, id string) (int, error) {
	opened := r.db.
		Model(&SentEmailModel{}).
		Select("1").
		Where("sent_emails.user_id = users.id AND sent_emails.opened_at IS NOT NULL")

	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("referred_by_id = ?", id).
		Where("EXISTS (?)", opened).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormUserRepo) CountOpenedEmails(ctx context.Context, id string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SentEmailModel{}).
		Where("user_id = ? AND opened_at IS NOT NULL", id).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
