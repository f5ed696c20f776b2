package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"github.com/kursadbilgin/newsletter-engine/internal/ses"
)

type fakeNotificationRepo struct {
	createFn             func(ctx context.Context, n *domain.InboundNotification) error
	getByIDFn            func(ctx context.Context, id string) (*domain.InboundNotification, error)
	claimForTriageFn     func(ctx context.Context, id string, fn repository.TriageFunc) (bool, error)
	updateTriageResultFn func(ctx context.Context, id string, state domain.State, processedAt time.Time, processingError *string) error
	listStaleNewFn       func(ctx context.Context, olderThan time.Time, limit int) ([]domain.InboundNotification, error)
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.InboundNotification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.InboundNotification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) ClaimForTriage(ctx context.Context, id string, fn repository.TriageFunc) (bool, error) {
	if f.claimForTriageFn != nil {
		return f.claimForTriageFn(ctx, id, fn)
	}
	return false, domain.ErrNotFound
}

func (f *fakeNotificationRepo) UpdateTriageResult(ctx context.Context, id string, state domain.State, processedAt time.Time, processingError *string) error {
	if f.updateTriageResultFn != nil {
		return f.updateTriageResultFn(ctx, id, state, processedAt, processingError)
	}
	return nil
}

func (f *fakeNotificationRepo) ListStaleNew(ctx context.Context, olderThan time.Time, limit int) ([]domain.InboundNotification, error) {
	if f.listStaleNewFn != nil {
		return f.listStaleNewFn(ctx, olderThan, limit)
	}
	return nil, nil
}

type fakeUserRepo struct {
	createFn                  func(ctx context.Context, u *domain.User) error
	getByIDFn                 func(ctx context.Context, id string) (*domain.User, error)
	getByEmailFn              func(ctx context.Context, email string) (*domain.User, error)
	getByReferralCodeFn       func(ctx context.Context, code string) (*domain.User, error)
	setReferralCodeFn         func(ctx context.Context, id string, code string) error
	existsWithReferralCodeFn  func(ctx context.Context, code string) (bool, error)
	countReferredByFn         func(ctx context.Context, id string) (int, error)
	countActiveFn             func(ctx context.Context) (int, error)
	referralTiersFn           func(ctx context.Context) ([]referral.TierCount, error)
	countActivatedReferralsFn func(ctx context.Context, id string) (int, error)
	countOpenedEmailsFn       func(ctx context.Context, id string) (int, error)
}

func (f *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	if f.getByReferralCodeFn != nil {
		return f.getByReferralCodeFn(ctx, code)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) SetReferralCode(ctx context.Context, id string, code string) error {
	if f.setReferralCodeFn != nil {
		return f.setReferralCodeFn(ctx, id, code)
	}
	return nil
}

func (f *fakeUserRepo) ExistsWithReferralCode(ctx context.Context, code string) (bool, error) {
	if f.existsWithReferralCodeFn != nil {
		return f.existsWithReferralCodeFn(ctx, code)
	}
	return false, nil
}

func (f *fakeUserRepo) CountReferredBy(ctx context.Context, id string) (int, error) {
	if f.countReferredByFn != nil {
		return f.countReferredByFn(ctx, id)
	}
	return 0, nil
}

func (f *fakeUserRepo) CountActive(ctx context.Context) (int, error) {
	if f.countActiveFn != nil {
		return f.countActiveFn(ctx)
	}
	return 0, nil
}

func (f *fakeUserRepo) ReferralTiers(ctx context.Context) ([]referral.TierCount, error) {
	if f.referralTiersFn != nil {
		return f.referralTiersFn(ctx)
	}
	return nil, nil
}

func (f *fakeUserRepo) CountActivatedReferrals(ctx context.Context, id string) (int, error) {
	if f.countActivatedReferralsFn != nil {
		return f.countActivatedReferralsFn(ctx, id)
	}
	return 0, nil
}

func (f *fakeUserRepo) CountOpenedEmails(ctx context.Context, id string) (int, error) {
	if f.countOpenedEmailsFn != nil {
		return f.countOpenedEmailsFn(ctx, id)
	}
	return 0, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.TriageMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.TriageMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeSink struct {
	suppressFn func(ctx context.Context, email string) error
	suppressed []string
}

func (f *fakeSink) Suppress(ctx context.Context, email string) error {
	if f.suppressFn != nil {
		if err := f.suppressFn(ctx, email); err != nil {
			return err
		}
	}
	f.suppressed = append(f.suppressed, email)
	return nil
}

type fakeGenerator struct {
	generateFn func(ctx context.Context, email string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, email string) (string, error) {
	return f.generateFn(ctx, email)
}

type fakeConfirmer struct {
	confirmFn func(ctx context.Context, env ses.Envelope) error
}

func (f *fakeConfirmer) Confirm(ctx context.Context, env ses.Envelope) error {
	return f.confirmFn(ctx, env)
}

type fakeTierRefresher struct {
	refreshFn func(ctx context.Context) ([]referral.TierCount, error)
}

func (f *fakeTierRefresher) Refresh(ctx context.Context) ([]referral.TierCount, error) {
	return f.refreshFn(ctx)
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return f.err
}
