package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"go.uber.org/zap"
)

func newTestReferralService(t *testing.T, users *fakeUserRepo, tiers TierSource, gen CodeGenerator) *ReferralService {
	t.Helper()

	svc, err := NewReferralService(users, tiers, gen, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReferralService() error = %v", err)
	}
	return svc
}

func sequenceGenerator(codes ...string) *fakeGenerator {
	i := 0
	return &fakeGenerator{
		generateFn: func(context.Context, string) (string, error) {
			code := codes[i%len(codes)]
			i++
			return code, nil
		},
	}
}

func TestReferralService_EnsureReferralCode(t *testing.T) {
	t.Parallel()

	t.Run("assigns a new code", func(t *testing.T) {
		t.Parallel()

		var stored string
		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1", Email: "alice@example.com"}, nil
			},
			setReferralCodeFn: func(_ context.Context, _ string, code string) error {
				stored = code
				return nil
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALIC42"))

		user, err := svc.EnsureReferralCode(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("EnsureReferralCode() error = %v", err)
		}
		if user.ReferralCode != "ALIC42" || stored != "ALIC42" {
			t.Fatalf("expected ALIC42 assigned, got user=%q stored=%q", user.ReferralCode, stored)
		}
	})

	t.Run("existing code is never regenerated", func(t *testing.T) {
		t.Parallel()

		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1", Email: "alice@example.com", ReferralCode: "ALICE1"}, nil
			},
			setReferralCodeFn: func(context.Context, string, string) error {
				t.Fatal("SetReferralCode must not be called")
				return nil
			},
		}
		gen := &fakeGenerator{generateFn: func(context.Context, string) (string, error) {
			t.Fatal("Generate must not be called")
			return "", nil
		}}
		svc := newTestReferralService(t, users, nil, gen)

		user, err := svc.EnsureReferralCode(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("EnsureReferralCode() error = %v", err)
		}
		if user.ReferralCode != "ALICE1" {
			t.Fatalf("ReferralCode = %q, want ALICE1", user.ReferralCode)
		}
	})

	t.Run("retries after a reservation conflict", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1", Email: "alice@example.com"}, nil
			},
			setReferralCodeFn: func(_ context.Context, _ string, code string) error {
				attempts++
				if code == "ALICAA" {
					return domain.ErrConflict
				}
				return nil
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA", "ALICBB"))

		user, err := svc.EnsureReferralCode(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("EnsureReferralCode() error = %v", err)
		}
		if user.ReferralCode != "ALICBB" || attempts != 2 {
			t.Fatalf("expected ALICBB after 2 attempts, got %q after %d", user.ReferralCode, attempts)
		}
	})

	t.Run("gives up after bounded conflicts", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1", Email: "alice@example.com"}, nil
			},
			setReferralCodeFn: func(context.Context, string, string) error {
				attempts++
				return domain.ErrConflict
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

		_, err := svc.EnsureReferralCode(context.Background(), "u-1")
		if !errors.Is(err, domain.ErrReferralCodeExhausted) {
			t.Fatalf("EnsureReferralCode() error = %v, want ErrReferralCodeExhausted", err)
		}
		if attempts != defaultReservationRounds {
			t.Fatalf("attempts = %d, want %d", attempts, defaultReservationRounds)
		}
	})

	t.Run("returns the code assigned concurrently", func(t *testing.T) {
		t.Parallel()

		reads := 0
		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				reads++
				if reads == 1 {
					return &domain.User{ID: "u-1", Email: "alice@example.com"}, nil
				}
				return &domain.User{ID: "u-1", Email: "alice@example.com", ReferralCode: "ALICZZ"}, nil
			},
			setReferralCodeFn: func(context.Context, string, string) error {
				return domain.ErrNotFound
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

		user, err := svc.EnsureReferralCode(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("EnsureReferralCode() error = %v", err)
		}
		if user.ReferralCode != "ALICZZ" {
			t.Fatalf("ReferralCode = %q, want ALICZZ", user.ReferralCode)
		}
	})

	t.Run("generator exhaustion is surfaced", func(t *testing.T) {
		t.Parallel()

		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1", Email: "alice@example.com"}, nil
			},
		}
		gen := &fakeGenerator{generateFn: func(context.Context, string) (string, error) {
			return "", domain.ErrReferralCodeExhausted
		}}
		svc := newTestReferralService(t, users, nil, gen)

		if _, err := svc.EnsureReferralCode(context.Background(), "u-1"); !errors.Is(err, domain.ErrReferralCodeExhausted) {
			t.Fatalf("EnsureReferralCode() error = %v, want ErrReferralCodeExhausted", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		svc := newTestReferralService(t, &fakeUserRepo{}, nil, sequenceGenerator("ALICAA"))
		if _, err := svc.EnsureReferralCode(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("EnsureReferralCode() error = %v, want ErrNotFound", err)
		}
	})
}

func TestReferralService_Rank(t *testing.T) {
	t.Parallel()

	tiers := []referral.TierCount{
		{Referrals: 1, Referrers: 5},
		{Referrals: 2, Referrers: 3},
		{Referrals: 4, Referrers: 1},
		{Referrals: 7, Referrers: 1},
	}

	t.Run("uses the tier source", func(t *testing.T) {
		t.Parallel()

		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1"}, nil
			},
			countReferredByFn: func(context.Context, string) (int, error) { return 2, nil },
			countActiveFn:     func(context.Context) (int, error) { return 40, nil },
			referralTiersFn: func(context.Context) ([]referral.TierCount, error) {
				t.Fatal("repository tiers must not be used when a tier source is set")
				return nil, nil
			},
		}
		source := &fakeUserRepo{
			referralTiersFn: func(context.Context) ([]referral.TierCount, error) { return tiers, nil },
		}
		svc := newTestReferralService(t, users, source, sequenceGenerator("ALICAA"))

		rank, err := svc.Rank(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if rank != (referral.Rank{Percentile: 12, Position: 3}) {
			t.Fatalf("Rank() = %+v, want {12 3}", rank)
		}
	})

	t.Run("zero referrals skips the tier query", func(t *testing.T) {
		t.Parallel()

		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1"}, nil
			},
			countActiveFn: func(context.Context) (int, error) { return 40, nil },
			referralTiersFn: func(context.Context) ([]referral.TierCount, error) {
				t.Fatal("tiers must not be loaded for a user without referrals")
				return nil, nil
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

		rank, err := svc.Rank(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if rank != (referral.Rank{Percentile: 100, Position: 40}) {
			t.Fatalf("Rank() = %+v, want {100 40}", rank)
		}
	})

	t.Run("no active users", func(t *testing.T) {
		t.Parallel()

		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1"}, nil
			},
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

		if _, err := svc.Rank(context.Background(), "u-1"); !errors.Is(err, domain.ErrPrecondition) {
			t.Fatalf("Rank() error = %v, want ErrPrecondition", err)
		}
	})

	t.Run("tier source error", func(t *testing.T) {
		t.Parallel()

		sourceErr := errors.New("cache and db down")
		users := &fakeUserRepo{
			getByIDFn: func(context.Context, string) (*domain.User, error) {
				return &domain.User{ID: "u-1"}, nil
			},
			countReferredByFn: func(context.Context, string) (int, error) { return 1, nil },
			countActiveFn:     func(context.Context) (int, error) { return 10, nil },
			referralTiersFn:   func(context.Context) ([]referral.TierCount, error) { return nil, sourceErr },
		}
		svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

		if _, err := svc.Rank(context.Background(), "u-1"); !errors.Is(err, sourceErr) {
			t.Fatalf("Rank() error = %v, want wrapped source error", err)
		}
	})
}

func TestReferralService_Summary(t *testing.T) {
	t.Parallel()

	users := &fakeUserRepo{
		getByIDFn: func(context.Context, string) (*domain.User, error) {
			return &domain.User{ID: "u-1", Email: "alice@example.com", ReferralCode: "ALICE1"}, nil
		},
		countReferredByFn:         func(context.Context, string) (int, error) { return 3, nil },
		countActivatedReferralsFn: func(context.Context, string) (int, error) { return 2, nil },
		countOpenedEmailsFn:       func(context.Context, string) (int, error) { return 5, nil },
		countActiveFn:             func(context.Context) (int, error) { return 10, nil },
		referralTiersFn: func(context.Context) ([]referral.TierCount, error) {
			return []referral.TierCount{{Referrals: 1, Referrers: 2}, {Referrals: 3, Referrers: 1}}, nil
		},
	}
	svc := newTestReferralService(t, users, nil, sequenceGenerator("ALICAA"))

	got, err := svc.Summary(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}

	want := ReferralSummary{
		UserID:             "u-1",
		DisplayName:        "alice",
		ReferralCode:       "ALICE1",
		ReferredCount:      3,
		ActivatedReferrals: 2,
		OpenedEmails:       5,
		Rank:               referral.Rank{Percentile: 10, Position: 1},
	}
	if *got != want {
		t.Fatalf("Summary() = %+v, want %+v", *got, want)
	}
}

func TestNewReferralService_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewReferralService(nil, nil, sequenceGenerator("A"), nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewReferralService(&fakeUserRepo{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil generator")
	}
}
