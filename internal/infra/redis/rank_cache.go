package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	referralTiersKey       = "newsletter:referral:tiers"
	defaultReferralTierTTL = 5 * time.Minute
)

// TierSource produces the grouped referral counts, normally from the database.
type TierSource interface {
	ReferralTiers(ctx context.Context) ([]referral.TierCount, error)
}

type CacheOption func(*ReferralTierCache)

// WithCacheObserver registers callbacks for cache hits and misses.
func WithCacheObserver(onHit, onMiss func()) CacheOption {
	return func(c *ReferralTierCache) {
		if onHit != nil {
			c.onHit = onHit
		}
		if onMiss != nil {
			c.onMiss = onMiss
		}
	}
}

// ReferralTierCache keeps the leaderboard aggregate in Redis so that rank
// lookups do not re-run the grouped query on every request. Redis failures
// fall through to the source.
type ReferralTierCache struct {
	client *goredis.Client
	source TierSource
	ttl    time.Duration
	logger *zap.Logger
	onHit  func()
	onMiss func()
}

func NewReferralTierCache(
	client *goredis.Client,
	source TierSource,
	ttl time.Duration,
	logger *zap.Logger,
	opts ...CacheOption,
) (*ReferralTierCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if source == nil {
		return nil, fmt.Errorf("tier source is required")
	}
	if ttl <= 0 {
		ttl = defaultReferralTierTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &ReferralTierCache{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
		onHit:  func() {},
		onMiss: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ReferralTierCache) ReferralTiers(ctx context.Context) ([]referral.TierCount, error) {
	raw, err := c.client.Get(ctx, referralTiersKey).Bytes()
	switch {
	case err == nil:
		var tiers []referral.TierCount
		decodeErr := json.Unmarshal(raw, &tiers)
		if decodeErr == nil {
			c.onHit()
			return tiers, nil
		}
		c.logger.Warn("discarding undecodable referral tier cache entry", zap.Error(decodeErr))
	case errors.Is(err, goredis.Nil):
	default:
		c.logger.Warn("referral tier cache read failed", zap.Error(err))
		c.onMiss()
		return c.source.ReferralTiers(ctx)
	}

	c.onMiss()
	return c.Refresh(ctx)
}

// Refresh recomputes the aggregate and stores it with a fresh TTL.
func (c *ReferralTierCache) Refresh(ctx context.Context) ([]referral.TierCount, error) {
	tiers, err := c.source.ReferralTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral tiers: %w", err)
	}

	payload, err := json.Marshal(tiers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode referral tiers: %w", err)
	}
	if err := c.client.Set(ctx, referralTiersKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("referral tier cache write failed", zap.Error(err))
	}

	return tiers, nil
}

// Invalidate drops the cached aggregate; the next read recomputes it.
func (c *ReferralTierCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, referralTiersKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate referral tiers: %w", err)
	}
	return nil
}
