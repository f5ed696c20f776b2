package ratelimit

import "context"

// Limiter throttles work per scope, e.g. triage jobs pulled off the queue.
type Limiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}

// Unlimited never throttles. It is used when no rate is configured.
type Unlimited struct{}

var _ Limiter = Unlimited{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ string) error { return ctx.Err() }
