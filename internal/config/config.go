package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	SuppressionSinkLog     = "log"
	SuppressionSinkWebhook = "webhook"
	SuppressionSinkMailgun = "mailgun"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	WorkerPort  int    `env:"WORKER_PORT,default=9091"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	WorkerConcurrency     int `env:"WORKER_CONCURRENCY,default=4"`
	TriageRateLimitPerSec int `env:"TRIAGE_RATE_LIMIT_PER_SEC,default=50"`

	ReferralCodeMaxAttempts  int `env:"REFERRAL_CODE_MAX_ATTEMPTS,default=10"`
	RankCacheTTLSeconds      int `env:"RANK_CACHE_TTL_SECONDS,default=300"`
	RankCacheRefreshSeconds  int `env:"RANK_CACHE_REFRESH_SECONDS,default=60"`
	PendingScanIntervalSecs  int `env:"PENDING_SCAN_INTERVAL_SECONDS,default=30"`
	PendingStaleAfterSeconds int `env:"PENDING_STALE_AFTER_SECONDS,default=120"`

	SuppressionSink       string `env:"SUPPRESSION_SINK,default=log"`
	SuppressionWebhookURL string `env:"SUPPRESSION_WEBHOOK_URL"`
	MailgunDomain         string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey         string `env:"MAILGUN_API_KEY"`

	SNSAutoConfirm bool `env:"SNS_AUTO_CONFIRM,default=false"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.SuppressionSink = strings.ToLower(strings.TrimSpace(c.SuppressionSink))
	switch c.SuppressionSink {
	case SuppressionSinkLog:
	case SuppressionSinkWebhook:
		if strings.TrimSpace(c.SuppressionWebhookURL) == "" {
			return fmt.Errorf("SUPPRESSION_WEBHOOK_URL is required when SUPPRESSION_SINK=webhook")
		}
	case SuppressionSinkMailgun:
		if strings.TrimSpace(c.MailgunDomain) == "" || strings.TrimSpace(c.MailgunAPIKey) == "" {
			return fmt.Errorf("MAILGUN_DOMAIN and MAILGUN_API_KEY are required when SUPPRESSION_SINK=mailgun")
		}
	default:
		return fmt.Errorf("unknown SUPPRESSION_SINK %q", c.SuppressionSink)
	}
	return nil
}

func (c *Config) RankCacheTTL() time.Duration {
	return time.Duration(c.RankCacheTTLSeconds) * time.Second
}

func (c *Config) RankCacheRefreshInterval() time.Duration {
	return time.Duration(c.RankCacheRefreshSeconds) * time.Second
}

func (c *Config) PendingScanInterval() time.Duration {
	return time.Duration(c.PendingScanIntervalSecs) * time.Second
}

func (c *Config) PendingStaleAfter() time.Duration {
	return time.Duration(c.PendingStaleAfterSeconds) * time.Second
}
