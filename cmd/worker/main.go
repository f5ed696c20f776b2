package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/newsletter-engine/internal/config"
	"github.com/kursadbilgin/newsletter-engine/internal/handler"
	"github.com/kursadbilgin/newsletter-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/newsletter-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/newsletter-engine/internal/infra/redis"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"github.com/kursadbilgin/newsletter-engine/internal/service"
	"github.com/kursadbilgin/newsletter-engine/internal/suppression"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}
	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	metrics := observability.NewMetrics()

	userRepo := repository.NewGormUserRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)

	sink, err := newSink(cfg, logger)
	if err != nil {
		logger.Fatal("suppression sink initialization failed", zap.Error(err))
	}

	triageService, err := service.NewTriageService(notificationRepo, sink, logger)
	if err != nil {
		logger.Fatal("triage service initialization failed", zap.Error(err))
	}
	triageService.SetMetrics(metrics)

	limiter, err := infraredis.NewRateLimiter(rdb, cfg.TriageRateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)
	workerService, err := service.NewWorkerService(notificationRepo, consumer, triageService, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker service initialization failed", zap.Error(err))
	}
	workerService.SetMetrics(metrics)

	publisher := queue.NewRabbitMQPublisher(mq)
	scanner, err := service.NewPendingScanner(notificationRepo, publisher,
		cfg.PendingScanInterval(), cfg.PendingStaleAfter(), 0, logger)
	if err != nil {
		logger.Fatal("pending scanner initialization failed", zap.Error(err))
	}
	scanner.SetMetrics(metrics)

	tierCache, err := infraredis.NewReferralTierCache(rdb, userRepo, cfg.RankCacheTTL(), logger)
	if err != nil {
		logger.Fatal("referral tier cache initialization failed", zap.Error(err))
	}
	warmer, err := service.NewRankCacheWarmer(tierCache, cfg.RankCacheRefreshInterval(), logger)
	if err != nil {
		logger.Fatal("rank cache warmer initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: "newsletter-engine-worker", DisableStartupMessage: true})
	handler.RegisterHealthRoutes(app, map[string]handler.Pinger{
		"postgres": postgresql.NewPinger(db),
		"redis":    infraredis.NewPinger(rdb),
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerService.Start(groupCtx) })
	g.Go(func() error { return scanner.Start(groupCtx) })
	g.Go(func() error { return warmer.Start(groupCtx) })
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("newsletter-engine worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("suppressionSink", cfg.SuppressionSink),
	)
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("newsletter-engine worker stopped")
}

func newSink(cfg *config.Config, logger *zap.Logger) (suppression.Sink, error) {
	switch cfg.SuppressionSink {
	case config.SuppressionSinkWebhook:
		return suppression.NewWebhookSink(cfg.SuppressionWebhookURL)
	case config.SuppressionSinkMailgun:
		return suppression.NewMailgunSink(cfg.MailgunDomain, cfg.MailgunAPIKey)
	default:
		return suppression.NewLogSink(logger), nil
	}
}
