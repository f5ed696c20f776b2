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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/newsletter-engine/internal/config"
	"github.com/kursadbilgin/newsletter-engine/internal/handler"
	"github.com/kursadbilgin/newsletter-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/newsletter-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/newsletter-engine/internal/infra/redis"
	"github.com/kursadbilgin/newsletter-engine/internal/observability"
	"github.com/kursadbilgin/newsletter-engine/internal/queue"
	"github.com/kursadbilgin/newsletter-engine/internal/referral"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"github.com/kursadbilgin/newsletter-engine/internal/service"
	"github.com/kursadbilgin/newsletter-engine/internal/ses"
	"github.com/kursadbilgin/newsletter-engine/internal/transport"
	"go.uber.org/zap"
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

	logger, err := observability.NewLogger("api", cfg.LogLevel)
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
	publisher := queue.NewRabbitMQPublisher(mq)

	metrics := observability.NewMetrics()

	userRepo := repository.NewGormUserRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)

	tierCache, err := infraredis.NewReferralTierCache(rdb, userRepo, cfg.RankCacheTTL(), logger,
		infraredis.WithCacheObserver(metrics.IncReferralTierCacheHit, metrics.IncReferralTierCacheMiss),
	)
	if err != nil {
		logger.Fatal("referral tier cache initialization failed", zap.Error(err))
	}

	generator, err := referral.NewCodeGenerator(userRepo,
		referral.WithMaxAttempts(cfg.ReferralCodeMaxAttempts),
		referral.WithCollisionHook(func(string) { metrics.IncReferralCodeCollision() }),
	)
	if err != nil {
		logger.Fatal("referral code generator initialization failed", zap.Error(err))
	}

	referralService, err := service.NewReferralService(userRepo, tierCache, generator, logger)
	if err != nil {
		logger.Fatal("referral service initialization failed", zap.Error(err))
	}
	referralService.SetMetrics(metrics)

	userService, err := service.NewUserService(userRepo, referralService, tierCache, logger)
	if err != nil {
		logger.Fatal("user service initialization failed", zap.Error(err))
	}

	var confirmer service.SubscriptionConfirmer
	if cfg.SNSAutoConfirm {
		confirmer = ses.NewSubscriptionConfirmer(nil)
	}
	notificationService, err := service.NewNotificationService(notificationRepo, publisher, confirmer, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}
	notificationService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:      "newsletter-engine-api",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, map[string]handler.Pinger{
		"postgres": postgresql.NewPinger(db),
		"redis":    infraredis.NewPinger(rdb),
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterUserRoutes(app, userService, referralService); err != nil {
		logger.Fatal("user routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterSNSRoutes(app, notificationService); err != nil {
		logger.Fatal("sns routes registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("newsletter-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
	logger.Info("newsletter-engine api stopped")
}
