package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beadshop-backend/internal/cron"
	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/products"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/pkg/config"
	"github.com/angelmondragon/beadshop-backend/pkg/db"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/metrics"
	"github.com/angelmondragon/beadshop-backend/pkg/migrate"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)

	// Expiry only cancels pending orders, so the balance requester is never
	// reached; it is required by the admin constructor.
	admin, err := orderstate.NewAdmin(orderstate.AdminParams{
		Orders:   ordersRepo,
		Products: products.NewRepository(conn),
		Users:    users.NewRepository(conn),
		Tx:       dbClient,
		Outbox:   outbox.NewService(outboxRepo, logg),
		Balance:  unavailableBalance{},
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	expiry, err := cron.NewOrderExpiryJob(logg, ordersRepo, admin, cfg.Cron.PendingOrderTTL)
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(logg, dbClient, outboxRepo, cfg.Cron.OutboxRetentionDays)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{expiry, retention},
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("bs:cron-worker:lock:%s", env)
}

type unavailableBalance struct{}

func (unavailableBalance) RequestPayment(context.Context, *models.Order, int) (*payments.Artifact, error) {
	return nil, errors.New("balance requests are not issued by the cron worker")
}
