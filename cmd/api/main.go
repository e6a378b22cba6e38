package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beadshop-backend/api/routes"
	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/products"
	"github.com/angelmondragon/beadshop-backend/internal/shipments"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/internal/webhooks"
	"github.com/angelmondragon/beadshop-backend/pkg/config"
	"github.com/angelmondragon/beadshop-backend/pkg/db"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/metrics"
	"github.com/angelmondragon/beadshop-backend/pkg/migrate"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/p24"
	"github.com/angelmondragon/beadshop-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/beadshop-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	gateways, err := buildGateways(ctx, cfg, logg)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	productsRepo := products.NewRepository(conn)
	usersRepo := users.NewRepository(conn)
	attemptsRepo := payments.NewAttemptRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Products: productsRepo,
		Users:    usersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Currency: cfg.Payments.NormalizedCurrency(),
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	orchestrator, err := payments.NewOrchestrator(payments.OrchestratorParams{
		Gateways:       gateways,
		Orders:         ordersRepo,
		Attempts:       attemptsRepo,
		Tx:             dbClient,
		Outbox:         outboxSvc,
		GatewayTimeout: cfg.Payments.GatewayTimeout,
		Metrics:        checkoutMetrics,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	carrier, err := shipments.NewOutboxCarrier(outboxSvc)
	if err != nil {
		return err
	}
	trigger, err := orderstate.NewShipmentTrigger(ordersRepo, shipments.NewRepository(conn), carrier)
	if err != nil {
		return err
	}
	machine, err := orderstate.NewMachine(orderstate.MachineParams{
		Orders:    ordersRepo,
		Users:     usersRepo,
		Shipments: trigger,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	admin, err := orderstate.NewAdmin(orderstate.AdminParams{
		Orders:   ordersRepo,
		Products: productsRepo,
		Users:    usersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Balance:  orchestrator,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	guard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Webhooks.IdempotencyTTL)
	if err != nil {
		return err
	}
	reconciler, err := webhooks.NewReconciler(webhooks.ReconcilerParams{
		Gateways: gateways,
		Orders:   ordersRepo,
		Attempts: attemptsRepo,
		Ledger:   webhooks.NewLedgerRepository(conn),
		Machine:  machine,
		Guard:    guard,
		Tx:       dbClient,
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": gateways.Providers(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Services{
			Orders:     ordersSvc,
			Attempts:   attemptsRepo,
			Payments:   orchestrator,
			Admin:      admin,
			Reconciler: reconciler,
			Cache:      redisClient,
			DB:         dbClient,
			Metrics:    registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildGateways registers every provider whose credentials are configured.
func buildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*payments.Registry, error) {
	var list []payments.Gateway
	if cfg.Stripe.Enabled() {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		gw, err := payments.NewStripeGateway(client)
		if err != nil {
			return nil, err
		}
		list = append(list, gw)
	}
	if cfg.P24.Enabled() {
		client, err := p24.NewClient(ctx, cfg.P24, logg)
		if err != nil {
			return nil, err
		}
		gw, err := payments.NewP24Gateway(client)
		if err != nil {
			return nil, err
		}
		list = append(list, gw)
	}
	return payments.NewRegistry(list...)
}
