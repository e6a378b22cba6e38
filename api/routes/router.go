package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/beadshop-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/beadshop-backend/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/beadshop-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/beadshop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/beadshop-backend/api/middleware"
	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/webhooks"
	"github.com/angelmondragon/beadshop-backend/pkg/config"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/beadshop-backend/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs.
type Cache interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type AttemptLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
}

type Payer interface {
	Pay(ctx context.Context, input payments.PayInput) (*payments.Artifact, error)
}

type OrderAdmin interface {
	Update(ctx context.Context, input orderstate.UpdateInput) (*orderstate.UpdateResult, error)
}

type WebhookReconciler interface {
	Reconcile(ctx context.Context, provider enums.PaymentProvider, payload []byte, headers http.Header) (webhooks.Result, error)
}

// Services bundles what the handlers call into.
type Services struct {
	Orders     orders.Service
	Attempts   AttemptLister
	Payments   Payer
	Admin      OrderAdmin
	Reconciler WebhookReconciler
	Cache      Cache
	DB         controllers.Pinger
	Metrics    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotent := middleware.Idempotency(svc.Cache, logg)
	checkoutLimit := middleware.RateLimit(middleware.CheckoutPolicy(cfg.RateLimit), svc.Cache, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps(svc), logg))
	})
	if svc.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/payments", func(r chi.Router) {
		r.Post("/stripe/webhook", webhookcontrollers.Payment(svc.Reconciler, enums.PaymentProviderStripe, logg))
		r.Post("/p24/webhook", webhookcontrollers.Payment(svc.Reconciler, enums.PaymentProviderP24, logg))
	})

	// Route patterns must stay whole for the idempotency rules, so these use
	// groups rather than mounted sub-routers.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.With(checkoutLimit, idempotent).Post("/orders", ordercontrollers.Create(svc.Orders, logg))
		r.Get("/orders/{orderNumber}", ordercontrollers.Detail(svc.Orders, svc.Attempts, logg))
		r.With(idempotent).Post("/orders/{orderNumber}/payments", ordercontrollers.Pay(svc.Payments, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.With(idempotent).Patch("/admin/orders/{orderNumber}", admincontrollers.UpdateOrder(svc.Admin, logg))
	})

	return r
}

func readyDeps(svc Services) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if svc.DB != nil {
		deps["database"] = svc.DB
	}
	if svc.Cache != nil {
		deps["redis"] = svc.Cache
	}
	return deps
}
