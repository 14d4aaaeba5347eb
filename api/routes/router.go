package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fernwood-goods/storefront-backend/api/controllers"
	webhookcontrollers "github.com/fernwood-goods/storefront-backend/api/controllers/webhooks"
	"github.com/fernwood-goods/storefront-backend/api/middleware"
	"github.com/fernwood-goods/storefront-backend/internal/fulfillment"
	"github.com/fernwood-goods/storefront-backend/internal/shipping"
	"github.com/fernwood-goods/storefront-backend/pkg/config"
	"github.com/fernwood-goods/storefront-backend/pkg/logger"
	"github.com/fernwood-goods/storefront-backend/pkg/redis"
	"github.com/fernwood-goods/storefront-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DBPinger     controllers.Pinger
	RedisClient  *redis.Client
	StripeClient *stripe.Client
	Reconciler   webhookcontrollers.Reconciler
	WebhookGuard *fulfillment.IdempotencyGuard
	Calculator   *shipping.Calculator
	Composer     controllers.OrderComposer
	Registry     *prometheus.Registry
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	pingers := map[string]controllers.Pinger{
		"database": p.DBPinger,
	}
	if p.RedisClient != nil {
		pingers["redis"] = p.RedisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, pingers))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(p.Reconciler, p.StripeClient, p.WebhookGuard, p.Logger))
		})
		r.Route("/shipping", func(r chi.Router) {
			r.Post("/quote", controllers.ShippingQuote(p.Calculator, p.Logger))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateOrder(p.Composer, p.Logger))
		})
	})

	return r
}
