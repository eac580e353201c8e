package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	connectcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/connect"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	sellercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/seller"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/connect"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer depends on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type webhookSigner interface {
	SigningSecret() string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	metricsHandler http.Handler,
	storeResolver sellercontrollers.StoreResolver,
	ordersSvc orders.Service,
	checkoutService checkoutsvc.Service,
	productService product.Service,
	ledgerService ledger.Service,
	connectService connect.Service,
	stripeClient webhookSigner,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.Limit)
	guestPolicy := middleware.NewRateLimitPolicy("guest", cfg.RateLimit.Window, cfg.RateLimit.Limit)
	idempotent := middleware.Idempotency(redisStore, cfg.Eventing.HTTPIdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{"db": dbP, "redis": redisStore}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, logg))
	})

	r.Route("/api/v1/guest", func(r chi.Router) {
		r.Use(middleware.RateLimit(guestPolicy, redisStore, logg))
		r.Post("/orders", ordercontrollers.CreateGuest(ordersSvc, logg))
		r.Post("/orders/{orderId}/checkout-session", ordercontrollers.GuestCheckoutSession(checkoutService, logg))
	})

	r.Get("/api/v1/connect/callback", connectcontrollers.Callback(connectService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, redisStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Get(ordersSvc, logg))
			r.With(idempotent).Post("/{orderId}/checkout-session", ordercontrollers.CheckoutSession(checkoutService, logg))
			r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleAdmin)).Post("/{orderId}/confirm", ordercontrollers.Confirm(ordersSvc, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin))
			r.Post("/orders/{orderId}/ship", ordercontrollers.Ship(ordersSvc, logg))
			r.Post("/orders/{orderId}/deliver", ordercontrollers.Deliver(ordersSvc, logg))
			r.Post("/products", sellercontrollers.CreateListing(productService, storeResolver, logg))
			r.Get("/products", sellercontrollers.ListProducts(productService, storeResolver, logg))
			r.Get("/ledger", sellercontrollers.LedgerEntries(ledgerService, storeResolver, logg))
			r.Get("/ledger/summary", sellercontrollers.LedgerSummary(ledgerService, storeResolver, logg))
			r.Post("/connect/authorize", connectcontrollers.Authorize(connectService, storeResolver, logg))
		})
	})

	return r
}
