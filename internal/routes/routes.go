package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/packpulse/packpulse/internal/config"
	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/marketplace"
	"github.com/packpulse/packpulse/internal/middleware"
	"github.com/packpulse/packpulse/internal/notification"
	"github.com/packpulse/packpulse/internal/payment"
	"github.com/packpulse/packpulse/internal/pulse"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Without a
// database or cache (dev mode) it falls back to in-memory backends so the
// API stays explorable.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Ledger backends. The marketplace shares the ledger store so a purchase
	// settles both sides in one transaction.
	var (
		ledgerStore ledger.Store
		packStore   marketplace.Store
		pulseRepo   pulse.UserRepository
	)
	if d.DB != nil {
		pgLedger := ledger.NewPostgresStore(d.DB)
		ledgerStore = pgLedger
		packStore = marketplace.NewPostgresStore(d.DB, pgLedger)
		pulseRepo = pulse.NewPostgresRepository(d.DB)
	} else {
		memLedger := ledger.NewMemoryStore()
		ledgerStore = memLedger
		packStore = marketplace.NewMemoryStore(memLedger)
		pulseRepo = pulse.NewMemoryRepository()
	}

	var balanceCache ledger.BalanceCache = ledger.NopCache{}
	if d.Cache != nil {
		balanceCache = ledger.NewRedisBalanceCache(d.Cache, d.Cfg.BalanceCacheTTL, d.Logger)
	}

	processor := ledger.NewProcessor(ledgerStore, balanceCache, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)

	pulseSvc := pulse.NewService(pulseRepo, processor, d.Cfg.PulseAmount, d.Cfg.PulseCooldown, d.Logger)
	marketSvc := marketplace.NewService(packStore, processor, notifier, d.Logger)

	var gateway payment.Gateway
	if d.Cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(d.Cfg.StripeSecretKey, d.Cfg.StripeCurrency, d.Cfg.GatewayTimeout)
	} else {
		if !d.Cfg.IsDev() {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		gateway = payment.NewStaticGateway(payment.StatusCompleted)
	}
	paymentSvc := payment.NewService(gateway, processor, d.Cache, payment.Config{
		WebhookSecret:    d.Cfg.StripeWebhookSecret,
		WebhookTolerance: d.Cfg.StripeWebhookTolerance,
		MinimumAmount:    d.Cfg.StripeMinimumAmount,
		CacheTTL:         d.Cfg.PaymentCacheTTL,
		WebhookDedupTTL:  d.Cfg.WebhookDedupTTL,
	}, d.Logger)

	creditHandler := ledger.NewHandler(processor)
	pulseHandler := pulse.NewHandler(pulseSvc)
	marketHandler := marketplace.NewHandler(marketSvc)
	paymentHandler := payment.NewHandler(paymentSvc)

	api := app.Group("/api/v1")
	RegisterCreditRoutes(api, creditHandler)
	RegisterPulseRoutes(api, pulseHandler)
	RegisterMarketplaceRoutes(api, marketHandler)
	RegisterPaymentRoutes(api, paymentHandler)

	// Stripe deliveries are authenticated by signature, not by API key, so
	// the webhook lives outside the versioned API group.
	app.Post("/webhooks/stripe", paymentHandler.Webhook)

	return nil
}
