// Package app wires the checkout service together and runs its HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/auth"
	"github.com/xenking/parcel-checkout/internal/domain/coupon"
	"github.com/xenking/parcel-checkout/internal/domain/gateway"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/internal/events"
	"github.com/xenking/parcel-checkout/internal/gateway/conekta"
	"github.com/xenking/parcel-checkout/internal/gateway/stripe"
	"github.com/xenking/parcel-checkout/internal/handler"
	"github.com/xenking/parcel-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/parcel-checkout/internal/storage/redis"
	"github.com/xenking/parcel-checkout/pkg/health"
	"github.com/xenking/parcel-checkout/pkg/httperr"
	"github.com/xenking/parcel-checkout/pkg/httpmiddleware"
)

// publisher is an event publisher holding a connection.
type publisher interface {
	order.EventPublisher
	Close() error
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("gateway", cfg.Gateway.Provider),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, lg); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for carts and idempotency records.
	rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	healthSvc.AddReadinessCheck("redis", health.RedisCheck(rdb), health.WithTimeout(2*time.Second))
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	customerRepo := postgres.NewCustomerRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	cartStore := redisstore.NewCartStore(rdb)
	idempotencyStore := redisstore.NewIdempotencyStore(rdb)

	// Payment gateway and events.
	charger, err := newCharger(cfg.Gateway, m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create payment gateway")
	}
	pub := newPublisher(cfg.Kafka)
	defer func() {
		if err := pub.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()

	// Domain services.
	orderCfg, err := cfg.Checkout.orderConfig(cfg.Gateway.Currency)
	if err != nil {
		return errors.Wrap(err, "checkout config")
	}
	orderService, err := order.NewService(
		coupon.NewRepoEvaluator(couponRepo),
		couponRepo,
		charger,
		orderRepo,
		orderCfg,
		order.WithPublisher(pub),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	h := handler.NewHandler(orderService, cartStore, orderRepo, productRepo)
	securityHandler := handler.NewSecurityHandler(
		auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		customerRepo,
	)

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperr.Write(w, http.StatusNotFound, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperr.Write(w, http.StatusMethodNotAllowed, "")
	})
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Group(func(r chi.Router) {
		r.Use(securityHandler.Authenticate)
		h.Register(r, httpmiddleware.Idempotency(idempotencyStore, httpmiddleware.IdempotencyConfig{
			TTL: cfg.Idempotency.TTL,
			Scope: func(r *http.Request) string {
				if c, ok := handler.CustomerFromContext(r.Context()); ok {
					return c.ID
				}
				return ""
			},
		}))
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Gateway calls dominate checkout latency.
		WriteTimeout:   cfg.Gateway.Conekta.Timeout + 15*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderIdempotencyKey, httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, httpmiddleware.HeaderIdempotentReplayed},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("checkout", m.TracerProvider(), m.MeterProvider()),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newCharger creates the configured payment provider.
func newCharger(cfg GatewayConfig, tp trace.TracerProvider) (gateway.Charger, error) {
	switch cfg.Provider {
	case "conekta":
		return conekta.New(conekta.Config{
			APIKey:  cfg.Conekta.APIKey,
			BaseURL: cfg.Conekta.BaseURL,
			Timeout: cfg.Conekta.Timeout,
			Locale:  cfg.Conekta.Locale,
		}, conekta.WithTracerProvider(tp)), nil
	case "stripe":
		return stripe.New(stripe.Config{SecretKey: cfg.Stripe.SecretKey}), nil
	default:
		return nil, errors.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

// newPublisher returns a Kafka publisher, or a no-op one without brokers.
func newPublisher(cfg KafkaConfig) publisher {
	if len(cfg.Brokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// orderConfig converts the checkout settings into order.Config.
func (c CheckoutConfig) orderConfig(currency string) (order.Config, error) {
	shipping, err := decimal.NewFromString(c.ShippingAmount)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "shipping amount %q", c.ShippingAmount)
	}
	if shipping.IsNegative() {
		return order.Config{}, errors.Errorf("shipping amount %s is negative", shipping)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	return order.Config{
		ShippingAmount: shipping,
		Carrier:        c.Carrier,
		Currency:       currency,
		Location:       loc,
	}, nil
}
