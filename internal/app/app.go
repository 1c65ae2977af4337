package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", cfg.Redis.URL != ""),
	)

	store, err := openStorage(ctx, lg, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck(store.name, 5*time.Second, health.PingCheck(store.pinger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Redis backs checkout idempotency and the shared rate limiter.
	var (
		limiter     httpmiddleware.Limiter
		idempotency = httpmiddleware.IdempotencyConfig{TTL: cfg.Idempotency.TTL}
	)
	if cfg.Redis.URL != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.URL, cfg.Redis.Namespace)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(rdb))
		limiter = redis.NewFixedWindow(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		idempotency.Store = rdb
	} else {
		lg.Warn("Redis is not configured: rate limits are per instance and checkout idempotency is disabled")
		local := httpmiddleware.NewSlidingWindow(cfg.RateLimit.Max, cfg.RateLimit.Window)
		local.StartCleanup(ctx)
		limiter = local
	}

	healthSvc.Start(zctx.Base(ctx, lg), 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	engine := pricing.NewEngine(coupon.NewRepoValidator(store.coupons))
	orderService, err := order.NewService(store.carts, store.products, store.orders, store.tx,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	taxonomy := category.NewService(store.categories, store.subcategories)
	services := handler.Services{
		Products:   product.NewService(store.products, taxonomy),
		Categories: taxonomy,
		Users:      user.NewService(store.users),
		Coupons:    coupon.NewService(store.coupons),
		Reviews:    review.NewService(store.reviews, store.products),
		Carts:      cart.NewService(store.carts, store.products, engine),
		Orders:     orderService,
	}

	// HTTP handlers.
	var tokens *auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
	}
	security := handler.NewSecurity(
		auth.NewAPIKeyAuthenticator(store.apikeys, []byte(cfg.Auth.APIKeyPepper)),
		tokens,
	)
	h := handler.New(handler.Config{
		DefaultLimit: cfg.Pagination.DefaultLimit,
		Idempotency:  idempotency,
		Health:       healthSvc,
	}, services, store.finders, security)

	router := h.Routes()
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type", "Authorization", handler.APIKeyHeader,
					httpmiddleware.IdempotencyHeader, httpmiddleware.RequestIDHeader,
				},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Idempotent-Replayed", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{Limiter: limiter}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

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
