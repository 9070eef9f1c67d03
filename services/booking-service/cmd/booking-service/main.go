package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/md-rashed-zaman/venuebook/libs/auth"
	"github.com/md-rashed-zaman/venuebook/libs/db"
	"github.com/md-rashed-zaman/venuebook/libs/grpcx"
	"github.com/md-rashed-zaman/venuebook/libs/httpx"
	"github.com/md-rashed-zaman/venuebook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/venuebook/libs/otel"
	"github.com/md-rashed-zaman/venuebook/libs/runtime"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/expiry"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/storage/sqlitestore"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Arbitrary but fixed, so every replica contends for the same lock.
const expiryLockKey int64 = 0x76656e7565

type store interface {
	availability.Store
	booking.Store
	handlers.ActivityStore
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("booking service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg settings, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		return err
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		st     store
		leader expiry.Leader = expiry.Single{}
		checks []runtime.ReadyCheck
	)
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.DBAutoMigrate {
			if err := pool.Migrate(ctx, migrations.Postgres); err != nil {
				return err
			}
			logger.Info("database schema applied")
		}
		st = storage.NewBookingRepository(pool)
		leader = db.NewAdvisoryLock(pool, expiryLockKey)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	case "sqlite":
		sq, err := sqlitestore.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			return err
		}
		defer sq.Close()
		st = sq
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: sq.Ping})
		logger.Warn("using embedded sqlite store; run a single replica", "dsn", cfg.SQLiteDSN)
	}

	var notifier booking.Notifier = notify.NewLogNotifier(logger)
	if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kn := notify.NewKafkaNotifier(brokers)
		defer kn.Close()
		notifier = kn
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	availabilitySvc := availability.NewService(st, logger, availability.Config{LeadTime: cfg.LeadTime})
	bookingSvc := booking.NewService(st, availabilitySvc, notifier, logger, booking.Config{})

	writeLimit, closeLimiter, limitChecks := rateLimiter(cfg, logger)
	defer closeLimiter()
	checks = append(checks, limitChecks...)

	resolver, closeTenant, err := tenantResolver(cfg)
	if err != nil {
		return err
	}
	defer closeTenant()

	bookingHandler := handlers.NewBookingHandler(availabilitySvc, bookingSvc, logger)
	activityHandler := handlers.NewActivityHandler(st, logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(bookingSvc, logger, cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance)

	api := func(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
		return httpx.Chain(h, append([]httpx.Middleware{httpx.WithTenant(resolver)}, extra...)...)
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/availability", api(bookingHandler.Availability))
	mux.Handle("/api/v1/bookings", api(bookingHandler.Bookings, writeLimit))
	mux.Handle("/api/v1/bookings/cancel", api(bookingHandler.Cancel, writeLimit))
	mux.Handle("/api/v1/bookings/status", api(bookingHandler.UpdateStatus, writeLimit))
	mux.Handle("/api/v1/activities", api(activityHandler.Activities))
	mux.HandleFunc("/api/v1/payments/webhooks/stripe", webhookHandler.StripeWebhook)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSAllowedOrigins, MaxAge: 10 * time.Minute}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		grpcServer := grpcx.NewServer(logger)
		reporter := grpcx.RegisterHealth(grpcServer, cfg.Service, logger, checks...)
		go reporter.Run(ctx, 10*time.Second)
		go func() {
			logger.Info("grpc health server starting", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	sweeper := expiry.NewSweeper(bookingSvc, leader, logger.With("component", "expiry"), expiry.Config{
		Interval: cfg.SweepInterval,
		TTL:      cfg.PendingTTL,
	})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		<-sweeperDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	<-sweeperDone
	bookingSvc.Wait()
	logger.Info("http server stopped")
	return nil
}

// rateLimiter limits booking writes per organization, shared through Redis when REDIS_ADDR is set.
func rateLimiter(cfg settings, logger *slog.Logger) (httpx.Middleware, func(), []runtime.ReadyCheck) {
	noop := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitPerMinute <= 0 {
		return noop, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		rl := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		return writesOnly(rl.Middleware(httpx.TenantKey)), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:booking")
	checks := []runtime.ReadyCheck{{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}}
	return writesOnly(rl.Middleware(httpx.TenantKey, logger, true)), func() { _ = rdb.Close() }, checks
}

func writesOnly(limit httpx.Middleware) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// tenantResolver prefers verified bearer tokens and falls back to the gateway header when trusted.
func tenantResolver(cfg settings) (httpx.TenantResolver, func(), error) {
	var resolvers []httpx.TenantResolver
	release := func() {}
	switch {
	case cfg.JWKSURL != "":
		jwks, err := auth.FetchJWKS(cfg.JWKSURL, 0)
		if err != nil {
			return nil, nil, err
		}
		release = jwks.EndBackground
		resolvers = append(resolvers, auth.NewJWKSVerifier(jwks).OrganizationFromRequest)
	case cfg.JWTSecret != "":
		resolvers = append(resolvers, auth.NewHS256Verifier(cfg.JWTSecret).OrganizationFromRequest)
	}
	if cfg.TrustTenantHeader {
		resolvers = append(resolvers, httpx.HeaderTenant)
	}
	return httpx.FirstTenant(resolvers...), release, nil
}
