package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/venuebook/libs/config"
)

type settings struct {
	Service  string
	LogLevel string
	Port     string
	GRPCPort string

	StoreDriver   string
	DatabaseURL   string
	SQLiteDSN     string
	DBMaxConns    int
	DBAutoMigrate bool

	RedisAddr          string
	RateLimitPerMinute int

	KafkaBrokers string

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	JWTSecret         string
	JWKSURL           string
	TrustTenantHeader bool

	CORSAllowedOrigins []string

	LeadTime      time.Duration
	PendingTTL    time.Duration
	SweepInterval time.Duration
}

func loadSettings() (settings, error) {
	s := settings{
		Service:             config.String("SERVICE_NAME", "booking-service"),
		LogLevel:            config.String("LOG_LEVEL", "info"),
		GRPCPort:            config.String("GRPC_PORT", ""),
		StoreDriver:         strings.ToLower(config.String("STORE_DRIVER", "postgres")),
		DatabaseURL:         config.String("DATABASE_URL", ""),
		SQLiteDSN:           config.String("SQLITE_DSN", "booking.db"),
		RedisAddr:           config.String("REDIS_ADDR", ""),
		KafkaBrokers:        config.String("KAFKA_BROKERS", ""),
		StripeWebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),
		JWTSecret:           config.String("JWT_SECRET", ""),
		JWKSURL:             config.String("JWKS_URL", ""),
		CORSAllowedOrigins:  config.List("CORS_ALLOWED_ORIGINS"),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	if s.DBAutoMigrate, err = config.Bool("DB_AUTO_MIGRATE", false); err != nil {
		return s, err
	}
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return s, err
	}
	if s.StripeWebhookTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return s, err
	}
	if s.TrustTenantHeader, err = config.Bool("TRUST_TENANT_HEADER", false); err != nil {
		return s, err
	}
	if s.LeadTime, err = config.Duration("BOOKING_LEAD_TIME", 0); err != nil {
		return s, err
	}
	if s.PendingTTL, err = config.Duration("BOOKING_PENDING_TTL", 15*time.Minute); err != nil {
		return s, err
	}
	if s.SweepInterval, err = config.Duration("EXPIRY_SWEEP_INTERVAL", time.Minute); err != nil {
		return s, err
	}

	switch s.StoreDriver {
	case "postgres":
		if s.DatabaseURL == "" {
			return s, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return s, fmt.Errorf("STORE_DRIVER must be postgres or sqlite (got %q)", s.StoreDriver)
	}
	if s.JWTSecret == "" && s.JWKSURL == "" && !s.TrustTenantHeader {
		return s, fmt.Errorf("one of JWT_SECRET, JWKS_URL or TRUST_TENANT_HEADER=true is required")
	}
	return s, nil
}
