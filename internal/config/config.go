package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	MetricsEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string

	// DefaultProvider is the processor used when creating new
	// preauthorizations. Existing payments always resolve their own
	// provider through the registry.
	DefaultProvider string

	Providers ProvidersConfig
}

type ProvidersConfig struct {
	Stripe      StripeConfig
	MercadoPago MercadoPagoConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "encuentraya-payments"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payments"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		MetricsEnabled: getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:   strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),

		DefaultProvider: strings.ToLower(strings.TrimSpace(getenv("PAYMENT_DEFAULT_PROVIDER", "stripe"))),

		Providers: ProvidersConfig{
			Stripe: StripeConfig{
				SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
				WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
				BaseURL:       strings.TrimSpace(getenv("STRIPE_BASE_URL", "")),
			},
			MercadoPago: MercadoPagoConfig{
				AccessToken:   strings.TrimSpace(getenv("MERCADOPAGO_ACCESS_TOKEN", "")),
				WebhookSecret: strings.TrimSpace(getenv("MERCADOPAGO_WEBHOOK_SECRET", "")),
				BaseURL:       strings.TrimSpace(getenv("MERCADOPAGO_BASE_URL", "")),
			},
		},
	}
}

// PaymentProviderConfigs flattens the typed provider settings into the
// map form adapter factories consume. Factories own validation of their
// required keys.
func (c Config) PaymentProviderConfigs() map[string]map[string]any {
	return map[string]map[string]any{
		"stripe": {
			"secret_key":     c.Providers.Stripe.SecretKey,
			"webhook_secret": c.Providers.Stripe.WebhookSecret,
			"base_url":       c.Providers.Stripe.BaseURL,
		},
		"mercadopago": {
			"access_token":   c.Providers.MercadoPago.AccessToken,
			"webhook_secret": c.Providers.MercadoPago.WebhookSecret,
			"base_url":       c.Providers.MercadoPago.BaseURL,
		},
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: invalid bool for %s: %q", key, value)
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: invalid int for %s: %q", key, value)
		return fallback
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
