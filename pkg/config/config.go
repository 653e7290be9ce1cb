package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Xendit   XenditConfig
	Redis    RedisConfig
	Email    EmailConfig
	Archive  ArchiveConfig
	Seed     SeedConfig

	GatewayTimeout time.Duration
	LogLevel       string
}

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigin  string
	FrontendURL string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
}

type StripeConfig struct {
	SecretKey           string
	WebhookSecret       string
	PriceProMonthly     string
	PriceProYearly      string
	PriceProPlusMonthly string
	PriceProPlusYearly  string
}

type XenditConfig struct {
	SecretKey       string
	WebhookToken    string
	BaseURL         string
	USDToIDRRate    int64
	InvoiceDuration time.Duration
}

type RedisConfig struct {
	URL string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type ArchiveConfig struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// Dir is a local fallback used when no bucket is configured.
	Dir        string
}

type SeedConfig struct {
	DemoEmail    string
	DemoPassword string
}

func Load() *Config {
	godotenv.Load() // .env is optional in containers

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "3000"),
			Env:         getEnv("APP_ENV", "development"),
			CORSOrigin:  getEnv("CORS_ORIGIN", "http://localhost:5173,http://localhost:3000"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "walletwise"),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "walletwise-dev-secret"),
			ExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey:           getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:       getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PriceProMonthly:     getEnv("STRIPE_PRICE_PRO_MONTHLY", ""),
			PriceProYearly:      getEnv("STRIPE_PRICE_PRO_YEARLY", ""),
			PriceProPlusMonthly: getEnv("STRIPE_PRICE_PRO_PLUS_MONTHLY", ""),
			PriceProPlusYearly:  getEnv("STRIPE_PRICE_PRO_PLUS_YEARLY", ""),
		},
		Xendit: XenditConfig{
			SecretKey:       getEnv("XENDIT_SECRET_KEY", ""),
			WebhookToken:    getEnv("XENDIT_WEBHOOK_TOKEN", ""),
			BaseURL:         strings.TrimRight(getEnv("XENDIT_BASE_URL", "https://api.xendit.co"), "/"),
			USDToIDRRate:    int64(getEnvInt("XENDIT_USD_IDR_RATE", 16000)),
			InvoiceDuration: getEnvDuration("XENDIT_INVOICE_DURATION", 48*time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "WalletWise <noreply@walletwise.app>"),
		},
		Archive: ArchiveConfig{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			Dir:        getEnv("WEBHOOK_ARCHIVE_DIR", ""),
		},
		Seed: SeedConfig{
			DemoEmail:    getEnv("SEED_DEMO_EMAIL", ""),
			DemoPassword: getEnv("SEED_DEMO_PASSWORD", ""),
		},
		GatewayTimeout: getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns DATABASE_URL when set, otherwise builds one from the DB_* parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	creds := d.User
	if d.Password != "" {
		creds = d.User + ":" + d.Password
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s", creds, d.Host, d.Port, d.DBName)
}

func (s ServerConfig) IsProduction() bool {
	return s.Env == "production" || s.Env == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("15s") and the "7d" day shorthand.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil {
			return defaultValue
		}
		return time.Duration(days) * 24 * time.Hour
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
