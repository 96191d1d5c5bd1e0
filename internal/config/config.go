package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultClientURL        = "http://localhost:5173"
	DefaultDeepLink         = "blankcanvas://payment-result/"
	DefaultResolvedCacheTTL = 24 * time.Hour
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	// ClientURL is the base of the web payment result page.
	ClientURL string
	// DeepLink is the mobile app scheme used on return pages.
	DeepLink string

	VNPayHashSecret string
	MoMoAccessKey   string
	MoMoSecretKey   string

	RedisAddr        string
	ResolvedCacheTTL time.Duration

	// InternalSecretKey lets trusted services skip the public rate tiers.
	InternalSecretKey string
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed, comma separated.
	TrustedProxies    string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:           os.Getenv("DB_HOST"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           os.Getenv("DB_NAME"),
		DBPort:           os.Getenv("DB_PORT"),
		AppPort:          os.Getenv("APP_PORT"),
		AppEnv:           os.Getenv("APP_ENV"),
		ClientURL:        getEnv("CLIENT_URL", DefaultClientURL),
		DeepLink:         getEnv("APP_DEEP_LINK", DefaultDeepLink),
		VNPayHashSecret:  os.Getenv("VNP_HASH_SECRET"),
		MoMoAccessKey:    os.Getenv("MOMO_ACCESS_KEY"),
		MoMoSecretKey:    os.Getenv("MOMO_SECRET_KEY"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		ResolvedCacheTTL: getDuration("RESOLVED_CACHE_TTL", DefaultResolvedCacheTTL),

		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		TrustedProxies:    os.Getenv("TRUSTED_PROXIES"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}

	// Trailing slash would double up with "/payment/result".
	cfg.ClientURL = strings.TrimRight(cfg.ClientURL, "/")

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
