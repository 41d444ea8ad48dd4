package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all service settings. Values come from the environment,
// with a local .env honored outside production.
type Config struct {
	Environment string
	ServiceName string
	HTTPAddr    string

	Database DatabaseConfig
	Tracing  TracingConfig

	RateLimit RateLimitConfig

	Engine EngineConfig
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type TracingConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// EngineConfig seeds the rental engine at first boot. Reference prices and
// oracle bounds are 1e8-scale integers; native amounts are wei-scale.
type EngineConfig struct {
	PriceFeedURL  string
	UptimeFeedURL string

	UnitPriceRef      *big.Int
	MaxUnits          uint64
	DeprecationPeriod time.Duration

	CacheDuration time.Duration
	MaxPriceAge   time.Duration
	GracePeriod   time.Duration
	MinAnswer     *big.Int
	MaxAnswer     *big.Int

	Vault     string
	RoleAdmin string
	Owner     string
	Operator  string
	Treasurer string
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	env := getenv("RENTD_ENV", "development")
	if !strings.EqualFold(env, "production") {
		_ = godotenv.Load()
	}

	cfg := Config{
		Environment: env,
		ServiceName: getenv("RENTD_SERVICE_NAME", "rentd"),
		HTTPAddr:    getenv("RENTD_HTTP_ADDR", ":8080"),
		Database: DatabaseConfig{
			Driver: getenv("RENTD_DB_DRIVER", "postgres"),
			DSN:    getenv("RENTD_DB_DSN", ""),
		},
		Tracing: TracingConfig{
			Enabled:          getenvBool("RENTD_TRACING_ENABLED", false),
			ExporterEndpoint: getenv("RENTD_OTLP_ENDPOINT", ""),
			ExporterProtocol: getenv("RENTD_OTLP_PROTOCOL", "grpc"),
			SamplingRatio:    getenvFloat("RENTD_TRACE_SAMPLING_RATIO", 0.1),
		},
		RateLimit: RateLimitConfig{
			Limit:  getenvInt("RENTD_RATE_LIMIT", 120),
			Window: getenvDuration("RENTD_RATE_WINDOW", time.Minute),
		},
	}

	engine, err := loadEngine()
	if err != nil {
		return Config{}, err
	}
	cfg.Engine = engine
	return cfg, nil
}

func loadEngine() (EngineConfig, error) {
	unitPrice, err := getenvBig("RENTD_UNIT_PRICE_USD", "500000000") // 5 USD, 1e8 scale
	if err != nil {
		return EngineConfig{}, err
	}
	minAnswer, err := getenvBig("RENTD_MIN_ANSWER", "10000000000") // 100 USD
	if err != nil {
		return EngineConfig{}, err
	}
	maxAnswer, err := getenvBig("RENTD_MAX_ANSWER", "1000000000000") // 10,000 USD
	if err != nil {
		return EngineConfig{}, err
	}

	return EngineConfig{
		PriceFeedURL:  getenv("RENTD_PRICE_FEED_URL", ""),
		UptimeFeedURL: getenv("RENTD_UPTIME_FEED_URL", ""),

		UnitPriceRef:      unitPrice,
		MaxUnits:          uint64(getenvInt("RENTD_MAX_UNITS", 2_000_000)),
		DeprecationPeriod: getenvDuration("RENTD_DEPRECATION_PERIOD", 365*24*time.Hour),

		CacheDuration: getenvDuration("RENTD_PRICE_CACHE_DURATION", 24*time.Hour),
		MaxPriceAge:   getenvDuration("RENTD_MAX_PRICE_AGE", 2*time.Hour),
		GracePeriod:   getenvDuration("RENTD_UPTIME_GRACE_PERIOD", time.Hour),
		MinAnswer:     minAnswer,
		MaxAnswer:     maxAnswer,

		Vault:     getenv("RENTD_VAULT", ""),
		RoleAdmin: getenv("RENTD_ROLE_ADMIN", "system"),
		Owner:     getenv("RENTD_OWNER", ""),
		Operator:  getenv("RENTD_OPERATOR", ""),
		Treasurer: getenv("RENTD_TREASURER", ""),
	}, nil
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvBig(key, fallback string) (*big.Int, error) {
	raw := getenv(key, fallback)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer for %s: %q", key, raw)
	}
	return value, nil
}
