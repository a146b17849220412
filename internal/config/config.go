package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName            = "SigLedger"
	defaultAppEnv             = "development"
	defaultPort               = "8080"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultApprovalWindow     = 30 * time.Second
	defaultFiatApprovalWindow = 60 * time.Second
	defaultQuoteTimeout       = 10 * time.Second
	defaultQuoteProvider      = QuoteProviderStatic
	defaultStaticRate         = "2500"
	defaultSMTPPort           = 587
	defaultApproveRateLimit   = 30
	minQuoteSigningKeyLen     = 32

	QuoteProviderStatic = "static"
	QuoteProviderSkip   = "skip"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	ApprovalWindow     time.Duration
	FiatApprovalWindow time.Duration
	// InitialBalance is in native display units.
	InitialBalance   string
	ApproveRateLimit int
	// QuoteSigningKey authenticates fiat quote references between approve and execute.
	QuoteSigningKey string

	Quote QuoteConfig
	SMTP  SMTPConfig
}

type QuoteConfig struct {
	Provider   string
	URL        string
	APIKey     string
	StaticRate string
	Timeout    time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound email is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Load reads a .env file if present, then populates a Config from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		InitialBalance:   getEnv("INITIAL_BALANCE", "0"),
		QuoteSigningKey:  os.Getenv("QUOTE_SIGNING_KEY"),
		ApproveRateLimit: defaultApproveRateLimit,
		Quote: QuoteConfig{
			Provider:   strings.ToLower(getEnv("QUOTE_PROVIDER", defaultQuoteProvider)),
			URL:        os.Getenv("QUOTE_API_URL"),
			APIKey:     os.Getenv("QUOTE_API_KEY"),
			StaticRate: getEnv("QUOTE_STATIC_RATE", defaultStaticRate),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     defaultSMTPPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = parseDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ApprovalWindow, err = parseDuration("APPROVAL_WINDOW", defaultApprovalWindow); err != nil {
		return Config{}, err
	}
	if cfg.FiatApprovalWindow, err = parseDuration("FIAT_APPROVAL_WINDOW", defaultFiatApprovalWindow); err != nil {
		return Config{}, err
	}
	if cfg.Quote.Timeout, err = parseDuration("QUOTE_TIMEOUT", defaultQuoteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SMTP.Port, err = parseInt("SMTP_PORT", defaultSMTPPort); err != nil {
		return Config{}, err
	}
	if cfg.ApproveRateLimit, err = parseInt("APPROVE_RATE_LIMIT_PER_MIN", defaultApproveRateLimit); err != nil {
		return Config{}, err
	}

	switch cfg.Quote.Provider {
	case QuoteProviderStatic, QuoteProviderSkip:
	default:
		return Config{}, fmt.Errorf("invalid QUOTE_PROVIDER %q", cfg.Quote.Provider)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if len(cfg.QuoteSigningKey) < minQuoteSigningKeyLen {
			return Config{}, fmt.Errorf("QUOTE_SIGNING_KEY must be at least %d bytes", minQuoteSigningKeyLen)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service may run on in-memory backends.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseDuration reads KEY_SECONDS as whole seconds, else KEY as a Go duration.
func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
