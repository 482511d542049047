package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the gateway process.
// Values load from environment variables with defaults that let the binary
// run locally against the in-memory store with no setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	WebhookURL string

	ShareCodeAttempts int

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		CacheTTL:          3 * time.Second,
		KafkaTopic:        "ride-events",
		ShareCodeAttempts: 5,
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.CacheTTL, "CACHE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.WebhookURL, "NOTIFY_WEBHOOK_URL")

	setIntFromEnv(&cfg.ShareCodeAttempts, "SHARE_CODE_ATTEMPTS", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.ShareCodeAttempts <= 0 {
		errs = append(errs, fmt.Errorf("SHARE_CODE_ATTEMPTS must be > 0"))
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

// SweeperConfig drives the standalone housekeeping binary.
type SweeperConfig struct {
	PGDSN     string
	Retention time.Duration
	Interval  time.Duration
	LogLevel  string
}

func defaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Retention: 24 * time.Hour,
		Interval:  10 * time.Minute,
		LogLevel:  "info",
	}
}

func LoadSweeperConfig() (SweeperConfig, error) {
	cfg := defaultSweeperConfig()
	var errs []error

	cfg.PGDSN = os.Getenv("PG_DSN")
	setDurationFromEnv(&cfg.Retention, "SWEEP_RETENTION", &errs)
	setDurationFromEnv(&cfg.Interval, "SWEEP_INTERVAL", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Retention <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_RETENTION must be > 0"))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
