package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	APIBaseURL              string
	RequestTimeout          time.Duration
	RefreshSkew             time.Duration
	AutoRefreshInterval     time.Duration
	StoreBackend            string
	StoreSlot               string
	StoreFile               string
	StorePassphrase         string
	DatabaseURL             string
	DBMaxConns              int32
	DBMinConns              int32
	RedisURL                string
	RedisKeyPrefix          string
	CORSOrigins             []string
	AuthRateLimitRPM        int
	TransportRPM            int
	LogLevel                string
}

// Load reads envFile (when it exists) into the process environment and
// builds a validated Config from it.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8081"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		APIBaseURL:              strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/"),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),
		RefreshSkew:             getDuration("REFRESH_SKEW", 30*time.Second),
		AutoRefreshInterval:     getDuration("AUTO_REFRESH_INTERVAL", time.Minute),
		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
		StoreSlot:               getEnv("STORE_SLOT", "default"),
		StoreFile:               getEnv("STORE_FILE", "./state/session.json"),
		StorePassphrase:         os.Getenv("STORE_PASSPHRASE"),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 2)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 0)),
		RedisURL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisKeyPrefix:          getEnv("REDIS_KEY_PREFIX", "thinkora:session"),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		TransportRPM:            getInt("TRANSPORT_RPM", 30),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RefreshSkew < 0 {
		return fmt.Errorf("REFRESH_SKEW cannot be negative")
	}

	if strings.TrimSpace(c.StoreSlot) == "" {
		return fmt.Errorf("STORE_SLOT cannot be empty")
	}

	switch c.StoreBackend {
	case StoreFile:
		if strings.TrimSpace(c.StoreFile) == "" {
			return fmt.Errorf("STORE_FILE cannot be empty")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of file, postgres, redis, memory; got %q", c.StoreBackend)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error; got %q", raw)
	}
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
