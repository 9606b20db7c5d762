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

// Config holds all configuration for koi-prep
type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Quota     QuotaConfig
	Languages LanguagesConfig
	Sessions  SessionsConfig
	Telemetry TelemetryConfig
	Report    ReportConfig
	LogLevel  slog.Level
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port int
}

// GatewayConfig holds the language-model service configuration
type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the gateway call ledger.
// An empty DSN disables the ledger.
type DatabaseConfig struct {
	DSN           string
	MigrationsDir string
	MaxOpenConns  int
	MaxIdleConns  int
}

// Enabled reports whether a DSN was configured
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

// RedisConfig holds Redis configuration for the quota limiter.
// An empty address disables the quota.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Enabled reports whether an address was configured
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// QuotaConfig limits gateway-heavy requests per client address
type QuotaConfig struct {
	Limit  int
	Window time.Duration
}

// LanguagesConfig holds the language catalog location
type LanguagesConfig struct {
	Dir string
}

// SessionsConfig holds session lifetime settings
type SessionsConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// ReportConfig holds PDF export settings. Without a font file reports are
// drawn with a built-in face that has no Hangul glyphs.
type ReportConfig struct {
	FontPath string
	FontSize float64
}

// Load loads configuration from environment variables, after reading a .env
// file from the working directory if one exists
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Gateway: GatewayConfig{
			BaseURL:     strings.TrimRight(getEnv("GATEWAY_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:      getEnv("GATEWAY_API_KEY", ""),
			Model:       getEnv("GATEWAY_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvAsDuration("GATEWAY_TIMEOUT", 120*time.Second),
			MaxAttempts: getEnvAsInt("GATEWAY_MAX_ATTEMPTS", 2),
			RetryDelay:  getEnvAsDuration("GATEWAY_RETRY_DELAY", time.Second),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MigrationsDir: getEnv("DATABASE_MIGRATIONS_DIR", ""),
			MaxOpenConns:  getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:  getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Quota: QuotaConfig{
			Limit:  getEnvAsInt("QUOTA_LIMIT", 30),
			Window: getEnvAsDuration("QUOTA_WINDOW", time.Hour),
		},
		Languages: LanguagesConfig{
			Dir: getEnv("LANGUAGES_DIR", "./languages"),
		},
		Sessions: SessionsConfig{
			IdleTTL:         getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvAsBool("TELEMETRY_ENABLED", false),
			Endpoint:    getEnv("TELEMETRY_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("TELEMETRY_SERVICE_NAME", "koi-prep"),
		},
		Report: ReportConfig{
			FontPath: getEnv("REPORT_FONT_PATH", ""),
			FontSize: getEnvAsFloat("REPORT_FONT_SIZE", 11),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid gateway base url: %q", c.Gateway.BaseURL)
	}

	if c.Gateway.APIKey == "" && !isLocalHost(u.Hostname()) {
		return fmt.Errorf("gateway api key is required for %s", u.Host)
	}

	if c.Gateway.Model == "" {
		return fmt.Errorf("gateway model is required")
	}

	if c.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("gateway max attempts must be at least 1, got %d", c.Gateway.MaxAttempts)
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.Redis.Enabled() && (c.Quota.Limit < 1 || c.Quota.Window <= 0) {
		return fmt.Errorf("quota limit and window must be positive")
	}

	if c.Report.FontPath != "" && c.Report.FontSize <= 0 {
		return fmt.Errorf("report font size must be positive")
	}

	if c.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("session idle ttl must be positive")
	}

	return nil
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".local")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
