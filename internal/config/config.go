package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database connection. Optional: without it the server runs in
	// validation-only mode (no query execution, no live schema view).
	DatabaseURL  string
	ReadOnly     bool
	MaxRows      int
	QueryTimeout time.Duration

	// Safety policy. PolicyFile wins over the individual knobs, which only
	// shape the built-in policy when no file is given.
	PolicyFile     string
	SafetyMode     string
	AllowDangerous bool
	MaxParseDepth  int
	DefaultRole    string

	// Schema view.
	Schemas               []string // empty means all non-system schemas
	SchemaRefreshInterval time.Duration

	// Logging.
	LogLevel slog.Level

	// Connection pool.
	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration

	// Observability.
	OTelEnabled bool

	// CLI-only fields (not settable via env vars).
	ExplainOnly bool
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL    *string
	LogLevel       *string
	MaxRows        *int
	QueryTimeout   *time.Duration
	PolicyFile     *string
	SafetyMode     *string
	AllowDangerous *bool
	MaxParseDepth  *int
	DefaultRole    *string
	OTelEnabled    bool
	ExplainOnly    bool
	AuditLog       string
}

// Load builds a Config from environment variables, then applies CLI
// overrides, then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		ReadOnly:              true,
		MaxRows:               100,
		QueryTimeout:          10 * time.Second,
		SafetyMode:            "strict",
		MaxParseDepth:         12,
		SchemaRefreshInterval: 5 * time.Minute,
		PoolMaxConns:          5,
		PoolMinConns:          1,
		PoolMaxConnLifetime:   30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("READ_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid READ_ONLY value %q: %w", v, err)
		}
		cfg.ReadOnly = b
	}

	if v := os.Getenv("MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("SCHEMAS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				cfg.Schemas = append(cfg.Schemas, s)
			}
		}
	}

	if v := os.Getenv("SCHEMA_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCHEMA_REFRESH_INTERVAL value %q: %w", v, err)
		}
		cfg.SchemaRefreshInterval = d
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("SAFETY_MODE"); v != "" {
		cfg.SafetyMode = v
	}
	if v := os.Getenv("ALLOW_DANGEROUS_QUERIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ALLOW_DANGEROUS_QUERIES value %q: %w", v, err)
		}
		cfg.AllowDangerous = b
	}
	if v := os.Getenv("MAX_PARSE_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_PARSE_DEPTH value %q: must be a positive integer", v)
		}
		cfg.MaxParseDepth = n
	}
	cfg.DefaultRole = os.Getenv("DEFAULT_ROLE")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.SafetyMode != nil {
		cfg.SafetyMode = *o.SafetyMode
	}
	if o.AllowDangerous != nil {
		cfg.AllowDangerous = *o.AllowDangerous
	}
	if o.MaxParseDepth != nil {
		if *o.MaxParseDepth <= 0 {
			return fmt.Errorf("invalid --max-parse-depth value: must be a positive integer")
		}
		cfg.MaxParseDepth = *o.MaxParseDepth
	}
	if o.DefaultRole != nil {
		cfg.DefaultRole = *o.DefaultRole
	}

	cfg.ExplainOnly = o.ExplainOnly
	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	switch cfg.SafetyMode {
	case "strict", "moderate", "permissive":
	default:
		return fmt.Errorf("invalid SAFETY_MODE value %q: must be \"strict\", \"moderate\" or \"permissive\"", cfg.SafetyMode)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
