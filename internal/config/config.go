package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Query engines selectable with QUERY_ENGINE.
const (
	EngineIndex  = "index"
	EngineProlog = "prolog"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	KBSource            string        `mapstructure:"KB_SOURCE"`
	KBSheet             string        `mapstructure:"KB_SHEET"`
	KBTable             string        `mapstructure:"KB_TABLE"`
	ShowCode            bool          `mapstructure:"SHOW_CODE"`
	QueryEngine         string        `mapstructure:"QUERY_ENGINE"`
	ResolverMaxDistance int           `mapstructure:"RESOLVER_MAX_DISTANCE"`
	CacheTTL            time.Duration `mapstructure:"CACHE_TTL"`
	ReloadSchedule      string        `mapstructure:"RELOAD_SCHEDULE"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"KB_SOURCE", "KB_SHEET", "KB_TABLE",
	"SHOW_CODE", "QUERY_ENGINE", "RESOLVER_MAX_DISTANCE", "CACHE_TTL", "RELOAD_SCHEDULE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("KB_TABLE", "disease_symptom")
	v.SetDefault("SHOW_CODE", true)
	v.SetDefault("QUERY_ENGINE", EngineIndex)
	v.SetDefault("RESOLVER_MAX_DISTANCE", 0)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("AUTH_ISSUER", "ddx")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Set ENV=production and AUTH_SIGNING_KEY before exposing it.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Source is the relation source location: KB_SOURCE, or DATABASE_URL when
// only a database is configured.
func (c *Config) Source() string {
	if c.KBSource != "" {
		return c.KBSource
	}
	return c.DatabaseURL
}

// SigningKey decodes AUTH_SIGNING_KEY.
func (c *Config) SigningKey() ([]byte, error) {
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// BodyLimitBytes parses BODY_LIMIT, such as "512Ki" or "1M", into bytes.
func (c *Config) BodyLimitBytes() (int64, error) {
	n, err := bytes.Parse(c.BodyLimit)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("BODY_LIMIT %q is not a positive size", c.BodyLimit)
	}
	return n, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.Source() == "" {
		return fmt.Errorf("KB_SOURCE or DATABASE_URL is required")
	}
	if c.QueryEngine != EngineIndex && c.QueryEngine != EngineProlog {
		return fmt.Errorf("QUERY_ENGINE must be %q or %q, got %q", EngineIndex, EngineProlog, c.QueryEngine)
	}
	if c.ResolverMaxDistance < 0 {
		return fmt.Errorf("RESOLVER_MAX_DISTANCE must not be negative, got %d", c.ResolverMaxDistance)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	if _, err := c.BodyLimitBytes(); err != nil {
		return err
	}
	if c.ReloadSchedule != "" {
		if _, err := cron.ParseStandard(c.ReloadSchedule); err != nil {
			return fmt.Errorf("RELOAD_SCHEDULE %q is not a valid cron expression: %w", c.ReloadSchedule, err)
		}
	}

	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthSigningKey != "" {
		key, err := c.SigningKey()
		if err != nil {
			return err
		}
		if len(key) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
		}
	}

	return nil
}
