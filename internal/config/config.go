package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/judged/internal/rubric"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	LogLevel  string `yaml:"log_level"`  // debug|info|warn|error
	LogFormat string `yaml:"log_format"` // text|json

	EnableLocalAuth bool          `yaml:"enable_local_auth"`
	AuthHMACSecret  string        `yaml:"auth_hmac_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`

	AdminUser     string `yaml:"admin_user"`
	AdminPassHash string `yaml:"admin_pass_hash"` // bcrypt

	CORSOriginsOnline  []string `yaml:"cors_origins_online"`
	CORSOriginsOffline []string `yaml:"cors_origins_offline"`

	LockDefaultMinutes int     `yaml:"lock_default_minutes"`
	LockMaxMinutes     int     `yaml:"lock_max_minutes"`
	CommentThreshold   float64 `yaml:"comment_threshold"`
	DefaultScheme      string  `yaml:"default_scheme"`

	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Lock acquisition is limited per caller.
	AcquirePerMinute float64 `yaml:"acquire_per_minute"`
	AcquireBurst     int     `yaml:"acquire_burst"`

	EnableMetrics bool `yaml:"enable_metrics"`
}

const devSecret = "supersecret-dev-key"

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "text"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", devSecret),
		TokenTTL:           envDuration("TOKEN_TTL", 8*time.Hour),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://judging.example.com"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		LockDefaultMinutes: envInt("LOCK_DEFAULT_MINUTES", 60),
		LockMaxMinutes:     envInt("LOCK_MAX_MINUTES", 240),
		CommentThreshold:   envFloat("COMMENT_THRESHOLD", rubric.CommentThreshold),
		DefaultScheme:      envOr("DEFAULT_SCHEME", rubric.Weighted.Name),
		SweepInterval:      envDuration("SWEEP_INTERVAL", time.Minute),
		AcquirePerMinute:   envFloat("ACQUIRE_PER_MINUTE", 30),
		AcquireBurst:       envInt("ACQUIRE_BURST", 5),
		EnableMetrics:      envBool("ENABLE_METRICS", true),
	}
}

// Load reads .env (if present) into the environment, builds the config from
// it, applies the YAML file named by JUDGED_CONFIG on top and validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	cfg := FromEnv()
	if path := os.Getenv("JUDGED_CONFIG"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// Overlay replaces every field the YAML file at path sets.
func (c *Config) Overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModeOffline && c.Mode != ModeOnline {
		errs = append(errs, fmt.Errorf("mode must be offline or online, got %q", c.Mode))
	}
	if c.LockDefaultMinutes < 1 {
		errs = append(errs, errors.New("lock_default_minutes must be positive"))
	}
	if c.LockMaxMinutes < c.LockDefaultMinutes {
		errs = append(errs, errors.New("lock_max_minutes must be at least lock_default_minutes"))
	}
	if c.CommentThreshold < 0 || c.CommentThreshold > 100 {
		errs = append(errs, errors.New("comment_threshold must be within 0..100"))
	}
	if _, ok := rubric.Lookup(c.DefaultScheme); !ok {
		errs = append(errs, fmt.Errorf("default_scheme %q is not registered", c.DefaultScheme))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.AcquirePerMinute <= 0 || c.AcquireBurst < 1 {
		errs = append(errs, errors.New("acquire rate and burst must be positive"))
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == devSecret {
		errs = append(errs, errors.New("auth_hmac_secret must be set in online mode"))
	}
	return errors.Join(errs...)
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}
func envFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return def
}
func envDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
