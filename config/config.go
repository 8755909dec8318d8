package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds file and environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	App      AppSection      `mapstructure:"app"`
	Database DatabaseSection `mapstructure:"database"`
	Redis    RedisSection    `mapstructure:"redis"`
	RabbitMQ RabbitSection   `mapstructure:"rabbitmq"`
	Log      LogSection      `mapstructure:"log"`
	Rewards  RewardsSection  `mapstructure:"rewards"`
	Scratch  ScratchSection  `mapstructure:"scratch"`
}

type AppSection struct {
	Port               string   `mapstructure:"port"`
	JWTSecret          string   `mapstructure:"jwt_secret" validate:"required"`
	GinMode            string   `mapstructure:"gin_mode" validate:"omitempty,oneof=debug release test"`
	GinPath            string   `mapstructure:"gin_path"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" validate:"gte=0"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	AdminUsernames     []string `mapstructure:"admin_usernames"`
}

type DatabaseSection struct {
	Driver      string `mapstructure:"driver" validate:"oneof=mysql postgres"`
	DatabaseURI string `mapstructure:"uri"`
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Name        string `mapstructure:"name"`
	SSLMode     string `mapstructure:"sslmode"`
}

type RedisSection struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	// Channel receives coin-earned events for the websocket gateway.
	Channel string `mapstructure:"channel"`
}

type RabbitSection struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url" validate:"required_if=Enabled true"`
	Exchange string `mapstructure:"exchange"`
	// RoutingKey used when publishing coin-earned events.
	RoutingKey string `mapstructure:"routing_key"`
}

type LogSection struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal silent"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MilestoneConfig maps a streak length to the reward rule paid when it is reached.
type MilestoneConfig struct {
	Days             int    `mapstructure:"days" validate:"min=1"`
	RewardKey        string `mapstructure:"reward_key" validate:"required"`
	BonusScratchCard bool   `mapstructure:"bonus_scratch_card"`
}

type RewardsSection struct {
	// Timezone is the organisation's operating zone; every daily fence is keyed on its calendar.
	Timezone        string            `mapstructure:"timezone" validate:"required"`
	CatalogCacheTTL time.Duration     `mapstructure:"catalog_cache_ttl"`
	RetryAttempts   int               `mapstructure:"retry_attempts" validate:"min=1,max=10"`
	RetryBaseDelay  time.Duration     `mapstructure:"retry_base_delay"`
	Milestones      []MilestoneConfig `mapstructure:"milestones" validate:"dive"`
}

type ScratchSection struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cron     string        `mapstructure:"cron" validate:"required_if=Enabled true"`
	PageSize int           `mapstructure:"page_size" validate:"min=1,max=10000"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

var cfg AppConfig
var loaded bool

// envBindings keeps the historical flat environment names working.
var envBindings = map[string]string{
	"app.port":                  "APP_PORT",
	"app.jwt_secret":            "JWT_SECRET",
	"app.gin_mode":              "GIN_MODE",
	"app.gin_path":              "GIN_PATH",
	"app.rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
	"app.allowed_origins":       "CORS_ALLOWED_ORIGINS",
	"app.admin_usernames":       "ADMIN_USERNAMES",
	"database.driver":           "DB_DRIVER",
	"database.uri":              "DATABASE_URI",
	"database.host":             "DB_HOST",
	"database.port":             "DB_PORT",
	"database.user":             "DB_USER",
	"database.password":         "DB_PASSWORD",
	"database.name":             "DB_NAME",
	"database.sslmode":          "DB_SSLMODE",
	"redis.enabled":             "REDIS_ENABLED",
	"redis.host":                "REDIS_HOST",
	"redis.port":                "REDIS_PORT",
	"redis.db":                  "REDIS_DB",
	"redis.password":            "REDIS_PASSWORD",
	"redis.channel":             "REDIS_CHANNEL",
	"rabbitmq.enabled":          "RABBITMQ_ENABLED",
	"rabbitmq.url":              "RABBITMQ_URL",
	"rabbitmq.exchange":         "RABBITMQ_EXCHANGE",
	"rabbitmq.routing_key":      "RABBITMQ_ROUTING_KEY",
	"log.level":                 "LOG_LEVEL",
	"log.path":                  "LOG_PATH",
	"log.max_size_mb":           "LOG_MAX_SIZE_MB",
	"log.max_backups":           "LOG_MAX_BACKUPS",
	"log.max_age_days":          "LOG_MAX_AGE_DAYS",
	"log.compress":              "LOG_COMPRESS",
	"rewards.timezone":          "REWARDS_TIMEZONE",
	"rewards.catalog_cache_ttl": "REWARDS_CATALOG_CACHE_TTL",
	"rewards.retry_attempts":    "REWARDS_RETRY_ATTEMPTS",
	"rewards.retry_base_delay":  "REWARDS_RETRY_BASE_DELAY",
	"scratch.enabled":           "SCRATCH_ENABLED",
	"scratch.cron":              "SCRATCH_CRON",
	"scratch.page_size":         "SCRATCH_PAGE_SIZE",
	"scratch.timeout":           "SCRATCH_TIMEOUT",
}

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// A local .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	c, err := LoadFrom(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Intended for tests and embedded use.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

// LoadFrom reads path (if present), applies defaults and environment overrides, and validates the result.
// Precedence: defaults -> config file -> environment variables.
func LoadFrom(path string) (AppConfig, error) {
	v := viper.New()
	applyDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return AppConfig{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return AppConfig{}, fmt.Errorf("read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, err
		}
	}

	var out AppConfig
	if err := v.Unmarshal(&out); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	out.App.AllowedOrigins = splitAndTrim(out.App.AllowedOrigins)
	out.App.AdminUsernames = splitAndTrim(out.App.AdminUsernames)

	if err := validator.New().Struct(out); err != nil {
		return AppConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return out, nil
}

// applyDefaults sets sane defaults for every key the service reads.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.gin_mode", "release")
	v.SetDefault("app.gin_path", "logs/go_gin.log")
	v.SetDefault("app.rate_limit_per_minute", 60)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "rewardhub")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.channel", "coins:earned")

	v.SetDefault("rabbitmq.exchange", "rewards")
	v.SetDefault("rabbitmq.routing_key", "coins.earned")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("rewards.timezone", "America/New_York")
	v.SetDefault("rewards.catalog_cache_ttl", time.Minute)
	v.SetDefault("rewards.retry_attempts", 3)
	v.SetDefault("rewards.retry_base_delay", 200*time.Millisecond)
	v.SetDefault("rewards.milestones", []map[string]any{
		{"days": 3, "reward_key": "streak_3_days"},
		{"days": 7, "reward_key": "streak_7_days"},
		{"days": 14, "reward_key": "streak_14_days"},
		{"days": 30, "reward_key": "streak_30_days", "bonus_scratch_card": true},
	})

	v.SetDefault("scratch.enabled", true)
	// seconds field first: run shortly after midnight in the reward timezone
	v.SetDefault("scratch.cron", "0 5 0 * * *")
	v.SetDefault("scratch.page_size", 500)
	v.SetDefault("scratch.timeout", 30*time.Minute)
}

// splitAndTrim flattens comma separated entries (env values arrive as one string) and drops blanks.
func splitAndTrim(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		for _, part := range strings.Split(item, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
