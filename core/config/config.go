package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Paths     PathsConfig
	Database  DatabaseConfig
	Instagram InstagramConfig
	RateLimit RateLimitConfig
	Publish   PublishConfig
	Token     TokenConfig
	Campaign  CampaignConfig
	Workers   WorkersConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type InstagramConfig struct {
	BaseURL        string
	AppID          string
	AppSecret      string
	RequestTimeout time.Duration
	ProcessingWait time.Duration // max wait for video container processing
}

// RateLimitConfig carries the per-account platform quotas. Both windows are
// fixed buckets: hour buckets for API calls, UTC-day buckets for publishes.
type RateLimitConfig struct {
	HourlyCalls    int
	DailyPublishes int
	Shards         int
}

type PublishConfig struct {
	RetryCeiling      int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	MissedGrace       time.Duration
	DispatchInterval  time.Duration
	DispatchBatchSize int
}

type TokenConfig struct {
	RefreshMargin  time.Duration
	RefreshRetries int
	RefreshWait    time.Duration // bounded wait for an in-flight refresh
	SweepInterval  time.Duration
}

type CampaignConfig struct {
	MinimumGap     time.Duration
	ConflictWindow time.Duration
	DefaultSlots   []int // UTC hours used when an account has no history
	PlanCacheTTL   time.Duration
}

type WorkersConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "kairo.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "kairo:"),
	}

	igCfg := InstagramConfig{
		BaseURL:        getEnv("INSTAGRAM_BASE_URL", "https://graph.instagram.com"),
		AppID:          getEnv("FACEBOOK_APP_ID", ""),
		AppSecret:      getEnv("FACEBOOK_APP_SECRET", ""),
		RequestTimeout: getEnvDuration("INSTAGRAM_REQUEST_TIMEOUT", 30*time.Second),
		ProcessingWait: getEnvDuration("INSTAGRAM_PROCESSING_WAIT", 5*time.Minute),
	}

	rateCfg := RateLimitConfig{
		HourlyCalls:    getEnvInt("RATE_HOURLY_CALLS", 200),
		DailyPublishes: getEnvInt("RATE_DAILY_PUBLISHES", 25),
		Shards:         getEnvInt("RATE_SHARDS", 16),
	}

	pubCfg := PublishConfig{
		RetryCeiling:      getEnvInt("PUBLISH_RETRY_CEILING", 3),
		BackoffBase:       getEnvDuration("PUBLISH_BACKOFF_BASE", time.Minute),
		BackoffCap:        getEnvDuration("PUBLISH_BACKOFF_CAP", 30*time.Minute),
		MissedGrace:       getEnvDuration("PUBLISH_MISSED_GRACE", 15*time.Minute),
		DispatchInterval:  getEnvDuration("DISPATCH_INTERVAL", 15*time.Second),
		DispatchBatchSize: getEnvInt("DISPATCH_BATCH_SIZE", 100),
	}

	tokenCfg := TokenConfig{
		RefreshMargin:  getEnvDuration("TOKEN_REFRESH_MARGIN", 24*time.Hour),
		RefreshRetries: getEnvInt("TOKEN_REFRESH_RETRIES", 2),
		RefreshWait:    getEnvDuration("TOKEN_REFRESH_WAIT", 30*time.Second),
		SweepInterval:  getEnvDuration("TOKEN_SWEEP_INTERVAL", time.Hour),
	}

	campaignCfg := CampaignConfig{
		MinimumGap:     getEnvDuration("CAMPAIGN_MINIMUM_GAP", 2*time.Hour),
		ConflictWindow: getEnvDuration("CAMPAIGN_CONFLICT_WINDOW", 2*time.Hour),
		DefaultSlots:   getEnvIntSlice("CAMPAIGN_DEFAULT_SLOTS", []int{9, 12, 17, 20}),
		PlanCacheTTL:   getEnvDuration("CAMPAIGN_PLAN_CACHE_TTL", 24*time.Hour),
	}

	workersCfg := WorkersConfig{
		Size:      getEnvInt("WORKER_POOL_SIZE", 8),
		QueueSize: getEnvInt("WORKER_QUEUE_SIZE", 100),
	}

	cfg := &Config{
		App:       appCfg,
		Paths:     pathsCfg,
		Database:  dbCfg,
		Instagram: igCfg,
		RateLimit: rateCfg,
		Publish:   pubCfg,
		Token:     tokenCfg,
		Campaign:  campaignCfg,
		Workers:   workersCfg,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	Global = cfg
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimit.HourlyCalls <= 0 {
		return fmt.Errorf("RATE_HOURLY_CALLS must be positive, got %d", c.RateLimit.HourlyCalls)
	}
	if c.RateLimit.DailyPublishes <= 0 {
		return fmt.Errorf("RATE_DAILY_PUBLISHES must be positive, got %d", c.RateLimit.DailyPublishes)
	}
	if c.Publish.BackoffBase <= 0 || c.Publish.BackoffCap < c.Publish.BackoffBase {
		return fmt.Errorf("invalid publish backoff window: base=%v cap=%v", c.Publish.BackoffBase, c.Publish.BackoffCap)
	}
	if c.Token.RefreshMargin <= 0 {
		return fmt.Errorf("TOKEN_REFRESH_MARGIN must be positive, got %v", c.Token.RefreshMargin)
	}
	if len(c.Campaign.DefaultSlots) == 0 {
		return fmt.Errorf("CAMPAIGN_DEFAULT_SLOTS must not be empty")
	}
	return nil
}
