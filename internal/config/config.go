package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                   = "SAFEYAK"
	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabaseDriver       = "sqlite"
	defaultDatabasePath         = "safeyak.db"
	defaultLogLevel             = "info"
	defaultLogFormat            = "json"
	defaultModerationTimeout    = 5 * time.Second
	defaultModerationRetryMax   = 2
	defaultUnconfiguredMode     = "fail_open"
	defaultBlurThreshold        = 0.60
	defaultHideThreshold        = 0.90
	defaultCooldown             = 15 * time.Second
	defaultMaxBodyLength        = 500
	defaultBlurPenalty          = 5
	defaultHidePenalty          = 10
	defaultUpvoteDelta          = 1
	defaultBookmarkDelta        = 2
	defaultViolationThreshold   = 3
	defaultLockOnSevere         = true
	defaultCacheTTL             = 30 * time.Second
	defaultCacheSize            = 10_000
	defaultModerationAPIURL     = "https://api-inference.huggingface.co/models/unitary/toxic-bert"
	defaultAllowedOriginsString = "*"
)

var defaultZones = []string{"Campus", "Dorm", "Confessions", "Events", "Advice"}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	ModerationAPIURL       string
	ModerationAPIKey       string
	ModerationTimeout      time.Duration
	ModerationRetryMax     int
	ModerationUnconfigured string
	BlurThreshold          float64
	HideThreshold          float64

	Cooldown      time.Duration
	MaxBodyLength int
	Zones         []string

	BlurPenalty   int
	HidePenalty   int
	UpvoteDelta   int
	BookmarkDelta int

	ViolationThreshold int
	LockOnSevere       bool

	CacheRedisURL string
	CacheTTL      time.Duration
	CacheSize     int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOriginsString)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)

	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")

	configViper.SetDefault("moderation.api_url", defaultModerationAPIURL)
	configViper.SetDefault("moderation.api_key", "")
	configViper.SetDefault("moderation.timeout", defaultModerationTimeout)
	configViper.SetDefault("moderation.retry_max", defaultModerationRetryMax)
	configViper.SetDefault("moderation.unconfigured_mode", defaultUnconfiguredMode)
	configViper.SetDefault("moderation.blur_threshold", defaultBlurThreshold)
	configViper.SetDefault("moderation.hide_threshold", defaultHideThreshold)

	configViper.SetDefault("content.cooldown", defaultCooldown)
	configViper.SetDefault("content.max_body_length", defaultMaxBodyLength)
	configViper.SetDefault("content.zones", strings.Join(defaultZones, ","))

	configViper.SetDefault("reputation.blur_penalty", defaultBlurPenalty)
	configViper.SetDefault("reputation.hide_penalty", defaultHidePenalty)
	configViper.SetDefault("reputation.upvote_delta", defaultUpvoteDelta)
	configViper.SetDefault("reputation.bookmark_delta", defaultBookmarkDelta)

	configViper.SetDefault("autolock.violation_threshold", defaultViolationThreshold)
	configViper.SetDefault("autolock.lock_on_severe", defaultLockOnSevere)

	configViper.SetDefault("cache.redis_url", "")
	configViper.SetDefault("cache.ttl", defaultCacheTTL)
	configViper.SetDefault("cache.size", defaultCacheSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),

		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),

		ModerationAPIURL:       configViper.GetString("moderation.api_url"),
		ModerationAPIKey:       strings.TrimSpace(configViper.GetString("moderation.api_key")),
		ModerationTimeout:      configViper.GetDuration("moderation.timeout"),
		ModerationRetryMax:     configViper.GetInt("moderation.retry_max"),
		ModerationUnconfigured: strings.ToLower(strings.TrimSpace(configViper.GetString("moderation.unconfigured_mode"))),
		BlurThreshold:          configViper.GetFloat64("moderation.blur_threshold"),
		HideThreshold:          configViper.GetFloat64("moderation.hide_threshold"),

		Cooldown:      configViper.GetDuration("content.cooldown"),
		MaxBodyLength: configViper.GetInt("content.max_body_length"),
		Zones:         splitList(configViper.GetString("content.zones")),

		BlurPenalty:   configViper.GetInt("reputation.blur_penalty"),
		HidePenalty:   configViper.GetInt("reputation.hide_penalty"),
		UpvoteDelta:   configViper.GetInt("reputation.upvote_delta"),
		BookmarkDelta: configViper.GetInt("reputation.bookmark_delta"),

		ViolationThreshold: configViper.GetInt("autolock.violation_threshold"),
		LockOnSevere:       configViper.GetBool("autolock.lock_on_severe"),

		CacheRedisURL: strings.TrimSpace(configViper.GetString("cache.redis_url")),
		CacheTTL:      configViper.GetDuration("cache.ttl"),
		CacheSize:     configViper.GetInt("cache.size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.BlurThreshold < 0 || c.HideThreshold > 1 || c.BlurThreshold >= c.HideThreshold {
		return fmt.Errorf("moderation thresholds must satisfy 0 <= blur_threshold < hide_threshold <= 1")
	}
	switch c.ModerationUnconfigured {
	case "fail_open", "fail_closed":
	default:
		return fmt.Errorf("moderation.unconfigured_mode must be fail_open or fail_closed")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("content.cooldown must not be negative")
	}
	if c.MaxBodyLength <= 0 {
		return fmt.Errorf("content.max_body_length must be positive")
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("content.zones must list at least one zone")
	}
	if c.BlurPenalty < 0 || c.HidePenalty < 0 || c.UpvoteDelta < 0 || c.BookmarkDelta < 0 {
		return fmt.Errorf("reputation deltas must not be negative")
	}
	if c.ViolationThreshold < 1 {
		return fmt.Errorf("autolock.violation_threshold must be at least 1")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
