package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventsChannel       string
	AuthMode            string
	JWTSecret           string
	SummaryCacheTTL     time.Duration
	TransitionRateLimit int
	TransitionWindow    time.Duration
	MaxRetries          int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Activity Points API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.channel", "activity")
	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("summary.cache_ttl", "5m")
	v.SetDefault("transition.rate_limit", 30)
	v.SetDefault("transition.rate_window", "1m")
	v.SetDefault("workflow.max_retries", 1)

	ttl, err := parseDuration(v, "summary.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "transition.rate_window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventsChannel:       v.GetString("events.channel"),
		AuthMode:            strings.ToLower(strings.TrimSpace(v.GetString("auth.mode"))),
		JWTSecret:           v.GetString("jwt.secret"),
		SummaryCacheTTL:     ttl,
		TransitionRateLimit: v.GetInt("transition.rate_limit"),
		TransitionWindow:    window,
		MaxRetries:          v.GetInt("workflow.max_retries"),
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.AuthMode {
	case "jwt":
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("jwt secret must be provided")
		}
	case "header":
	default:
		return Config{}, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 1
	}
	if cfg.TransitionRateLimit <= 0 {
		cfg.TransitionRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
