// Package config loads overachiever configuration from config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Sentinel errors for missing required settings.
var (
	// ErrMissingAPIKey is returned when no Steam Web API key is configured.
	ErrMissingAPIKey = errors.New("missing STEAM_API_KEY (steam.api_key)")

	// ErrMissingSteamID is returned when local commands run without a Steam ID.
	ErrMissingSteamID = errors.New("missing STEAM_ID (steam.steam_id)")

	// ErrMissingJWTSecret is returned when the server runs without a signing secret.
	ErrMissingJWTSecret = errors.New("missing JWT_SECRET (server.jwt_secret)")
)

// Config is the full application configuration.
type Config struct {
	Steam    SteamConfig    `mapstructure:"steam"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

// SteamConfig holds Steam Web API credentials.
type SteamConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	SteamID     string        `mapstructure:"steam_id" validate:"omitempty,numeric,len=17"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}

// DatabaseConfig selects the store. URL (PostgreSQL) wins over SQLitePath.
type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Addr        string        `mapstructure:"addr" validate:"required"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	CallbackURL string        `mapstructure:"callback_url" validate:"omitempty,url"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	// Pacing is the fixed delay between per-game Steam calls.
	Pacing   time.Duration `mapstructure:"pacing" validate:"gte=0"`
	LogLimit int           `mapstructure:"log_limit" validate:"gt=0"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// envBindings maps config keys to their conventional environment variables.
var envBindings = map[string]string{
	"steam.api_key":        "STEAM_API_KEY",
	"steam.steam_id":       "STEAM_ID",
	"steam.http_timeout":   "STEAM_HTTP_TIMEOUT",
	"database.url":         "DATABASE_URL",
	"database.sqlite_path": "SQLITE_PATH",
	"server.addr":          "BIND_ADDRESS",
	"server.jwt_secret":    "JWT_SECRET",
	"server.callback_url":  "STEAM_CALLBACK_URL",
	"sync.pacing":          "SYNC_PACING",
	"log.level":            "LOG_LEVEL",
	"log.format":           "LOG_FORMAT",
}

// Load reads configuration. When path is empty, config.yaml is searched in
// "." and "./config"; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetDefault("steam.http_timeout", 30*time.Second)
	v.SetDefault("database.sqlite_path", "overachiever.db")
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.callback_url", "http://localhost:8080/auth/steam/callback")
	v.SetDefault("server.token_ttl", 7*24*time.Hour)
	v.SetDefault("sync.pacing", 200*time.Millisecond)
	v.SetDefault("sync.log_limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	v.SetEnvPrefix("OVERACHIEVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field-level constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateLocal checks the settings local sync commands need.
func (c *Config) ValidateLocal() error {
	if c.Steam.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Steam.SteamID == "" {
		return ErrMissingSteamID
	}
	return nil
}

// ValidateServer checks the settings the server needs. A missing API key is
// allowed; Steam sync is then reported as not configured.
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
