// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Server   ServerConfig
	Auth     AuthConfig
	PokeAPI  PokeAPIConfig
	Sync     SyncConfig
	Featured FeaturedConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds local storage configuration.
type DataConfig struct {
	// BasePath holds the SQLite catalog and the Badger key-value directory.
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name         string
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey []byte
	// Session duration for local-account logins, e.g. 720h
	AccessTokenDuration time.Duration
}

// PokeAPIConfig holds remote catalog API configuration.
type PokeAPIConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	// RequestsPerSecond and Burst bound outbound calls per endpoint group.
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// SyncConfig holds the cache-first sync engine tunables.
type SyncConfig struct {
	PageSize int
	// ForegroundDelay separates detail fetches on the blocking path.
	ForegroundDelay time.Duration
	// BackgroundDelay separates detail fetches on background refreshes.
	BackgroundDelay time.Duration
	// BulkConcurrency bounds parallel detail fetches during bulk passes.
	BulkConcurrency int
	// SearchListingLimit is the listing size fetched for name search.
	SearchListingLimit int
}

// FeaturedConfig holds the item-of-the-day job configuration.
type FeaturedConfig struct {
	Enabled  bool
	Interval time.Duration
	MaxID    int
}

// flagValues carries raw command-line overrides. Empty means "not set".
type flagValues struct {
	env             string
	logLevel        string
	dataPath        string
	serverName      string
	serverPort      string
	readTimeout     string
	writeTimeout    string
	idleTimeout     string
	accessDuration  string
	pokeAPIURL      string
	pageSize        string
	bulkConcurrency string
	featuredEnabled string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	var fv flagValues
	flag.StringVar(&fv.env, "env", "", "Environment (development, staging, production)")
	flag.StringVar(&fv.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&fv.dataPath, "data-path", "", "Base path for local catalog storage")
	flag.StringVar(&fv.serverName, "server-name", "", "Name for the server")
	flag.StringVar(&fv.serverPort, "port", "", "Server port (default: 8080)")
	flag.StringVar(&fv.readTimeout, "read-timeout", "", "HTTP read timeout (default: 15s)")
	flag.StringVar(&fv.writeTimeout, "write-timeout", "", "HTTP write timeout (default: 15s)")
	flag.StringVar(&fv.idleTimeout, "idle-timeout", "", "HTTP idle timeout (default: 60s)")
	flag.StringVar(&fv.accessDuration, "access-token-duration", "", "Access token lifetime (e.g., 720h)")
	flag.StringVar(&fv.pokeAPIURL, "pokeapi-url", "", "PokeAPI base URL")
	flag.StringVar(&fv.pageSize, "page-size", "", "Catalog page size (default: 20)")
	flag.StringVar(&fv.bulkConcurrency, "bulk-concurrency", "", "Parallel detail fetches during bulk sync (default: 8)")
	flag.StringVar(&fv.featuredEnabled, "featured-enabled", "", "Run the item-of-the-day job (default: true)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Missing .env files are fine.
	_ = godotenv.Load(*envFile)

	return build(fv)
}

// LoadFromEnv loads configuration from the environment and an optional .env
// file without touching the global flag set. Used by tools that own their own
// argument parsing.
func LoadFromEnv(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	return build(flagValues{})
}

func build(fv flagValues) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(fv.env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(fv.logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(fv.dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name:           getConfigValue(fv.serverName, "SERVER_NAME", "PokePI Server"),
			Port:           getConfigValue(fv.serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue("", "CORS_ALLOWED_ORIGINS", "*")),
		},
		PokeAPI: PokeAPIConfig{
			BaseURL:           getConfigValue(fv.pokeAPIURL, "POKEAPI_BASE_URL", "https://pokeapi.co/api/v2/"),
			RequestsPerSecond: getFloatConfigValue("", "POKEAPI_RPS", 10),
			Burst:             getIntConfigValue("", "POKEAPI_BURST", 20),
			MaxRetries:        getIntConfigValue("", "POKEAPI_MAX_RETRIES", 3),
		},
		Sync: SyncConfig{
			PageSize:           getIntConfigValue(fv.pageSize, "SYNC_PAGE_SIZE", 20),
			BulkConcurrency:    getIntConfigValue(fv.bulkConcurrency, "SYNC_BULK_CONCURRENCY", 8),
			SearchListingLimit: getIntConfigValue("", "SYNC_SEARCH_LISTING_LIMIT", 1500),
		},
		Featured: FeaturedConfig{
			Enabled: getBoolConfigValue(fv.featuredEnabled, "FEATURED_ENABLED", true),
			MaxID:   getIntConfigValue("", "FEATURED_MAX_ID", 1010),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dest      *time.Duration
	}{
		{fv.readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{fv.writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{fv.idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{fv.accessDuration, "ACCESS_TOKEN_DURATION", "720h", &cfg.Auth.AccessTokenDuration},
		{"", "POKEAPI_REQUEST_TIMEOUT", "15s", &cfg.PokeAPI.RequestTimeout},
		{"", "SYNC_FOREGROUND_DELAY", "50ms", &cfg.Sync.ForegroundDelay},
		{"", "SYNC_BACKGROUND_DELAY", "100ms", &cfg.Sync.BackgroundDelay},
		{"", "FEATURED_INTERVAL", "24h", &cfg.Featured.Interval},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dest = parsed
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	u, err := url.Parse(c.PokeAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid PokeAPI base URL: %q", c.PokeAPI.BaseURL)
	}

	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.Sync.PageSize)
	}
	if c.Sync.BulkConcurrency <= 0 {
		return fmt.Errorf("bulk concurrency must be positive, got %d", c.Sync.BulkConcurrency)
	}
	if c.Sync.SearchListingLimit < c.Sync.PageSize {
		return fmt.Errorf("search listing limit %d is smaller than page size %d", c.Sync.SearchListingLimit, c.Sync.PageSize)
	}

	if c.Featured.Enabled && c.Featured.MaxID <= 0 {
		return errors.New("featured max id must be positive")
	}

	return nil
}

// SQLitePath returns the catalog database location.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Data.BasePath, "catalog.db")
}

// KVPath returns the key-value store directory.
func (c *Config) KVPath() string {
	return filepath.Join(c.Data.BasePath, "kv")
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults to ~/PokePI/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "PokePI", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
