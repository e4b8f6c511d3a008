// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Remote store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Remote   RemoteConfig
	Mutation MutationConfig
	Cache    CacheConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// RemoteConfig selects and configures the remote relational store.
type RemoteConfig struct {
	Driver  string        // sqlite or postgres (default: sqlite)
	Path    string        // sqlite database file
	DSN     string        // postgres connection string
	Timeout time.Duration // per-call timeout (default: 10s)
}

// MutationConfig controls how remote writes are attempted.
type MutationConfig struct {
	// RetryAttempts is the number of extra attempts after a transport failure (default: 1).
	// Constraint violations are never retried.
	RetryAttempts int
	RetryBackoff  time.Duration // initial backoff (default: 250ms)
}

// CacheConfig controls collection loading and external change detection.
type CacheConfig struct {
	PageSize     int           // rows per fetch page (default: 1000)
	PollInterval time.Duration // master timestamp poll interval, 0 disables (default: 30s)
	GracePeriod  time.Duration // window in which a remote change is attributed to us (default: 5s)
	MinRefetch   time.Duration // minimum spacing between external resyncs (default: 10s)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        // default: 8080
	ReadTimeout    time.Duration // default: 15s
	WriteTimeout   time.Duration // default: 15s
	IdleTimeout    time.Duration // default: 60s
	AllowedOrigins []string      // CORS origins (default: *)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return loadFrom(flag.CommandLine, os.Args[1:])
}

func loadFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	driver := fs.String("remote-driver", "", "Remote store driver (sqlite, postgres)")
	dbPath := fs.String("db-path", "", "Path to the sqlite database file")
	dsn := fs.String("dsn", "", "Postgres connection string")
	remoteTimeout := fs.String("remote-timeout", "", "Per-call remote timeout (default: 10s)")

	retryAttempts := fs.String("retry-attempts", "", "Extra attempts after a transport failure (default: 1)")
	retryBackoff := fs.String("retry-backoff", "", "Initial retry backoff (default: 250ms)")

	pageSize := fs.String("page-size", "", "Rows per fetch page (default: 1000)")
	pollInterval := fs.String("poll-interval", "", "External change poll interval (default: 30s, 0 disables)")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	origins := fs.String("allowed-origins", "", "Comma separated CORS origins (default: *)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Remote: RemoteConfig{
			Driver: getConfigValue(*driver, "REMOTE_DRIVER", DriverSQLite),
			Path:   getConfigValue(*dbPath, "DB_PATH", "~/.collectr/collectr.db"),
			DSN:    getConfigValue(*dsn, "DATABASE_URL", ""),
		},
		Mutation: MutationConfig{
			RetryAttempts: getIntConfigValue(*retryAttempts, "MUTATION_RETRY_ATTEMPTS", 1),
		},
		Cache: CacheConfig{
			PageSize: getIntConfigValue(*pageSize, "CACHE_PAGE_SIZE", 1000),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue(*origins, "ALLOWED_ORIGINS", "*")),
		},
	}

	durations := []struct {
		target             *time.Duration
		flagValue, envKey  string
		defaultValue, name string
	}{
		{&cfg.Remote.Timeout, *remoteTimeout, "REMOTE_TIMEOUT", "10s", "remote timeout"},
		{&cfg.Mutation.RetryBackoff, *retryBackoff, "MUTATION_RETRY_BACKOFF", "250ms", "retry backoff"},
		{&cfg.Cache.PollInterval, *pollInterval, "CACHE_POLL_INTERVAL", "30s", "poll interval"},
		{&cfg.Cache.GracePeriod, "", "CACHE_GRACE_PERIOD", "5s", "grace period"},
		{&cfg.Cache.MinRefetch, "", "CACHE_MIN_REFETCH", "10s", "min refetch"},
		{&cfg.Server.ReadTimeout, "", "SERVER_READ_TIMEOUT", "15s", "read timeout"},
		{&cfg.Server.WriteTimeout, "", "SERVER_WRITE_TIMEOUT", "15s", "write timeout"},
		{&cfg.Server.IdleTimeout, "", "SERVER_IDLE_TIMEOUT", "60s", "idle timeout"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.defaultValue)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.target = parsed
	}

	if cfg.Remote.Driver == DriverSQLite {
		expanded, err := expandPath(cfg.Remote.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid db path: %w", err)
		}
		cfg.Remote.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
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

	switch c.Remote.Driver {
	case DriverSQLite:
		if c.Remote.Path == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Remote.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid remote driver: %q (must be sqlite or postgres)", c.Remote.Driver)
	}

	if c.Mutation.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}
	if c.Cache.PageSize <= 0 {
		return errors.New("page size must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
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

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
