package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Remote:   RemoteConfig{Driver: DriverSQLite, Path: "/tmp/collectr.db"},
		Mutation: MutationConfig{RetryAttempts: 1},
		Cache:    CacheConfig{PageSize: 1000},
	}
}

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args = append([]string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	return loadFrom(fs, args)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_RemoteDriver(t *testing.T) {
	tests := []struct {
		name   string
		remote RemoteConfig
		valid  bool
	}{
		{"sqlite with path", RemoteConfig{Driver: DriverSQLite, Path: "/data/c.db"}, true},
		{"sqlite without path", RemoteConfig{Driver: DriverSQLite}, false},
		{"postgres with dsn", RemoteConfig{Driver: DriverPostgres, DSN: "postgres://localhost/c"}, true},
		{"postgres without dsn", RemoteConfig{Driver: DriverPostgres}, false},
		{"unknown driver", RemoteConfig{Driver: "mysql", DSN: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Remote = tt.remote

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_NegativeRetries(t *testing.T) {
	cfg := validConfig()
	cfg.Mutation.RetryAttempts = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("REMOTE_DRIVER", "")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "c.db"))
	t.Setenv("CACHE_PAGE_SIZE", "")
	t.Setenv("MUTATION_RETRY_ATTEMPTS", "")
	t.Setenv("CACHE_POLL_INTERVAL", "")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, DriverSQLite, cfg.Remote.Driver)
	assert.Equal(t, 1, cfg.Mutation.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Mutation.RetryBackoff)
	assert.Equal(t, 1000, cfg.Cache.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Cache.GracePeriod)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadFrom_FlagBeatsEnv(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "c.db"))
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CACHE_PAGE_SIZE", "50")

	cfg, err := load(t, "-log-level", "debug", "-page-size", "200")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 200, cfg.Cache.PageSize)
}

func TestLoadFrom_InvalidDuration(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "c.db"))

	_, err := load(t, "-retry-backoff", "soon")
	assert.ErrorContains(t, err, "retry backoff")
}

func TestExpandPath_Tilde(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/collectr/c.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "collectr", "c.db"), got)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default-value"))

	t.Setenv("TEST_ENV_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY_COLLECTR", "default-value"))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# collectr
REMOTE_DRIVER=postgres
QUOTED_VALUE="some value"
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	t.Setenv("REMOTE_DRIVER", "")
	t.Setenv("QUOTED_VALUE", "")
	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "postgres", os.Getenv("REMOTE_DRIVER"))
	assert.Equal(t, "some value", os.Getenv("QUOTED_VALUE"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\n"), 0o644))

	t.Setenv("LOG_LEVEL", "error")
	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "error", os.Getenv("LOG_LEVEL"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NOT_A_PAIR\n"), 0o644))

	assert.Error(t, loadEnvFile(envFile))
}
