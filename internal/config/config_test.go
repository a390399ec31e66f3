package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"KRISKINDLE_CONFIG", "PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL",
	"INVITE_SECRET", "LOG_LEVEL", "STORE_TIMEOUT", "JOIN_RETRIES",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// clearEnv unsets every variable the loader reads. t.Setenv registers the
// restore so values written by godotenv are undone too.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestPrecedence(t *testing.T) {
	clearEnv(t)

	yamlPath := writeFile(t, "config.yaml", `
port: 9000
log_level: debug
join_retries: 3
store_timeout: 2s
rate_limit:
  rps: 5
  burst: 10
`)
	envFile := writeFile(t, ".env", "LOG_LEVEL=warn\nINVITE_SECRET=from-dotenv-file-secret\n")

	t.Setenv("KRISKINDLE_CONFIG", yamlPath)
	t.Setenv("JOIN_RETRIES", "4")

	cfg, err := LoadFrom(envFile)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port, "yaml overrides default")
	assert.Equal(t, "warn", cfg.LogLevel, ".env overrides yaml")
	assert.Equal(t, "from-dotenv-file-secret", cfg.InviteSecret)
	assert.Equal(t, 4, cfg.JoinRetries, "environment overrides yaml")
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, RateLimit{RPS: 5, Burst: 10}, cfg.RateLimit)
}

func TestMissingFilesAreIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("KRISKINDLE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"DB_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"short secret", map[string]string{"INVITE_SECRET": "short"}},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}},
		{"port not a number", map[string]string{"PORT": "http"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"bad timeout", map[string]string{"STORE_TIMEOUT": "soon"}},
		{"zero retries", map[string]string{"JOIN_RETRIES": "0"}},
		{"negative rps", map[string]string{"RATE_LIMIT_RPS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom("")
			assert.Error(t, err)
		})
	}
}

func TestPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/kriskindle")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
}
