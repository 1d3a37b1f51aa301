package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settingKeys = []string{
	"DAYBOOK_CONFIG_FILE",
	"DAYBOOK_HTTP_PORT",
	"DAYBOOK_STORE_DRIVER",
	"DAYBOOK_DATABASE_DSN",
	"DAYBOOK_PUBLIC_BASE_URL",
	"DAYBOOK_TIMEZONE",
	"DAYBOOK_LOG_LEVEL",
	"DAYBOOK_SESSION_TTL",
}

// isolate clears every setting and moves into an empty directory so a
// developer's .env cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()

	for _, key := range settingKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("DAYBOOK_PUBLIC_BASE_URL", "https://day.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, defaultSQLiteDSN, cfg.DatabaseDSN)
	assert.Equal(t, "https://day.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	isolate(t)
	t.Setenv("DAYBOOK_HTTP_PORT", "eighty")
	t.Setenv("DAYBOOK_STORE_DRIVER", "postgres")
	t.Setenv("DAYBOOK_TIMEZONE", "Mars/Olympus")
	t.Setenv("DAYBOOK_SESSION_TTL", "-1h")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t,
		"missing required settings: DAYBOOK_DATABASE_DSN, DAYBOOK_PUBLIC_BASE_URL; "+
			"invalid settings: DAYBOOK_HTTP_PORT, DAYBOOK_TIMEZONE, DAYBOOK_SESSION_TTL",
		err.Error())
}

func TestLoad_RejectsRelativeBaseURL(t *testing.T) {
	isolate(t)
	t.Setenv("DAYBOOK_PUBLIC_BASE_URL", "day.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid settings: DAYBOOK_PUBLIC_BASE_URL")
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)

	file := filepath.Join(dir, "daybook.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http_port: 9000
store_driver: memory
public_base_url: https://file.example.com
timezone: Asia/Tokyo
log_level: debug
session_ttl: 2h
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"DAYBOOK_HTTP_PORT=9100\nDAYBOOK_LOG_LEVEL=warn\n",
	), 0o600))

	t.Setenv("DAYBOOK_CONFIG_FILE", file)
	t.Setenv("DAYBOOK_LOG_LEVEL", "error")
	t.Cleanup(func() { _ = os.Unsetenv("DAYBOOK_HTTP_PORT") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort, ".env overrides the file")
	assert.Equal(t, "error", cfg.LogLevel, "environment overrides .env")
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Equal(t, "https://file.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "Asia/Tokyo", cfg.Location.String())
}

func TestLoad_BadConfigFile(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(file, []byte("http_port: [nope"), 0o600))
	t.Setenv("DAYBOOK_CONFIG_FILE", file)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}
