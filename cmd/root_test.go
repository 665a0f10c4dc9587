package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvFile(t *testing.T) {
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	os.Clearenv()

	tmpdir := t.TempDir()
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General config

DH_TOKEN=your-discord-bot-token
DH_APPLICATION_ID=your-discord-bot-app-id
DH_PUBLIC_KEY=your_discord_public_key_here
DH_GUILD_ID=
DH_SYNC_COMMANDS_ON_START=true
DH_DISABLE_DEFAULT_GET_PATH=true
DH_LOG_LEVEL=DEBUG
DH_DISCORDGO_LOG_LEVEL=WARN
DH_STARTUP_TIMEOUT=30s
DH_SHUTDOWN_TIMEOUT=60s
DH_DEVELOPMENT=true

# Server

DH_SERVER_LISTEN=127.0.0.1:5001
DH_SERVER_LISTEN_NETWORK=tcp
DH_SERVER_LOG_LEVEL=INFO
DH_SERVER_READ_TIMEOUT=5s
DH_SERVER_READ_HEADER_TIMEOUT=5s
DH_SERVER_WRITE_TIMEOUT=10s
DH_SERVER_IDLE_TIMEOUT=30s
DH_SERVER_SSL_CERT=/etc/ssl/cert.pem
DH_SERVER_SSL_KEY=/etc/ssl/cert.key
DH_SERVER_SSL_TLS_MIN_VERSION=771

# Storage

DH_STORAGE_ENABLED=true
DH_STORAGE_TYPE=sqlite
DH_STORAGE_DSN=/home/foo/discordhttp.sqlite3
DH_STORAGE_LOG_LEVEL=INFO
DH_STORAGE_SLOW_THRESHOLD=200ms

# Metrics

DH_METRICS_ENABLED=true
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "your-discord-bot-token", cfg.Token)
	assert.Equal(t, "your-discord-bot-app-id", cfg.ApplicationID)
	assert.Equal(t, "your_discord_public_key_here", cfg.PublicKey)
	assert.True(t, cfg.SyncCommandsOnStart)
	assert.True(t, cfg.DisableDefaultGetPath)
	assert.True(t, cfg.Development)
	assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "127.0.0.1:5001", cfg.Server.Listen)
	assert.Equal(t, "/etc/ssl/cert.pem", cfg.Server.SSL.Cert)
	assert.Equal(t, "/etc/ssl/cert.key", cfg.Server.SSL.Key)
	assert.Equal(t, uint16(771), cfg.Server.SSL.TLSMinVersion)

	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/home/foo/discordhttp.sqlite3", cfg.Storage.DSN)
	assert.Equal(t, 200*time.Millisecond, cfg.Storage.SlowThreshold)

	assert.True(t, cfg.Metrics.Enabled)

	assertLogLevel(t, slog.LevelDebug, viper.Get("log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discordgo_log_level"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("server.log_level"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("storage.log_level"))
}

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestGetLogLevel(t *testing.T) {
	for levelName, expected := range map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	} {
		level, err := getLogLevel(levelName)
		require.NoError(t, err)
		assert.Equal(t, expected, level)
	}

	_, err := getLogLevel("LOUD")
	assert.Error(t, err)
}

func TestLevelToStringHookFunc(t *testing.T) {
	hook := LevelToStringHookFunc()

	result, err := hook(
		reflect.TypeOf(""),
		reflect.TypeOf(&slog.LevelVar{}),
		"WARN",
	)
	require.NoError(t, err)

	lvl, ok := result.(*slog.LevelVar)
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, lvl.Level())

	// non-level targets pass through untouched
	result, err = hook(
		reflect.TypeOf(""),
		reflect.TypeOf(""),
		"WARN",
	)
	require.NoError(t, err)
	assert.Equal(t, "WARN", result)

	_, err = hook(
		reflect.TypeOf(""),
		reflect.TypeOf(&slog.LevelVar{}),
		"LOUD",
	)
	assert.Error(t, err)
}
