package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	customConfigPath := filepath.Join(tempDir, "custom", "path", "config.toml")

	require.NoError(t, Init(customConfigPath))

	assert.Equal(t, filepath.Join(tempDir, "custom", "path"), GetConfigDir())
	assert.Equal(t, customConfigPath, GetConfigFilePath())
	assert.DirExists(t, GetConfigDir())
}

func TestDefaults(t *testing.T) {
	require.NoError(t, Init(filepath.Join(t.TempDir(), "config.toml")))

	relay := RelaySettings()
	assert.Equal(t, "ws://localhost:3001/api/v1/ws", relay.URL)
	assert.Empty(t, relay.UserID)
	assert.Equal(t, 5, relay.ReconnectAttempts)
	assert.Equal(t, time.Second, relay.ReconnectDelay)

	assert.Equal(t, "http://localhost:3001", GetString("api.base_url"))
	assert.Equal(t, 30*time.Second, APITimeout())
	assert.Equal(t, "info", GetString("log.level"))
	assert.Equal(t, filepath.Join(GetConfigDir(), "whisper.log"), GetString("log.file"))
}

func TestUserConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[relay]
url = "ws://relay.example:9000/api/v1/ws"
user_id = "u1"
reconnect_attempts = 2

[api]
base_url = "http://relay.example:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	require.NoError(t, Init(path))

	relay := RelaySettings()
	assert.Equal(t, "ws://relay.example:9000/api/v1/ws", relay.URL)
	assert.Equal(t, "u1", relay.UserID)
	assert.Equal(t, 2, relay.ReconnectAttempts)
	assert.Equal(t, time.Second, relay.ReconnectDelay)
	assert.Equal(t, "http://relay.example:9000", GetString("api.base_url"))
}

func TestSetStringPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Init(path))

	require.NoError(t, SetString("relay.user_id", "u42"))
	assert.FileExists(t, path)

	require.NoError(t, Init(path))
	assert.Equal(t, "u42", GetString("relay.user_id"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs/w.log"), expandPath("~/logs/w.log"))
	assert.Equal(t, "/var/log/w.log", expandPath("/var/log/w.log"))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("WHISPERS_RELAY_USER_ID", "from-env")
	require.NoError(t, Init(filepath.Join(t.TempDir(), "config.toml")))

	assert.Equal(t, "from-env", RelaySettings().UserID)
}
