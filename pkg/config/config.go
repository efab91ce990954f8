// Package config holds the whisper client configuration. Values come from
// built-in defaults, then a system config.toml, then the user's config.toml.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var configDir string
var configFilePath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\whispers
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "whispers"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/whispers
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "whispers"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "Whispers", "config.toml")}
	}

	return []string{
		"/etc/whispers/config.toml",
		"/usr/local/etc/whispers/config.toml",
	}
}

// Init initializes the configuration. An empty configPath uses the
// per-user config directory.
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	viper.Reset()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("whispers")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// System config first, user config overrides it
	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.ReadInConfig()
			break
		}
	}

	viper.SetConfigFile(configFilePath)
	if _, err := os.Stat(configFilePath); err == nil {
		if err := viper.MergeInConfig(); err != nil {
			return err
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("relay.url", "ws://localhost:3001/api/v1/ws")
	viper.SetDefault("relay.user_id", "")
	viper.SetDefault("relay.reconnect_attempts", 5)
	viper.SetDefault("relay.reconnect_delay_ms", 1000)

	viper.SetDefault("api.base_url", "http://localhost:3001")
	viper.SetDefault("api.timeout", 30)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "whisper.log"))
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "log.file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set overrides a value for this process only (command line flags)
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// SetString sets a string configuration value and persists the config file
func SetString(key string, value string) error {
	viper.Set(key, value)
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFilePath returns the user config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Relay holds the connection settings used by the socket manager
type Relay struct {
	URL               string
	UserID            string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// RelaySettings reads the relay.* keys
func RelaySettings() Relay {
	return Relay{
		URL:               GetString("relay.url"),
		UserID:            GetString("relay.user_id"),
		ReconnectAttempts: GetInt("relay.reconnect_attempts"),
		ReconnectDelay:    time.Duration(GetInt("relay.reconnect_delay_ms")) * time.Millisecond,
	}
}

// APITimeout returns api.timeout as a duration
func APITimeout() time.Duration {
	return time.Duration(GetInt("api.timeout")) * time.Second
}
