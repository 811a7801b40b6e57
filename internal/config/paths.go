package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/transana/srbxfer/internal/constants"
)

// getConfigDir returns the platform-appropriate config directory.
// - Windows: %APPDATA%\srbxfer
// - Unix: ~/.config/srbxfer (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", constants.AppName)
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, constants.AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", constants.AppName)
	}
	return "."
}

// ConfigDir returns the directory holding config.csv, profiles.ini and .env.
func ConfigDir() string {
	return getConfigDir()
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.csv")
}

// GetDefaultProfilesPath returns the default connection profiles path
func GetDefaultProfilesPath() string {
	return filepath.Join(getConfigDir(), "profiles.ini")
}

// GetDefaultEnvPath returns the .env file read at startup
func GetDefaultEnvPath() string {
	return filepath.Join(getConfigDir(), ".env")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir := getConfigDir()
	if configDir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(configDir, 0700)
}
