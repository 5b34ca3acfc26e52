package fsutil

import (
	"os"
	"path/filepath"
)

// AppName is the name of the application used in paths.
const AppName = "extly"

// GetCacheDir returns the platform-specific cache directory for the application.
// On Linux: ~/.cache/extly/
// On macOS: ~/Library/Caches/extly/
// On Windows: %LOCALAPPDATA%\extly\
func GetCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// GetConfigDir returns the platform-specific configuration directory.
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// GetSourceCacheDir returns the directory holding downloaded registry indexes
// and archives for the named source.
func GetSourceCacheDir(source string) (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "sources", source), nil
}
