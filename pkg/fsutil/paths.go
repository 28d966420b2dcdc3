package fsutil

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName is the directory name used below the XDG base directories.
const AppName = "fanfetch"

// GetCacheDir returns the application cache directory, e.g. ~/.cache/fanfetch.
func GetCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// GetConfigDir returns the application config directory, e.g. ~/.config/fanfetch.
func GetConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// GetPayloadCacheDir returns where fetched payloads are stored by default.
func GetPayloadCacheDir() string {
	return filepath.Join(GetCacheDir(), "payloads")
}
