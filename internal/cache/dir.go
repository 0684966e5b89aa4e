package cache

import (
	"os"
	"path/filepath"
)

const (
	appName  = "LobbyPedidos"
	cacheDir = "cache"
)

// DefaultDir is the per-user application data directory:
// %AppData%\LobbyPedidos\cache on Windows,
// ~/Library/Application Support/LobbyPedidos/cache on macOS,
// $XDG_CONFIG_HOME (or ~/.config)/LobbyPedidos/cache elsewhere.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, appName, cacheDir)
}
