package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the data directory path for printer-fleet
// Priority: PRINTER_FLEET_DATA_DIR env var > ~/.printer-fleet
func GetDataDir() string {
	if dir := os.Getenv("PRINTER_FLEET_DATA_DIR"); dir != "" {
		dir = os.ExpandEnv(dir)
		if strings.HasPrefix(dir, "~") {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
		}
		return dir
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".printer-fleet")
}

// GetDBPath returns the path to the printer registry database
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "fleet.db")
}

// GetLogPath returns the file the dashboard logs to while it owns the terminal
func GetLogPath() string {
	return filepath.Join(GetDataDir(), "dashboard.log")
}

// EnsureDataDirs creates all necessary data directories
func EnsureDataDirs() error {
	return os.MkdirAll(GetDataDir(), 0755)
}
