package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/shared/paths"
	"go.uber.org/zap"
)

type EnvValue struct {
	ServerPort   int
	PollInterval time.Duration
	PrinterPort  int
	GcodeTimeout time.Duration
	Origin       string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	DBPath       string
	SeedFile     string
	StaticDir    string
	DashboardLog string
}

var Value EnvValue

func init() {
	loadDotEnv()
	Value = Load()
}

func loadDotEnv() {
	execPath, err := os.Executable()
	if err != nil {
		execPath = ""
	}

	possiblePaths := []string{}
	if execPath != "" {
		possiblePaths = append(possiblePaths, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	possiblePaths = append(possiblePaths,
		".env",       // Current directory
		"../.env",    // Parent directory
		"../../.env", // Two levels up (for cmd/<binary>)
	)

	for _, path := range possiblePaths {
		if err := godotenv.Load(path); err == nil {
			if err := logger.ReloadFromEnv(); err != nil {
				logger.Warn("Failed to apply log settings from .env", zap.String("path", path), zap.Error(err))
			}
			logger.Debug("Loaded .env", zap.String("path", path))
			return
		}
	}
}

// Load reads the configuration from the process environment, applying
// defaults for anything unset or unparseable.
func Load() EnvValue {
	return EnvValue{
		ServerPort:   parseInt("SERVER_PORT", 8000),
		PollInterval: parseSeconds("POLL_INTERVAL", 10),
		PrinterPort:  parseInt("PRINTER_PORT", 3000),
		GcodeTimeout: parseSeconds("GCODE_TIMEOUT", 2),
		Origin:       getEnvOrDefault("FLEET_ORIGIN", "http://localhost:8000"),
		ReconnectMin: parseMillis("RECONNECT_MIN_MS", 250),
		ReconnectMax: parseMillis("RECONNECT_MAX_MS", 30000),
		DBPath:       getEnvOrDefault("FLEET_DB_PATH", paths.GetDBPath()),
		SeedFile:     getEnvOrDefault("FLEET_SEED_FILE", ""),
		StaticDir:    getEnvOrDefault("FLEET_STATIC_DIR", ""),
		DashboardLog: getEnvOrDefault("DASHBOARD_LOG", paths.GetLogPath()),
	}
}

// ListenAddr returns the address the server binds to.
func (v EnvValue) ListenAddr() string {
	return fmt.Sprintf(":%d", v.ServerPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	return value
}

func parseInt(key string, defaultValue int) int {
	s := getEnvOrDefault(key, "")
	if s == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		logger.Warn("Int conversion error, using default",
			zap.String("key", key), zap.String("value", s), zap.Int("default", defaultValue))
		return defaultValue
	}
	return i
}

func parseSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(parseInt(key, defaultValue)) * time.Second
}

func parseMillis(key string, defaultValue int) time.Duration {
	return time.Duration(parseInt(key, defaultValue)) * time.Millisecond
}
