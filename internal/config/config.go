package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Directory arcdps writes combat logs to
	WatchDir string
	// DataDir holds settings, upload history and analyzer reports
	DataDir string

	// Analyzer (Elite Insights CLI)
	AnalyzerPath    string
	AnalyzerTimeout time.Duration

	SettingsPath  string
	HistoryDBPath string

	// HTTP API
	HTTPPort int

	// Upload services
	DPSReportURL     string
	DPSReportTimeout time.Duration
	WingmanURL       string
	WingmanTimeout   time.Duration
	WingmanEnabled   bool

	// Observability
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string

	// Optional encounter sink
	ClickHouseEnabled bool
	ClickHouseHost    string
	ClickHousePort    int
	ClickHouseDB      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		WatchDir: getEnv("WATCH_DIR", defaultWatchDir()),
		DataDir:  dataDir,

		AnalyzerPath:    getEnv("ANALYZER_PATH", ""),
		AnalyzerTimeout: getEnvDuration("ANALYZER_TIMEOUT", 180*time.Second),

		SettingsPath:  getEnv("SETTINGS_PATH", filepath.Join(dataDir, "settings.yaml")),
		HistoryDBPath: getEnv("HISTORY_DB_PATH", filepath.Join(dataDir, "history.db")),

		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		DPSReportURL:     getEnv("DPS_REPORT_URL", "https://dps.report/uploadContent"),
		DPSReportTimeout: getEnvDuration("DPS_REPORT_TIMEOUT", 60*time.Second),
		WingmanURL:       getEnv("WINGMAN_URL", "https://gw2wingman.nevermindcreations.de"),
		WingmanTimeout:   getEnvDuration("WINGMAN_TIMEOUT", 180*time.Second),
		WingmanEnabled:   getEnvBool("WINGMAN_ENABLED", true),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),
		TracingProtocol: getEnv("TRACING_PROTOCOL", "grpc"),

		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseHost:    getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:    getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "gw2"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// AnalyzerOutputDir is where Elite Insights writes its reports
func (c *Config) AnalyzerOutputDir() string {
	return filepath.Join(c.DataDir, "log-data")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return fmt.Errorf("WATCH_DIR is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("ANALYZER_TIMEOUT must be positive")
	}
	if c.DPSReportTimeout <= 0 || c.WingmanTimeout <= 0 {
		return fmt.Errorf("upload timeouts must be positive")
	}
	if c.TracingProtocol != "grpc" && c.TracingProtocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be grpc or http, got %q", c.TracingProtocol)
	}
	if c.ClickHouseEnabled {
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when CLICKHOUSE_ENABLED is set")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" {
			return fmt.Errorf("CLICKHOUSE_DB is required when CLICKHOUSE_ENABLED is set")
		}
	}

	return nil
}

// defaultWatchDir is the arcdps default log location under the user's documents
func defaultWatchDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Documents", "Guild Wars 2", "addons", "arcdps", "arcdps.cbtlogs")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
