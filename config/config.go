package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultOptionsPath is where the Home Assistant supervisor writes add-on options
const DefaultOptionsPath = "/data/options.json"

// Config holds the gateway settings
type Config struct {
	Port              int
	DatabasePath      string
	AuditDatabasePath string
	APIKey            string
	ExternalAccess    bool
	WebSocket         bool
	RateLimit         int
	RateLimitWindow   time.Duration
	AllowAllQueries   bool
	AllowedTables     []string
	ConfigRoot        string
	ConfigFile        string
	BackupRetention   int
	SupervisorURL     string
	SupervisorToken   string
	SupervisorTimeout time.Duration
	MaxRowLimit       int
	TrustProxyHeaders bool
	LogLevel          string

	// OptionsLoaded is set when an options file overlaid the environment
	OptionsLoaded bool

	problems []string
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	return &Config{
		Port:              8080,
		DatabasePath:      "/config/home-assistant_v2.db",
		AuditDatabasePath: "gateway_audit.db",
		ExternalAccess:    true,
		WebSocket:         true,
		RateLimit:         100,
		RateLimitWindow:   60 * time.Second,
		AllowAllQueries:   true,
		ConfigRoot:        "/config",
		ConfigFile:        "configuration.yaml",
		BackupRetention:   10,
		SupervisorURL:     "http://supervisor",
		SupervisorTimeout: 30 * time.Second,
		MaxRowLimit:       10000,
		LogLevel:          "info",
	}
}

// Load reads .env when present, then the environment, then the add-on options file.
// Malformed values are reported by Validate rather than failing the load.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	cfg.loadEnv()

	optionsPath := os.Getenv("OPTIONS_PATH")
	if optionsPath == "" {
		optionsPath = DefaultOptionsPath
	}
	if err := cfg.loadOptions(optionsPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadEnv() {
	c.Port = c.envInt("PORT", c.Port)
	c.DatabasePath = envString("DATABASE_PATH", c.DatabasePath)
	c.AuditDatabasePath = envString("AUDIT_DATABASE_PATH", c.AuditDatabasePath)
	c.APIKey = envString("API_KEY", c.APIKey)
	c.ExternalAccess = c.envBool("ENABLE_EXTERNAL_ACCESS", c.ExternalAccess)
	c.WebSocket = c.envBool("ENABLE_WEBSOCKET", c.WebSocket)
	c.RateLimit = c.envInt("RATE_LIMIT", c.RateLimit)
	c.RateLimitWindow = c.envDuration("RATE_LIMIT_WINDOW", c.RateLimitWindow)
	c.AllowAllQueries = c.envBool("ALLOW_ALL_QUERIES", c.AllowAllQueries)
	if raw := os.Getenv("ALLOWED_TABLES"); raw != "" {
		c.AllowedTables = splitList(raw)
	}
	c.ConfigRoot = envString("CONFIG_ROOT", c.ConfigRoot)
	c.ConfigFile = envString("CONFIG_FILE", c.ConfigFile)
	c.BackupRetention = c.envInt("BACKUP_RETENTION", c.BackupRetention)
	c.SupervisorURL = envString("SUPERVISOR_URL", c.SupervisorURL)
	c.SupervisorToken = envString("SUPERVISOR_TOKEN", c.SupervisorToken)
	c.SupervisorTimeout = c.envDuration("SUPERVISOR_TIMEOUT", c.SupervisorTimeout)
	c.MaxRowLimit = c.envInt("MAX_ROW_LIMIT", c.MaxRowLimit)
	c.TrustProxyHeaders = c.envBool("TRUST_PROXY_HEADERS", c.TrustProxyHeaders)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
}

// options mirrors the add-on options schema. Absent keys leave the setting alone.
type options struct {
	Port                 *int            `json:"port"`
	DatabasePath         *string         `json:"database_path"`
	APIKey               *string         `json:"api_key"`
	EnableExternalAccess *bool           `json:"enable_external_access"`
	EnableWebSocket      *bool           `json:"enable_websocket"`
	RateLimit            *int            `json:"rate_limit"`
	AllowAllQueries      *bool           `json:"allow_all_queries"`
	AllowedTables        json.RawMessage `json:"allowed_tables"`
	BackupRetention      *int            `json:"backup_retention"`
	LogLevel             *string         `json:"log_level"`
}

func (c *Config) loadOptions(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read options file %s: %w", path, err)
	}

	var opts options
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("failed to parse options file %s: %w", path, err)
	}

	if opts.Port != nil {
		c.Port = *opts.Port
	}
	if opts.DatabasePath != nil && *opts.DatabasePath != "" {
		c.DatabasePath = *opts.DatabasePath
	}
	if opts.APIKey != nil {
		c.APIKey = *opts.APIKey
	}
	if opts.EnableExternalAccess != nil {
		c.ExternalAccess = *opts.EnableExternalAccess
	}
	if opts.EnableWebSocket != nil {
		c.WebSocket = *opts.EnableWebSocket
	}
	if opts.RateLimit != nil {
		c.RateLimit = *opts.RateLimit
	}
	if opts.AllowAllQueries != nil {
		c.AllowAllQueries = *opts.AllowAllQueries
	}
	if len(opts.AllowedTables) > 0 {
		tables, err := parseTables(opts.AllowedTables)
		if err != nil {
			return fmt.Errorf("failed to parse allowed_tables in %s: %w", path, err)
		}
		c.AllowedTables = tables
	}
	if opts.BackupRetention != nil {
		c.BackupRetention = *opts.BackupRetention
	}
	if opts.LogLevel != nil && *opts.LogLevel != "" {
		c.LogLevel = *opts.LogLevel
	}

	c.OptionsLoaded = true
	return nil
}

// parseTables accepts either a JSON list or a comma separated string
func parseTables(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return splitList(strings.Join(list, ",")), nil
	}
	var csv string
	if err := json.Unmarshal(raw, &csv); err != nil {
		return nil, errors.New("expected a list or a comma separated string")
	}
	return splitList(csv), nil
}

// Validate returns a list of configuration problems
func (c *Config) Validate() []string {
	problems := append([]string(nil), c.problems...)

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}
	if c.RateLimit < 1 {
		problems = append(problems, "RATE_LIMIT must be at least 1")
	}
	if c.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW must be positive")
	}
	if c.MaxRowLimit < 1 {
		problems = append(problems, "MAX_ROW_LIMIT must be at least 1")
	}
	if c.SupervisorTimeout <= 0 {
		problems = append(problems, "SUPERVISOR_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.ConfigRoot) == "" {
		problems = append(problems, "CONFIG_ROOT is required")
	}
	if strings.TrimSpace(c.ConfigFile) == "" {
		problems = append(problems, "CONFIG_FILE is required")
	}
	if c.AuditDatabasePath == "" {
		problems = append(problems, "AUDIT_DATABASE_PATH is required")
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	return problems
}

// SlogLevel returns the configured log level, info when unrecognised
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func (c *Config) envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s must be an integer, got %q", key, raw))
		return fallback
	}
	return n
}

func (c *Config) envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s must be true or false, got %q", key, raw))
		return fallback
	}
	return b
}

// envDuration accepts Go durations ("90s") or a bare number of seconds
func (c *Config) envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s must be a duration, got %q", key, raw))
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
