// Package common provides shared utilities for Gatehouse
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Gatehouse
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Gateway     GatewayConfig  `toml:"gateway"`
	Storage     StorageConfig  `toml:"storage"`
	Security    SecurityConfig `toml:"security"`
	Scanner     ScannerConfig  `toml:"scanner"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds portal HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GatewayConfig holds reverse-proxy configuration.
type GatewayConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	PublicURL    string `toml:"public_url"`    // externally visible base URL, e.g. http://localhost:8500
	UpstreamHost string `toml:"upstream_host"` // where protected apps listen, default 127.0.0.1
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "badger" (default) or "surrealdb"
	Path      string `toml:"path"`    // badger data directory
	Address   string `toml:"address"` // surrealdb ws address
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// SecurityConfig holds session, token, and credential configuration.
type SecurityConfig struct {
	JWTSecret        string `toml:"jwt_secret"`
	SessionExpiry    string `toml:"session_expiry"`     // portal session lifetime, default "24h"
	TokenExpiry      string `toml:"token_expiry"`       // access token lifetime, default "60s"
	AppSessionExpiry string `toml:"app_session_expiry"` // gateway cookie lifetime, default "2h"
	LoginRateLimit   int    `toml:"login_rate_limit"`   // login attempts per minute per IP
	BootstrapAdmin   string `toml:"bootstrap_admin"`    // "username:password", seeded on empty store
}

// GetSessionExpiry parses and returns the portal session lifetime.
func (c *SecurityConfig) GetSessionExpiry() time.Duration {
	d, err := time.ParseDuration(c.SessionExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetTokenExpiry parses and returns the access token lifetime.
func (c *SecurityConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetAppSessionExpiry parses and returns the gateway cookie lifetime.
func (c *SecurityConfig) GetAppSessionExpiry() time.Duration {
	d, err := time.ParseDuration(c.AppSessionExpiry)
	if err != nil {
		return 2 * time.Hour
	}
	return d
}

// ScannerConfig holds discovery scanner configuration.
type ScannerConfig struct {
	PortStart      int    `toml:"port_start"`
	PortEnd        int    `toml:"port_end"`
	MaxWorkers     int    `toml:"max_workers"`
	ConnectTimeout string `toml:"connect_timeout"` // TCP probe, default "100ms"
	VerifyTimeout  string `toml:"verify_timeout"`  // HTTP verify, default "500ms"
	CacheTTL       string `toml:"cache_ttl"`       // default "60s"
	Signature      string `toml:"signature"`       // body substring identifying the app framework
}

// GetConnectTimeout parses and returns the TCP probe timeout.
func (c *ScannerConfig) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetVerifyTimeout parses and returns the HTTP verify timeout.
func (c *ScannerConfig) GetVerifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.VerifyTimeout)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetCacheTTL parses and returns the scan result cache TTL.
func (c *ScannerConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8501,
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8500,
			PublicURL:    "http://localhost:8500",
			UpstreamHost: "127.0.0.1",
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Path:      "data/gatehouse",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "gatehouse",
			Database:  "portal",
			Username:  "root",
			Password:  "root",
		},
		Security: SecurityConfig{
			JWTSecret:        "dev-jwt-secret-change-in-production",
			SessionExpiry:    "24h",
			TokenExpiry:      "60s",
			AppSessionExpiry: "2h",
			LoginRateLimit:   10,
			BootstrapAdmin:   "admin:admin123",
		},
		Scanner: ScannerConfig{
			PortStart:      8502,
			PortEnd:        8600,
			MaxWorkers:     50,
			ConnectTimeout: "100ms",
			VerifyTimeout:  "500ms",
			CacheTTL:       "60s",
			Signature:      "streamlit",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	if err := validateScannerRange(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GATEHOUSE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("GATEHOUSE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("GATEHOUSE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if port := os.Getenv("GATEHOUSE_GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Gateway.Port = p
		}
	}

	if url := os.Getenv("GATEHOUSE_GATEWAY_URL"); url != "" {
		config.Gateway.PublicURL = url
	}

	if level := os.Getenv("GATEHOUSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("GATEHOUSE_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if path := os.Getenv("GATEHOUSE_DATA_PATH"); path != "" {
		config.Storage.Path = filepath.Join(path, "gatehouse")
	}

	if addr := os.Getenv("GATEHOUSE_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if v := os.Getenv("GATEHOUSE_JWT_SECRET"); v != "" {
		config.Security.JWTSecret = v
	}
	if v := os.Getenv("GATEHOUSE_SESSION_EXPIRY"); v != "" {
		config.Security.SessionExpiry = v
	}
	if v := os.Getenv("GATEHOUSE_TOKEN_EXPIRY"); v != "" {
		config.Security.TokenExpiry = v
	}
	if v := os.Getenv("GATEHOUSE_BOOTSTRAP_ADMIN"); v != "" {
		config.Security.BootstrapAdmin = v
	}

	if v := os.Getenv("GATEHOUSE_SCAN_RANGE"); v != "" {
		// "8502-8600" form
		parts := strings.SplitN(v, "-", 2)
		if len(parts) == 2 {
			if lo, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
				if hi, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					config.Scanner.PortStart = lo
					config.Scanner.PortEnd = hi
				}
			}
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateScannerRange rejects inverted or out-of-range scan bounds early,
// before a scan request can trip over them.
func validateScannerRange(config *Config) error {
	s := config.Scanner
	if s.PortStart < 1 || s.PortEnd > 65535 || s.PortStart > s.PortEnd {
		return fmt.Errorf("invalid scanner port range %d-%d", s.PortStart, s.PortEnd)
	}
	if s.MaxWorkers < 1 {
		config.Scanner.MaxWorkers = 50
	}
	return nil
}
