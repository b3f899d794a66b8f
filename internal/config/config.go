// Package config handles configuration loading, validation, and persistence
// for the quarry server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigFile = "config.toml"
	DefaultAddress    = "0.0.0.0:25565"
	DefaultAPIAddress = "127.0.0.1:8080"
	DefaultInboxSize  = 256
)

// Config is the root configuration structure. The game listener settings
// live at the top level; optional subsystems have their own tables.
type Config struct {
	mu   sync.RWMutex
	path string

	MOTD            string `toml:"motd"`
	Address         string `toml:"address"`
	MaxPlayers      int    `toml:"max_players"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec"`
	InboxSize       int    `toml:"inbox_size"`

	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	MQTT     MQTTConfig     `toml:"mqtt"`
	Timers   TimerConfig    `toml:"timers"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig holds the admin HTTP API settings.
type APIConfig struct {
	Enabled        bool     `toml:"enabled"`
	Address        string   `toml:"address"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimitRPS   int      `toml:"rate_limit_rps"`
	IPWhitelist    []string `toml:"ip_whitelist"`
	TrustedProxies []string `toml:"trusted_proxies"`
	Token          string   `toml:"token"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	TLSCertFile    string   `toml:"tls_cert_file"`
	TLSKeyFile     string   `toml:"tls_key_file"`
}

// DatabaseConfig holds the login history store settings.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
	CleanupTime   string `toml:"cleanup_time"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `toml:"enabled"`
	BrokerURL string `toml:"broker_url"`
	Port      int    `toml:"port"`
	UseTLS    bool   `toml:"use_tls"`
	CertFile  string `toml:"cert_file"`
	KeyFile   string `toml:"key_file"`
	CAFile    string `toml:"ca_file"`
	ClientID  string `toml:"client_id"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// TimerConfig holds background task intervals.
type TimerConfig struct {
	HeartbeatInterval   int `toml:"heartbeat_interval_sec"`
	SystemCheckInterval int `toml:"system_check_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Directory  string `toml:"directory"`
	Console    bool   `toml:"console"`
	MaxBackups int    `toml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MOTD:            "A Minecraft Server",
		Address:         DefaultAddress,
		MaxPlayers:      1,
		ReadTimeoutSec:  0,
		WriteTimeoutSec: 10,
		InboxSize:       DefaultInboxSize,
		API: APIConfig{
			Enabled:      false,
			Address:      DefaultAPIAddress,
			RateLimitRPS: 50,
			TLSCertFile:  "data/tls/cert.pem",
			TLSKeyFile:   "data/tls/key.pem",
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Path:          "data/quarry.db",
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			BrokerURL: "localhost",
			Port:      1883,
			ClientID:  "quarry",
		},
		Timers: TimerConfig{
			HeartbeatInterval:   60,
			SystemCheckInterval: 300,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			Console:    true,
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a TOML file at path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = path
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.path = path

	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

// Parse overlays the TOML document in data onto the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetMOTD returns the message of the day shown in the status document.
func (c *Config) GetMOTD() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MOTD
}

// GetMaxPlayers returns the advertised player limit.
func (c *Config) GetMaxPlayers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxPlayers
}

// SetMOTD replaces the message of the day.
func (c *Config) SetMOTD(motd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MOTD = motd
}

// SetMaxPlayers replaces the advertised player limit.
func (c *Config) SetMaxPlayers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MaxPlayers = n
}

// ReadTimeout returns the per-frame read deadline, or 0 when disabled.
func (c *Config) ReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the per-write deadline, or 0 when disabled.
func (c *Config) WriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.WriteTimeoutSec) * time.Second
}
