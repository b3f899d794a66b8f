package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(cfg, result)
	validateAPI(&cfg.API, result)
	validateDatabase(&cfg.Database, result)
	validateMQTT(&cfg.MQTT, result)
	validateTimers(&cfg.Timers, result)

	return result
}

func validateServer(cfg *Config, result *ValidationResult) {
	validateAddress(cfg.Address, "address", result)

	if strings.TrimSpace(cfg.MOTD) == "" {
		result.AddWarning("motd", "motd is empty, clients will show a blank description")
	}
	if cfg.MaxPlayers < 0 {
		result.AddError("max_players", "max players cannot be negative")
	}
	if cfg.ReadTimeoutSec < 0 {
		result.AddError("read_timeout_sec", "read timeout cannot be negative")
	}
	if cfg.WriteTimeoutSec < 0 {
		result.AddError("write_timeout_sec", "write timeout cannot be negative")
	}
	if cfg.WriteTimeoutSec == 0 {
		result.AddWarning("write_timeout_sec", "write timeout disabled, a stalled client can block the dispatcher")
	}
	if cfg.InboxSize < 1 {
		result.AddError("inbox_size", "inbox size must be at least 1")
	}
}

func validateAPI(api *APIConfig, result *ValidationResult) {
	if !api.Enabled {
		return
	}
	validateAddress(api.Address, "api.address", result)
	if api.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
	if api.TLSEnabled && (strings.TrimSpace(api.TLSCertFile) == "" || strings.TrimSpace(api.TLSKeyFile) == "") {
		result.AddError("api.tls_cert_file", "certificate and key paths are required when TLS is enabled")
	}
	for _, entry := range api.IPWhitelist {
		if !isIPOrCIDR(entry) {
			result.AddError("api.ip_whitelist", fmt.Sprintf("invalid IP or CIDR: %s", entry))
		}
	}
	for _, entry := range api.TrustedProxies {
		if !isIPOrCIDR(entry) {
			result.AddError("api.trusted_proxies", fmt.Sprintf("invalid IP or CIDR: %s", entry))
		}
	}
	if strings.TrimSpace(api.Token) == "" {
		result.AddWarning("api.token", "no API token set, control and configure endpoints are disabled")
	} else if len(api.Token) < 16 {
		result.AddWarning("api.token", "API token is shorter than 16 characters")
	}
}

func isIPOrCIDR(entry string) bool {
	if net.ParseIP(entry) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(entry)
	return err == nil
}

func validateDatabase(db *DatabaseConfig, result *ValidationResult) {
	if !db.Enabled {
		return
	}
	if strings.TrimSpace(db.Path) == "" {
		result.AddError("database.path", "database path is required when enabled")
	}
	if db.RetentionDays < 1 {
		result.AddError("database.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", db.CleanupTime); err != nil {
		result.AddError("database.cleanup_time", fmt.Sprintf("invalid time %q (expected HH:MM)", db.CleanupTime))
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && m.CAFile == "" {
		result.AddWarning("mqtt.ca_file", "no CA file set, the system roots will be used")
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.HeartbeatInterval < 10 {
		result.AddWarning("timers.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
	if timers.SystemCheckInterval < 10 {
		result.AddWarning("timers.system_check_interval_sec",
			"system check interval less than 10s may cause excessive load")
	}
}

func validateAddress(addr, field string, result *ValidationResult) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid address %q: %v", addr, err))
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid port %q", portStr))
		return
	}
	validatePort(port, field, result)
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 0 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 0-65535)", port))
		return
	}
	if port > 0 && port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
