// Package config holds the bridge configuration: a JSON file with
// environment-variable substitution, plus direct env overrides for the
// handful of knobs operators set without a config file.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Contacts ContactsConfig `json:"contacts"`
	Backend  BackendConfig  `json:"backend"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	StateDir string `json:"stateDir"`
	LogLevel string `json:"logLevel"`
}

// ContactsConfig is the sender authorization policy.
type ContactsConfig struct {
	// AllowedOnly: when non-empty, only these numbers are processed.
	AllowedOnly FlexStringList `json:"allowedOnly"`
	// Excluded numbers are always rejected, even when also allowed.
	Excluded FlexStringList `json:"excluded"`
}

type BackendConfig struct {
	BaseURL             string `json:"baseUrl"`
	TimeoutSeconds      int    `json:"timeoutSeconds"`
	MediaTimeoutSeconds int    `json:"mediaTimeoutSeconds"`
}

type WhatsAppConfig struct {
	SessionDB             string `json:"sessionDb"`
	QRImagePath           string `json:"qrImagePath"`
	ReconnectDelaySeconds int    `json:"reconnectDelaySeconds"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// FlexStringList is a []string that also unmarshals from JSON arrays
// containing numbers, so phone numbers can be written without quotes.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.salonbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".salonbot"
	}
	return filepath.Join(home, ".salonbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads and validates a config file. ${VAR} references in the file
// are substituted, then direct env overrides are applied on top.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnvOverrides(cfg)

	cfg.General.StateDir = ExpandPath(cfg.General.StateDir)
	cfg.WhatsApp.SessionDB = ExpandPath(cfg.WhatsApp.SessionDB)
	cfg.WhatsApp.QRImagePath = ExpandPath(cfg.WhatsApp.QRImagePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides keeps the original deployment surface working: the
// contact lists and backend URL can be set without a config file.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("SALONBOT_INCLUDED_ONLY"); ok {
		cfg.Contacts.AllowedOnly = splitList(v)
	}
	if v, ok := os.LookupEnv("SALONBOT_EXCLUDED"); ok {
		cfg.Contacts.Excluded = splitList(v)
	}
	if v, ok := os.LookupEnv("SALONBOT_API_BASE_URL"); ok && v != "" {
		cfg.Backend.BaseURL = v
	}
}

func splitList(s string) FlexStringList {
	var out FlexStringList
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(name)
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes the config as indented JSON, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks cross-field constraints and bounds.
func Validate(cfg *Config) error {
	var errs []string

	if !validLogLevels[cfg.General.LogLevel] {
		errs = append(errs, fmt.Sprintf("general.logLevel: unknown level %q", cfg.General.LogLevel))
	}
	if cfg.Backend.BaseURL == "" {
		errs = append(errs, "backend.baseUrl is required")
	} else if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.baseUrl: %q is not an absolute URL", cfg.Backend.BaseURL))
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		errs = append(errs, "backend.timeoutSeconds must be positive")
	}
	if cfg.Backend.MediaTimeoutSeconds <= 0 {
		errs = append(errs, "backend.mediaTimeoutSeconds must be positive")
	}
	if cfg.WhatsApp.SessionDB == "" {
		errs = append(errs, "whatsapp.sessionDb is required")
	}
	if cfg.WhatsApp.ReconnectDelaySeconds < 0 {
		errs = append(errs, "whatsapp.reconnectDelaySeconds must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
