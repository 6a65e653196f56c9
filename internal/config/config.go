// Package config loads omisync settings from the environment, an optional
// config file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/agentworkforce/omisync/internal/vault"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const EnvPrefix = "OMI"

// Keys double as environment variable names once upper-cased and prefixed,
// e.g. vault_path is read from OMI_VAULT_PATH.
const (
	KeyAPIKey                = "api_key"
	KeyAPIBaseURL            = "api_base_url"
	KeyVaultPath             = "vault_path"
	KeyFinalizationLag       = "finalization_lag_minutes"
	KeyTimezone              = "timezone"
	KeyNotableDuration       = "notable_duration_minutes"
	KeyNotableActionItemsMin = "notable_action_items_min"
	KeyNotableKeywords       = "notable_keywords"
	KeyStateBackendDSN       = "state_backend_dsn"
	KeyStrictRecords         = "strict_records"
	KeyPageSize              = "page_size"
	KeyMaxRetries            = "max_retries"
	KeyHTTPTimeout           = "http_timeout"
	KeyLogFile               = "log_file"
	KeyLogLevel              = "log_level"
	KeyWatchInterval         = "watch_interval"
	KeyWatchIntervalJitter   = "watch_interval_jitter"
	KeyWatchTimeout          = "watch_timeout"
)

const (
	DefaultWatchInterval       = 15 * time.Minute
	DefaultWatchIntervalJitter = 0.2
	DefaultWatchTimeout        = 5 * time.Minute
)

var DefaultKeywords = []string{
	"therapy", "therapist", "session", "1:1", "one-on-one",
	"standup", "retro", "planning", "interview", "doctor", "appointment",
}

type Config struct {
	APIKey                string
	APIBaseURL            string
	VaultPath             string
	FinalizationLag       time.Duration
	Timezone              string
	NotableDuration       time.Duration
	NotableActionItemsMin int
	NotableKeywords       []string
	StateBackendDSN       string
	StrictRecords         bool
	PageSize              int
	MaxRetries            int
	HTTPTimeout           time.Duration
	LogFile               string
	LogLevel              string
	WatchInterval         time.Duration
	WatchIntervalJitter   float64
	WatchTimeout          time.Duration
}

// NewViper returns a viper instance with omisync defaults and environment
// binding in place. Callers bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIBaseURL, "https://api.omi.me/v1/dev")
	v.SetDefault(KeyFinalizationLag, 10)
	v.SetDefault(KeyTimezone, "America/New_York")
	v.SetDefault(KeyNotableDuration, 25)
	v.SetDefault(KeyNotableActionItemsMin, 2)
	v.SetDefault(KeyNotableKeywords, strings.Join(DefaultKeywords, ","))
	v.SetDefault(KeyStrictRecords, false)
	v.SetDefault(KeyPageSize, 25)
	v.SetDefault(KeyMaxRetries, 5)
	v.SetDefault(KeyHTTPTimeout, "30s")
	v.SetDefault(KeyLogLevel, "INFO")
	v.SetDefault(KeyWatchInterval, DefaultWatchInterval.String())
	v.SetDefault(KeyWatchIntervalJitter, DefaultWatchIntervalJitter)
	v.SetDefault(KeyWatchTimeout, DefaultWatchTimeout.String())
	for _, key := range []string{KeyAPIKey, KeyVaultPath, KeyStateBackendDSN, KeyLogFile} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads configFile when given and builds a Config from v. It does not
// validate; see Validate.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config file %s: %w", ErrInvalidConfig, configFile, err)
		}
	}
	vaultPath, err := expandHome(v.GetString(KeyVaultPath))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		APIKey:                strings.TrimSpace(v.GetString(KeyAPIKey)),
		APIBaseURL:            strings.TrimSpace(v.GetString(KeyAPIBaseURL)),
		VaultPath:             vaultPath,
		FinalizationLag:       time.Duration(v.GetInt(KeyFinalizationLag)) * time.Minute,
		Timezone:              strings.TrimSpace(v.GetString(KeyTimezone)),
		NotableDuration:       time.Duration(v.GetInt(KeyNotableDuration)) * time.Minute,
		NotableActionItemsMin: v.GetInt(KeyNotableActionItemsMin),
		NotableKeywords:       keywordList(v),
		StateBackendDSN:       strings.TrimSpace(v.GetString(KeyStateBackendDSN)),
		StrictRecords:         v.GetBool(KeyStrictRecords),
		PageSize:              v.GetInt(KeyPageSize),
		MaxRetries:            v.GetInt(KeyMaxRetries),
		HTTPTimeout:           v.GetDuration(KeyHTTPTimeout),
		LogFile:               strings.TrimSpace(v.GetString(KeyLogFile)),
		LogLevel:              strings.TrimSpace(v.GetString(KeyLogLevel)),
		WatchInterval:         v.GetDuration(KeyWatchInterval),
		WatchIntervalJitter:   v.GetFloat64(KeyWatchIntervalJitter),
		WatchTimeout:          v.GetDuration(KeyWatchTimeout),
	}
	if cfg.LogFile == "" && cfg.VaultPath != "" {
		cfg.LogFile = filepath.Join(cfg.VaultPath, vault.RootDir, vault.SyncDir, "omisync.log")
	}
	return cfg, nil
}

// Validate reports every problem at once. The API key is only checked when
// requireAPIKey is set, since rebuild-index never talks to the API.
func (c Config) Validate(requireAPIKey bool) error {
	var problems []error
	if requireAPIKey && c.APIKey == "" {
		problems = append(problems, errors.New("OMI_API_KEY is required"))
	}
	if c.VaultPath == "" {
		problems = append(problems, errors.New("OMI_VAULT_PATH is required"))
	} else if info, err := os.Stat(c.VaultPath); err != nil || !info.IsDir() {
		problems = append(problems, fmt.Errorf("vault path %s does not exist or is not a directory", c.VaultPath))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err)
	}
	if c.FinalizationLag < 0 {
		problems = append(problems, errors.New("finalization lag must not be negative"))
	}
	if c.NotableDuration < 0 {
		problems = append(problems, errors.New("notable duration must not be negative"))
	}
	if c.NotableActionItemsMin < 0 {
		problems = append(problems, errors.New("notable action items minimum must not be negative"))
	}
	if c.PageSize <= 0 {
		problems = append(problems, errors.New("page size must be positive"))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, errors.New("max retries must not be negative"))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, errors.New("http timeout must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err)
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, errors.New("timezone is required")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	return loc, nil
}

// MaskedAPIKey keeps the first and last four characters of the key.
func (c Config) MaskedAPIKey() string {
	if c.APIKey == "" {
		return "(not set)"
	}
	if len(c.APIKey) <= 8 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return c.APIKey[:4] + strings.Repeat("*", len(c.APIKey)-8) + c.APIKey[len(c.APIKey)-4:]
}

// keywordList accepts either a comma-separated string (environment, flags)
// or a YAML/TOML list from a config file.
func keywordList(v *viper.Viper) []string {
	switch v.Get(KeyNotableKeywords).(type) {
	case []any, []string:
		var out []string
		for _, item := range v.GetStringSlice(KeyNotableKeywords) {
			out = append(out, splitList(item)...)
		}
		return out
	default:
		return splitList(v.GetString(KeyNotableKeywords))
	}
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

func expandHome(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
