package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration validation constants
const (
	MinRefreshInterval = 60    // Minimum refresh interval in seconds
	MinPort            = 1     // Minimum valid port number
	MaxPort            = 65535 // Maximum valid port number

	// Default values
	DefaultRefreshInterval = 300 // 5 minutes in seconds
	DefaultHTTPPort        = 8080
	DefaultLogLevel        = "info"
	DefaultRegion          = "us-east-1"
)

// Account represents one AWS account to scan
type Account struct {
	ID      string   `yaml:"account_id"`
	Name    string   `yaml:"account_name"`
	Regions []string `yaml:"regions"`
}

// AccountOverride carries per-account settings that replace the
// template-derived defaults
type AccountOverride struct {
	RoleARN string `yaml:"role_arn"`
}

// Config represents the application configuration
type Config struct {
	Accounts              []Account                  `yaml:"accounts"`
	RequiredTags          []string                   `yaml:"required_tags"`
	AssumeRoleTemplate    string                     `yaml:"assume_role_name_template"` // may contain {account_id}
	AccountOverrides      map[string]AccountOverride `yaml:"account_overrides"`
	ExcludedResourceTypes []string                   `yaml:"excluded_resource_types"`
	RefreshInterval       int                        `yaml:"refresh_interval"` // seconds
	HTTPPort              int                        `yaml:"http_port"`
	LogLevel              string                     `yaml:"log_level"`
}

// Load loads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// Read YAML file
	// #nosec G304 -- Config file path is provided by administrator via CLI flag, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	// Override with environment variables
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	// Validate
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// The classifier assumes a duplicate-free required-tag list
	cfg.RequiredTags = dedupe(cfg.RequiredTags)

	return &cfg, nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Name == "" {
			cfg.Accounts[i].Name = cfg.Accounts[i].ID
		}
		if len(cfg.Accounts[i].Regions) == 0 {
			cfg.Accounts[i].Regions = []string{DefaultRegion}
		}
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) error {
	// Override refresh interval
	if val := os.Getenv("AWS_TAG_REFRESH_INTERVAL"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AWS_TAG_REFRESH_INTERVAL: must be an integer, got %q", val)
		}
		cfg.RefreshInterval = i
	}

	// Override HTTP port
	if val := os.Getenv("AWS_TAG_HTTP_PORT"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AWS_TAG_HTTP_PORT: must be an integer, got %q", val)
		}
		cfg.HTTPPort = i
	}

	// Override log level
	if val := os.Getenv("AWS_TAG_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	// Override required tags (comma-separated)
	// Example: AWS_TAG_REQUIRED_TAGS="Owner,Environment,CostCenter"
	if val := os.Getenv("AWS_TAG_REQUIRED_TAGS"); val != "" {
		tags := []string{}
		for _, tag := range strings.Split(val, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			cfg.RequiredTags = tags
		}
	}

	// Override assume-role template
	if val := os.Getenv("AWS_TAG_ASSUME_ROLE_TEMPLATE"); val != "" {
		cfg.AssumeRoleTemplate = val
	}

	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	for i, acct := range cfg.Accounts {
		if acct.ID == "" {
			return fmt.Errorf("account at index %d has empty account_id", i)
		}
		for j, region := range acct.Regions {
			if region == "" {
				return fmt.Errorf("account %s has empty region at index %d", acct.ID, j)
			}
		}
	}

	if len(cfg.RequiredTags) == 0 {
		return fmt.Errorf("no required tags configured")
	}

	for i, tag := range cfg.RequiredTags {
		if tag == "" {
			return fmt.Errorf("required tag at index %d is empty", i)
		}
	}

	for accountID, override := range cfg.AccountOverrides {
		if override.RoleARN == "" {
			return fmt.Errorf("account override for %s has empty role_arn", accountID)
		}
	}

	// Check for negative or zero refresh interval
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %d", cfg.RefreshInterval)
	}

	if cfg.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("refresh_interval must be at least %d seconds", MinRefreshInterval)
	}

	if cfg.HTTPPort < MinPort || cfg.HTTPPort > MaxPort {
		return fmt.Errorf("http_port must be between %d and %d", MinPort, MaxPort)
	}

	return nil
}

// dedupe removes duplicate entries preserving first-occurrence order
func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
