// Package config provides environment-variable-first configuration loading
// with optional YAML and .env file layers for the mail bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is wrapped by Validate when required settings are empty.
var ErrMissingRequired = errors.New("missing required configuration")

const (
	defaultKeyPrefix      = "email/"
	defaultRegion         = "us-east-1"
	defaultSystemUsername = "system"
	defaultTitlePrefix    = "This is a public report by email: "
	defaultFromName       = "Discourse"
	defaultTimeout        = 30 * time.Second
)

// Config holds the complete application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Discourse DiscourseConfig `yaml:"discourse"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig locates raw messages written by the SES S3 receipt action.
type StorageConfig struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
	Region    string `yaml:"region"`
}

// DiscourseConfig holds forum API settings.
type DiscourseConfig struct {
	Host           string        `yaml:"host"`
	APIKey         string        `yaml:"api_key"`
	Category       string        `yaml:"category"`
	SystemUsername string        `yaml:"system_username"`
	TitlePrefix    string        `yaml:"title_prefix"`
	Timeout        time.Duration `yaml:"timeout"`
	// IncludeExternalID tags each post with the inbound message id.
	IncludeExternalID bool `yaml:"include_external_id"`
}

// NotifyConfig holds addressing for relayed notification emails.
type NotifyConfig struct {
	OperatorAddress string `yaml:"operator_address"`
	FromAddress     string `yaml:"from_address"`
	FromName        string `yaml:"from_name"`
	// AccessKeyID and SecretAccessKey are optional static SES credentials.
	// When unset the default AWS credential chain is used.
	AccessKeyID     string `yaml:"aws_access_key_id"`
	SecretAccessKey string `yaml:"aws_secret_access_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overwriting variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate reports every required setting that is empty.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"EMAIL_STORAGE_BUCKET", c.Storage.Bucket},
		{"DISCOURSE_API_KEY", c.Discourse.APIKey},
		{"DISCOURSE_HOST", c.Discourse.Host},
		{"DISCOURSE_CATEGORY_NUM", c.Discourse.Category},
		{"EMAIL_TO_NOTIFY_ON_FAILURE", c.Notify.OperatorAddress},
		{"EMAIL_TO_SEND_FROM", c.Notify.FromAddress},
		{"NAME_TO_SEND_FROM", c.Notify.FromName},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Storage.KeyPrefix = defaultKeyPrefix
	c.Storage.Region = defaultRegion
	c.Discourse.SystemUsername = defaultSystemUsername
	c.Discourse.TitlePrefix = defaultTitlePrefix
	c.Discourse.Timeout = defaultTimeout
	c.Notify.FromName = defaultFromName
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("EMAIL_STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("EMAIL_KEY_PREFIX"); v != "" {
		c.Storage.KeyPrefix = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Storage.Region = v
	}

	if v := os.Getenv("DISCOURSE_HOST"); v != "" {
		c.Discourse.Host = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("DISCOURSE_API_KEY"); v != "" {
		c.Discourse.APIKey = v
	}
	if v := os.Getenv("DISCOURSE_CATEGORY_NUM"); v != "" {
		c.Discourse.Category = v
	}
	if v := os.Getenv("DISCOURSE_SYSTEM_USERNAME"); v != "" {
		c.Discourse.SystemUsername = v
	}
	if v := os.Getenv("DISCOURSE_TITLE_PREFIX"); v != "" {
		c.Discourse.TitlePrefix = v
	}
	if v := os.Getenv("DISCOURSE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Discourse.Timeout = d
		}
	}
	if v := os.Getenv("DISCOURSE_INCLUDE_EXTERNAL_ID"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Discourse.IncludeExternalID = b
		}
	}

	if v := os.Getenv("EMAIL_TO_NOTIFY_ON_FAILURE"); v != "" {
		c.Notify.OperatorAddress = v
	}
	if v := os.Getenv("EMAIL_TO_SEND_FROM"); v != "" {
		c.Notify.FromAddress = v
	}
	if v := os.Getenv("NAME_TO_SEND_FROM"); v != "" {
		c.Notify.FromName = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.Notify.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.Notify.SecretAccessKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
