package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"fieldline/internal/domain"
)

// Config models fieldline.yml.
type Config struct {
	Identifiers struct {
		Width       int `yaml:"width"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"identifiers"`
	Notifications struct {
		ListLimit           int `yaml:"list_limit"`
		MaxListLimit        int `yaml:"max_list_limit"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"notifications"`
	Photos struct {
		Dir      string `yaml:"dir"`
		MaxBytes int64  `yaml:"max_bytes"`
	} `yaml:"photos"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig relays one role's notifications to an HTTP endpoint.
type WebhookConfig struct {
	URL            string `yaml:"url"`
	Role           string `yaml:"role"`
	Secret         string `yaml:"secret"`
	Enabled        *bool  `yaml:"enabled"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or defaults when none exists.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Identifiers.Width < 1 || c.Identifiers.Width > 9 {
		return fmt.Errorf("config.identifiers.width must be between 1 and 9")
	}
	if c.Identifiers.MaxAttempts < 1 {
		return fmt.Errorf("config.identifiers.max_attempts must be positive")
	}
	n := c.Notifications
	if n.MaxListLimit < 1 {
		return fmt.Errorf("config.notifications.max_list_limit must be positive")
	}
	if n.ListLimit < 1 || n.ListLimit > n.MaxListLimit {
		return fmt.Errorf("config.notifications.list_limit must be between 1 and %d", n.MaxListLimit)
	}
	if n.PollIntervalSeconds < 1 {
		return fmt.Errorf("config.notifications.poll_interval_seconds must be positive")
	}
	if c.Photos.MaxBytes < 0 {
		return fmt.Errorf("config.photos.max_bytes must not be negative")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, hook.URL)
		}
		if _, err := domain.ParseRole(hook.Role); err != nil {
			return fmt.Errorf("webhook %d: %w", i, err)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout must not be negative", i)
		}
	}
	return nil
}

// PollInterval is the reference client's refresh period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Notifications.PollIntervalSeconds) * time.Second
}

// ClampLimit applies the default and maximum notification window.
func (c *Config) ClampLimit(limit int) int {
	if limit <= 0 {
		return c.Notifications.ListLimit
	}
	if limit > c.Notifications.MaxListLimit {
		return c.Notifications.MaxListLimit
	}
	return limit
}

// PhotoDir resolves the photo directory against the data directory.
func (c *Config) PhotoDir(dataDir string) string {
	if c.Photos.Dir == "" {
		return filepath.Join(dataDir, "photos")
	}
	if filepath.IsAbs(c.Photos.Dir) {
		return c.Photos.Dir
	}
	return filepath.Join(dataDir, c.Photos.Dir)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `identifiers:
  width: 3
  max_attempts: 5

notifications:
  list_limit: 20
  max_list_limit: 200
  poll_interval_seconds: 15

photos:
  dir: photos
  max_bytes: 10485760

# webhooks:
#   - url: https://example.org/hooks/fieldline
#     role: chef_section
#     secret: change-me
`
